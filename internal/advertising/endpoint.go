package advertising

import (
	"errors"
	"fmt"

	"github.com/stacklok/nearby-sync/internal/certificates"
)

const (
	endpointInfoVersion = 0
	// deviceTypeLaptop is the device type advertised in the header
	deviceTypeLaptop = 3
	maxNameBytes     = 255

	headerSize = 1 + certificates.SaltSize + certificates.EncryptedMetadataKeySize
)

// EndpointInfo is the decoded advertisement
type EndpointInfo struct {
	Version              int
	DeviceType           int
	Salt                 []byte
	EncryptedMetadataKey []byte
	// DeviceName is empty when the name is hidden
	DeviceName string
}

// EncodeEndpointInfo builds the advertisement: a header byte holding the
// version, a name-hidden flag and the device type, then the salt, the
// encrypted metadata key and, when deviceName is set, its length-prefixed
// UTF-8 bytes
func EncodeEndpointInfo(payload certificates.Payload, deviceName string) ([]byte, error) {
	if len(payload.Salt) != certificates.SaltSize {
		return nil, fmt.Errorf("salt has %d bytes, want %d", len(payload.Salt), certificates.SaltSize)
	}
	if len(payload.EncryptedMetadataKey) != certificates.EncryptedMetadataKeySize {
		return nil, fmt.Errorf("encrypted metadata key has %d bytes, want %d",
			len(payload.EncryptedMetadataKey), certificates.EncryptedMetadataKeySize)
	}
	if len(deviceName) > maxNameBytes {
		return nil, fmt.Errorf("device name is %d bytes, limit is %d", len(deviceName), maxNameBytes)
	}

	hidden := byte(0)
	if deviceName == "" {
		hidden = 1
	}
	info := make([]byte, 0, headerSize+1+len(deviceName))
	info = append(info, endpointInfoVersion<<5|hidden<<4|deviceTypeLaptop<<1)
	info = append(info, payload.Salt...)
	info = append(info, payload.EncryptedMetadataKey...)
	if deviceName != "" {
		info = append(info, byte(len(deviceName)))
		info = append(info, deviceName...)
	}
	return info, nil
}

// DecodeEndpointInfo parses an advertisement built by EncodeEndpointInfo
func DecodeEndpointInfo(info []byte) (EndpointInfo, error) {
	if len(info) < headerSize {
		return EndpointInfo{}, fmt.Errorf("endpoint info has %d bytes, want at least %d", len(info), headerSize)
	}

	header := info[0]
	decoded := EndpointInfo{
		Version:              int(header >> 5),
		DeviceType:           int(header>>1) & 0x07,
		Salt:                 info[1 : 1+certificates.SaltSize],
		EncryptedMetadataKey: info[1+certificates.SaltSize : headerSize],
	}
	hidden := header>>4&1 == 1
	rest := info[headerSize:]

	if hidden {
		if len(rest) != 0 {
			return EndpointInfo{}, errors.New("endpoint info has trailing bytes after a hidden name")
		}
		return decoded, nil
	}
	if len(rest) == 0 || int(rest[0]) != len(rest)-1 {
		return EndpointInfo{}, errors.New("endpoint info has a malformed device name")
	}
	decoded.DeviceName = string(rest[1:])
	return decoded, nil
}
