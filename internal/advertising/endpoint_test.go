package advertising

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/nearby-sync/internal/certificates"
)

func testPayload() certificates.Payload {
	return certificates.Payload{
		Salt:                 []byte{0xab, 0xcd},
		EncryptedMetadataKey: bytes.Repeat([]byte{0x11}, certificates.EncryptedMetadataKeySize),
	}
}

func TestEndpointInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		deviceName string
		size       int
	}{
		{name: "hidden name", deviceName: "", size: 17},
		{name: "with name", deviceName: "Ada's Laptop", size: 17 + 1 + len("Ada's Laptop")},
		{name: "multibyte name", deviceName: "Küche", size: 17 + 1 + len("Küche")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info, err := EncodeEndpointInfo(testPayload(), tt.deviceName)
			require.NoError(t, err)
			assert.Len(t, info, tt.size)

			decoded, err := DecodeEndpointInfo(info)
			require.NoError(t, err)
			assert.Equal(t, 0, decoded.Version)
			assert.Equal(t, deviceTypeLaptop, decoded.DeviceType)
			assert.Equal(t, testPayload().Salt, decoded.Salt)
			assert.Equal(t, testPayload().EncryptedMetadataKey, decoded.EncryptedMetadataKey)
			assert.Equal(t, tt.deviceName, decoded.DeviceName)
		})
	}
}

func TestEncodeEndpointInfo_Errors(t *testing.T) {
	t.Parallel()

	_, err := EncodeEndpointInfo(certificates.Payload{Salt: []byte{1}}, "")
	assert.Error(t, err)

	short := testPayload()
	short.EncryptedMetadataKey = short.EncryptedMetadataKey[:4]
	_, err = EncodeEndpointInfo(short, "")
	assert.Error(t, err)

	_, err = EncodeEndpointInfo(testPayload(), strings.Repeat("x", 256))
	assert.Error(t, err)
}

func TestDecodeEndpointInfo_Errors(t *testing.T) {
	t.Parallel()

	valid, err := EncodeEndpointInfo(testPayload(), "name")
	require.NoError(t, err)
	hidden, err := EncodeEndpointInfo(testPayload(), "")
	require.NoError(t, err)

	tests := []struct {
		name string
		info []byte
	}{
		{name: "too short", info: valid[:10]},
		{name: "missing name", info: valid[:headerSize]},
		{name: "truncated name", info: valid[:len(valid)-1]},
		{name: "trailing bytes after hidden name", info: append(bytes.Clone(hidden), 0x01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeEndpointInfo(tt.info)
			assert.Error(t, err)
		})
	}
}
