package certificates

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/sharing"
)

// Sizes of the advertisement payload fields
const (
	SaltSize                  = 2
	EncryptedMetadataKeySize  = 14
	MetadataEncryptionKeySize = 14
	SecretKeySize             = 32
)

var (
	// ErrNotInitialized is returned by every operation until Initialize succeeds
	ErrNotInitialized = errors.New("certificate storage is not initialized")
	// ErrNoCertificateForVisibility is returned when no valid private
	// certificate exists for the requested visibility
	ErrNoCertificateForVisibility = errors.New("no private certificate for visibility")
)

// PublicCertificate is a contact's certificate as mirrored from the directory
type PublicCertificate = directory.PublicCertificate

// PublicCertificateID returns the storage id of cert
func PublicCertificateID(cert PublicCertificate) string {
	return hex.EncodeToString(cert.SecretID)
}

// PrivateCertificate is one of this device's own certificates
type PrivateCertificate struct {
	SecretID              []byte             `json:"secretId"`
	Visibility            sharing.Visibility `json:"visibility"`
	NotBefore             time.Time          `json:"notBefore"`
	NotAfter              time.Time          `json:"notAfter"`
	SecretKey             []byte             `json:"secretKey"`
	MetadataEncryptionKey []byte             `json:"metadataEncryptionKey"`
}

// ID returns the hex encoded secret id
func (c PrivateCertificate) ID() string {
	return hex.EncodeToString(c.SecretID)
}

// IsValidAt reports whether now falls in [NotBefore, NotAfter)
func (c PrivateCertificate) IsValidAt(now time.Time) bool {
	return !now.Before(c.NotBefore) && now.Before(c.NotAfter)
}

// Payload is the certificate-derived part of an advertisement
type Payload struct {
	Salt                 []byte
	EncryptedMetadataKey []byte
}
