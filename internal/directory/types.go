package directory

import (
	"errors"
	"fmt"
	"time"
)

// DevicePrefix prefixes device ids to form the parent resource of per-device RPCs
const DevicePrefix = "users/me/devices/"

// ErrTimeout is returned when an RPC does not complete within its deadline
var ErrTimeout = errors.New("directory RPC timed out")

// HTTPError represents an HTTP error response from the directory service
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// DeviceParent returns the parent resource name for deviceID
func DeviceParent(deviceID string) string {
	return DevicePrefix + deviceID
}

// IdentifierType is the kind of contact identifier
type IdentifierType string

// Identifier types
const (
	IdentifierTypeAccount IdentifierType = "account"
	IdentifierTypePhone   IdentifierType = "phone"
	IdentifierTypeEmail   IdentifierType = "email"
)

// Identifier is one way of reaching a contact
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

// ContactRecord is a contact as returned by the directory
type ContactRecord struct {
	ID          string       `json:"id"`
	PersonName  string       `json:"personName,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
}

// Contact is one identifier of a contact as uploaded to the directory
type Contact struct {
	Identifier Identifier `json:"identifier"`
	IsSelected bool       `json:"isSelected"`
}

// PublicCertificate is a certificate published by a remote device
type PublicCertificate struct {
	SecretID                 []byte    `json:"secretId"`
	SecretKey                []byte    `json:"secretKey,omitempty"`
	PublicKey                []byte    `json:"publicKey,omitempty"`
	StartTime                time.Time `json:"startTime"`
	EndTime                  time.Time `json:"endTime"`
	ForSelectedContacts      bool      `json:"forSelectedContacts"`
	MetadataEncryptionKey    []byte    `json:"metadataEncryptionKey,omitempty"`
	EncryptedMetadataBytes   []byte    `json:"encryptedMetadataBytes,omitempty"`
	MetadataEncryptionKeyTag []byte    `json:"metadataEncryptionKeyTag,omitempty"`
}

// CheckContactsChangedResponse reports whether contacts changed since the last upload
type CheckContactsChangedResponse struct {
	Changed bool `json:"changed"`
}

// ListContactPeopleRequest requests one page of contact records
type ListContactPeopleRequest struct {
	Parent    string
	PageSize  int
	PageToken string
}

// ListContactPeopleResponse is one page of contact records
type ListContactPeopleResponse struct {
	ContactRecords []ContactRecord `json:"contactRecords,omitempty"`
	NextPageToken  string          `json:"nextPageToken,omitempty"`
}

// UpdateDeviceRequest updates the device's name and uploaded contacts
type UpdateDeviceRequest struct {
	DeviceID   string    `json:"-"`
	DeviceName string    `json:"displayName,omitempty"`
	Contacts   []Contact `json:"contacts"`
}

// UpdateDeviceResponse is the device as stored by the directory
type UpdateDeviceResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	PersonName  string `json:"personName,omitempty"`
}

// ListPublicCertificatesRequest requests one page of public certificates
type ListPublicCertificatesRequest struct {
	Parent    string
	PageSize  int
	PageToken string
}

// ListPublicCertificatesResponse is one page of public certificates
type ListPublicCertificatesResponse struct {
	PublicCertificates []PublicCertificate `json:"publicCertificates,omitempty"`
	NextPageToken      string              `json:"nextPageToken,omitempty"`
}
