// Package control defines the operations the local API performs on a running
// session. Implementations marshal every call onto the session's sequence.
package control

import (
	"context"
	"errors"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/connections"
	"github.com/stacklok/nearby-sync/internal/sharing"
	"github.com/stacklok/nearby-sync/internal/sync/coordinator"
)

// ErrInvalidRequest marks caller errors such as an invalid device name
var ErrInvalidRequest = errors.New("invalid request")

// AdvertisingStatus is the advertising decision and everything it was derived from
type AdvertisingStatus struct {
	Session     advertising.Session                                `json:"session"`
	Description string                                             `json:"description"`
	Reason      advertising.Reason                                 `json:"reason"`
	Conditions  advertising.Conditions                             `json:"conditions"`
	Surfaces    map[advertising.SurfaceID]advertising.SurfaceState `json:"surfaces"`
	// Transport is set when the session owns its connections manager
	Transport *connections.Stats `json:"transport,omitempty"`
}

// ConditionsUpdate changes the environment and preferences. Nil fields are
// left untouched.
type ConditionsUpdate struct {
	BluetoothPresent *bool                       `json:"bluetoothPresent,omitempty"`
	BluetoothPowered *bool                       `json:"bluetoothPowered,omitempty"`
	Connection       *advertising.ConnectionType `json:"connection,omitempty"`
	ScreenLocked     *bool                       `json:"screenLocked,omitempty"`
	Enabled          *bool                       `json:"enabled,omitempty"`
	Visibility       *sharing.Visibility         `json:"visibility,omitempty"`
	DataUsage        *sharing.DataUsage          `json:"dataUsage,omitempty"`
	Scanning         *bool                       `json:"scanning,omitempty"`
	Transferring     *bool                       `json:"transferring,omitempty"`
	DeviceName       *string                     `json:"deviceName,omitempty"`
}

// DeviceInfo identifies the local device
type DeviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName,omitempty"`
}

// SyncStatus describes contact and certificate synchronization
type SyncStatus struct {
	Device       DeviceInfo          `json:"device"`
	Contacts     coordinator.Status  `json:"contacts"`
	Certificates certificates.Status `json:"certificates"`
}

// Controller is a running session as seen by the local API
//
//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks github.com/stacklok/nearby-sync/internal/control Controller
type Controller interface {
	// Advertising returns the current advertising status
	Advertising(ctx context.Context) (AdvertisingStatus, error)
	// UpdateConditions applies update and returns the status after re-evaluation
	UpdateConditions(ctx context.Context, update ConditionsUpdate) (AdvertisingStatus, error)
	// RegisterReceiveSurface adds a surface and returns its generated id
	RegisterReceiveSurface(ctx context.Context, state advertising.SurfaceState) (advertising.SurfaceID, error)
	// UnregisterReceiveSurface removes a surface
	UnregisterReceiveSurface(ctx context.Context, id advertising.SurfaceID) error
	// AllowedContacts returns the allow-list
	AllowedContacts(ctx context.Context) ([]string, error)
	// SetAllowedContacts replaces the allow-list
	SetAllowedContacts(ctx context.Context, ids []string) error
	// DownloadContacts requests a contact download
	DownloadContacts(ctx context.Context, forceFull bool) error
	// SyncStatus returns the synchronization status
	SyncStatus(ctx context.Context) (SyncStatus, error)
}
