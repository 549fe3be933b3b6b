package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/control"
	"github.com/stacklok/nearby-sync/internal/device"
	"github.com/stacklok/nearby-sync/internal/environment"
	"github.com/stacklok/nearby-sync/internal/sequence"
)

var _ control.Controller = (*Session)(nil)

// Advertising implements control.Controller
func (s *Session) Advertising(ctx context.Context) (control.AdvertisingStatus, error) {
	var st control.AdvertisingStatus
	err := sequence.Do(ctx, s.runner, func() { st = s.advertisingStatus() })
	return st, err
}

func (s *Session) advertisingStatus() control.AdvertisingStatus {
	snap := s.machine.Snapshot()
	st := control.AdvertisingStatus{
		Session:     snap.Session,
		Description: snap.Session.String(),
		Reason:      snap.Reason,
		Conditions:  snap.Conditions,
		Surfaces:    snap.Surfaces,
	}
	if s.connections != nil {
		stats := s.connections.Stats()
		st.Transport = &stats
	}
	return st
}

// UpdateConditions implements control.Controller. The returned status is
// read after the change notifications have been processed.
func (s *Session) UpdateConditions(ctx context.Context, update control.ConditionsUpdate) (control.AdvertisingStatus, error) {
	if update.DeviceName != nil {
		if err := device.ValidateName(*update.DeviceName); err != nil {
			return control.AdvertisingStatus{}, fmt.Errorf("%w: %w", control.ErrInvalidRequest, err)
		}
	}

	var applyErr error
	if err := sequence.Do(ctx, s.runner, func() { applyErr = s.applyUpdate(update) }); err != nil {
		return control.AdvertisingStatus{}, err
	}
	if applyErr != nil {
		return control.AdvertisingStatus{}, applyErr
	}

	// Notifications posted while applying run before this read
	return s.Advertising(ctx)
}

func (s *Session) applyUpdate(u control.ConditionsUpdate) error {
	s.environment.Set(func(st *environment.State) {
		if u.BluetoothPresent != nil {
			st.BluetoothPresent = *u.BluetoothPresent
		}
		if u.BluetoothPowered != nil {
			st.BluetoothPowered = *u.BluetoothPowered
		}
		if u.Connection != nil {
			st.Connection = *u.Connection
		}
		if u.ScreenLocked != nil {
			st.ScreenLocked = *u.ScreenLocked
		}
	})

	var errs []error
	if u.Enabled != nil {
		errs = append(errs, s.sharing.SetEnabled(*u.Enabled))
	}
	if u.Visibility != nil {
		errs = append(errs, s.sharing.SetVisibility(*u.Visibility))
	}
	if u.DataUsage != nil {
		errs = append(errs, s.sharing.SetDataUsage(*u.DataUsage))
	}
	if u.Scanning != nil {
		s.machine.SetScanning(*u.Scanning)
	}
	if u.Transferring != nil {
		s.machine.SetTransferring(*u.Transferring)
	}
	if u.DeviceName != nil && *u.DeviceName != s.device.Name() {
		if err := s.device.SetName(*u.DeviceName); err != nil {
			errs = append(errs, err)
		} else {
			// the name is part of the advertised endpoint info
			s.machine.OnCertificatesChanged()
		}
	}
	return errors.Join(errs...)
}

// RegisterReceiveSurface implements control.Controller
func (s *Session) RegisterReceiveSurface(ctx context.Context, state advertising.SurfaceState) (advertising.SurfaceID, error) {
	var (
		id     advertising.SurfaceID
		regErr error
	)
	if err := sequence.Do(ctx, s.runner, func() {
		id, regErr = s.machine.RegisterReceiveSurface(state)
	}); err != nil {
		return "", err
	}
	return id, regErr
}

// UnregisterReceiveSurface implements control.Controller
func (s *Session) UnregisterReceiveSurface(ctx context.Context, id advertising.SurfaceID) error {
	var unregErr error
	if err := sequence.Do(ctx, s.runner, func() {
		unregErr = s.machine.UnregisterReceiveSurface(id)
	}); err != nil {
		return err
	}
	return unregErr
}

// AllowedContacts implements control.Controller
func (s *Session) AllowedContacts(ctx context.Context) ([]string, error) {
	var ids []string
	err := sequence.Do(ctx, s.runner, func() { ids = s.coordinator.AllowedContacts() })
	return ids, err
}

// SetAllowedContacts implements control.Controller
func (s *Session) SetAllowedContacts(ctx context.Context, ids []string) error {
	var setErr error
	if err := sequence.Do(ctx, s.runner, func() {
		setErr = s.coordinator.SetAllowedContacts(ids)
	}); err != nil {
		return err
	}
	return setErr
}

// DownloadContacts implements control.Controller
func (s *Session) DownloadContacts(ctx context.Context, forceFull bool) error {
	return sequence.Do(ctx, s.runner, func() { s.coordinator.DownloadContacts(forceFull) })
}

// SyncStatus implements control.Controller
func (s *Session) SyncStatus(ctx context.Context) (control.SyncStatus, error) {
	var st control.SyncStatus
	err := sequence.Do(ctx, s.runner, func() {
		st = control.SyncStatus{
			Device: control.DeviceInfo{
				ID:       s.device.ID(),
				Name:     s.device.Name(),
				FullName: s.device.FullName(),
			},
			Contacts:     s.coordinator.Status(),
			Certificates: s.certificates.Status(),
		}
	})
	return st, err
}
