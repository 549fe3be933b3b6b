package app

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/control"
)

// ApplyConfig applies the parts of cfg that a running session can pick up:
// the device name and the advertising preferences. Other differences are
// logged and take effect on the next start.
func (d *Daemon) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	previous := d.GetConfig()

	if update, ok := liveUpdate(previous, cfg); ok {
		if d.controller == nil {
			return fmt.Errorf("daemon has no controller")
		}
		if _, err := d.controller.UpdateConditions(ctx, update); err != nil {
			return fmt.Errorf("failed to apply configuration: %w", err)
		}
		slog.Info("Applied configuration changes to the running session")
	}
	if fields := restartFields(previous, cfg); len(fields) > 0 {
		slog.Warn("Configuration changes take effect after a restart", "fields", fields)
	}

	d.configMu.Lock()
	d.config = cfg
	d.configMu.Unlock()
	return nil
}

func liveUpdate(previous, next *config.Config) (control.ConditionsUpdate, bool) {
	var update control.ConditionsUpdate
	changed := false

	if next.DeviceName != "" && next.DeviceName != previous.DeviceName {
		name := next.DeviceName
		update.DeviceName = &name
		changed = true
	}

	oldEnabled, oldVisibility, oldDataUsage := previous.GetAdvertisingDefaults()
	enabled, visibility, dataUsage := next.GetAdvertisingDefaults()
	if enabled != oldEnabled {
		update.Enabled = &enabled
		changed = true
	}
	if visibility != oldVisibility {
		update.Visibility = &visibility
		changed = true
	}
	if dataUsage != oldDataUsage {
		update.DataUsage = &dataUsage
		changed = true
	}
	return update, changed
}

func restartFields(previous, next *config.Config) []string {
	var fields []string
	if previous.DataDir != next.DataDir {
		fields = append(fields, "dataDir")
	}
	if !reflect.DeepEqual(previous.Directory, next.Directory) {
		fields = append(fields, "directory")
	}
	if !reflect.DeepEqual(previous.Contacts, next.Contacts) {
		fields = append(fields, "contacts")
	}
	if !reflect.DeepEqual(previous.Certificates, next.Certificates) {
		fields = append(fields, "certificates")
	}
	if !reflect.DeepEqual(previous.Scheduler, next.Scheduler) {
		fields = append(fields, "scheduler")
	}
	if !reflect.DeepEqual(previous.Environment, next.Environment) {
		fields = append(fields, "environment")
	}
	if previous.GetAPIAddress() != next.GetAPIAddress() {
		fields = append(fields, "api")
	}
	if !reflect.DeepEqual(previous.Telemetry, next.Telemetry) {
		fields = append(fields, "telemetry")
	}
	return fields
}
