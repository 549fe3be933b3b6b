package sharing

import (
	"log/slog"

	"github.com/stacklok/nearby-sync/internal/prefs"
)

// Preferences reads and writes the sharing preferences in a prefs.Store
type Preferences struct {
	store prefs.Store
}

// NewPreferences returns preferences backed by store
func NewPreferences(store prefs.Store) *Preferences {
	return &Preferences{store: store}
}

// SetDefaults stores the given values for any preference not yet set
func (p *Preferences) SetDefaults(enabled bool, visibility Visibility, dataUsage DataUsage) error {
	if !p.store.Has(prefs.KeySharingEnabled) {
		if err := p.store.SetBool(prefs.KeySharingEnabled, enabled); err != nil {
			return err
		}
	}
	if !p.store.Has(prefs.KeySharingVisibility) {
		if err := p.SetVisibility(visibility); err != nil {
			return err
		}
	}
	if !p.store.Has(prefs.KeySharingDataUsage) {
		if err := p.SetDataUsage(dataUsage); err != nil {
			return err
		}
	}
	return nil
}

// IsEnabled reports whether sharing is enabled
func (p *Preferences) IsEnabled() bool {
	return p.store.GetBool(prefs.KeySharingEnabled, false)
}

// SetEnabled enables or disables sharing
func (p *Preferences) SetEnabled(enabled bool) error {
	return p.store.SetBool(prefs.KeySharingEnabled, enabled)
}

// Visibility returns the stored visibility. Unparseable values read as unknown.
func (p *Preferences) Visibility() Visibility {
	raw := p.store.GetString(prefs.KeySharingVisibility)
	if raw == "" {
		return VisibilityUnknown
	}
	v, err := ParseVisibility(raw)
	if err != nil {
		slog.Warn("Ignoring invalid visibility preference", "value", raw, "error", err)
	}
	return v
}

// SetVisibility stores the visibility
func (p *Preferences) SetVisibility(v Visibility) error {
	return p.store.SetString(prefs.KeySharingVisibility, v.String())
}

// DataUsage returns the stored data usage. Unparseable values read as unknown.
func (p *Preferences) DataUsage() DataUsage {
	raw := p.store.GetString(prefs.KeySharingDataUsage)
	if raw == "" {
		return DataUsageUnknown
	}
	d, err := ParseDataUsage(raw)
	if err != nil {
		slog.Warn("Ignoring invalid data usage preference", "value", raw, "error", err)
	}
	return d
}

// SetDataUsage stores the data usage
func (p *Preferences) SetDataUsage(d DataUsage) error {
	return p.store.SetString(prefs.KeySharingDataUsage, d.String())
}

// Observe runs fn whenever any sharing preference changes. The returned func
// removes the observation.
func (p *Preferences) Observe(fn func()) (cancel func()) {
	cancels := []func(){
		p.store.Observe(prefs.KeySharingEnabled, fn),
		p.store.Observe(prefs.KeySharingVisibility, fn),
		p.store.Observe(prefs.KeySharingDataUsage, fn),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
