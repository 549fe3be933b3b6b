// Package sharing defines the user's sharing preferences and their persisted form.
package sharing

import (
	"fmt"
	"strings"
)

// Visibility controls who can see this device
type Visibility int

// Visibility values
const (
	VisibilityUnknown Visibility = iota
	VisibilityNoOne
	VisibilityAllContacts
	VisibilitySelectedContacts
)

var visibilityNames = map[Visibility]string{
	VisibilityUnknown:          "unknown",
	VisibilityNoOne:            "no_one",
	VisibilityAllContacts:      "all_contacts",
	VisibilitySelectedContacts: "selected_contacts",
}

func (v Visibility) String() string {
	if name, ok := visibilityNames[v]; ok {
		return name
	}
	return fmt.Sprintf("visibility(%d)", int(v))
}

// IsContactVisible reports whether v exposes the device to contacts
func (v Visibility) IsContactVisible() bool {
	return v == VisibilityAllContacts || v == VisibilitySelectedContacts
}

// ParseVisibility parses the String form of a visibility
func ParseVisibility(s string) (Visibility, error) {
	for v, name := range visibilityNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return VisibilityUnknown, fmt.Errorf("unknown visibility %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *Visibility) UnmarshalText(text []byte) error {
	parsed, err := ParseVisibility(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// DataUsage controls which networks may be used for sharing
type DataUsage int

// DataUsage values
const (
	DataUsageUnknown DataUsage = iota
	DataUsageOffline
	DataUsageOnline
	DataUsageWifiOnly
)

var dataUsageNames = map[DataUsage]string{
	DataUsageUnknown:  "unknown",
	DataUsageOffline:  "offline",
	DataUsageOnline:   "online",
	DataUsageWifiOnly: "wifi_only",
}

func (d DataUsage) String() string {
	if name, ok := dataUsageNames[d]; ok {
		return name
	}
	return fmt.Sprintf("data_usage(%d)", int(d))
}

// ParseDataUsage parses the String form of a data usage
func ParseDataUsage(s string) (DataUsage, error) {
	for d, name := range dataUsageNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return DataUsageUnknown, fmt.Errorf("unknown data usage %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (d DataUsage) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *DataUsage) UnmarshalText(text []byte) error {
	parsed, err := ParseDataUsage(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
