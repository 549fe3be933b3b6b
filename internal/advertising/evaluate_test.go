package advertising

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/nearby-sync/internal/sharing"
)

// advertisable returns conditions under which advertising is allowed
func advertisable() Conditions {
	return Conditions{
		BluetoothPresent:   true,
		BluetoothPowered:   true,
		Connection:         ConnectionWifi,
		Enabled:            true,
		Visibility:         sharing.VisibilityAllContacts,
		DataUsage:          sharing.DataUsageOnline,
		ForegroundSurfaces: 1,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		modify         func(c *Conditions)
		expected       Session
		expectedReason Reason
	}{
		{
			name:           "foreground surface advertises at high power",
			modify:         func(*Conditions) {},
			expected:       Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageOnline},
			expectedReason: ReasonAdvertising,
		},
		{
			name: "background surface advertises at low power",
			modify: func(c *Conditions) {
				c.ForegroundSurfaces = 0
				c.BackgroundSurfaces = 2
				c.DataUsage = sharing.DataUsageWifiOnly
			},
			expected:       Session{Active: true, PowerLevel: PowerLevelLow, DataUsage: sharing.DataUsageWifiOnly},
			expectedReason: ReasonAdvertising,
		},
		{
			name:           "screen locked",
			modify:         func(c *Conditions) { c.ScreenLocked = true },
			expectedReason: ReasonScreenLocked,
		},
		{
			name: "screen lock takes priority over everything",
			modify: func(c *Conditions) {
				c.ScreenLocked = true
				c.Enabled = false
				c.BluetoothPresent = false
				c.Connection = ConnectionNone
			},
			expectedReason: ReasonScreenLocked,
		},
		{
			name: "no bluetooth and no LAN",
			modify: func(c *Conditions) {
				c.BluetoothPresent = false
				c.Connection = ConnectionCellular
			},
			expectedReason: ReasonNoTransport,
		},
		{
			name: "powered off radio still counts as a transport",
			modify: func(c *Conditions) {
				c.BluetoothPowered = false
				c.Connection = ConnectionNone
			},
			expected:       Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageOnline},
			expectedReason: ReasonAdvertising,
		},
		{
			name: "no transport takes priority over disabled",
			modify: func(c *Conditions) {
				c.BluetoothPresent = false
				c.Connection = ConnectionNone
				c.Enabled = false
			},
			expectedReason: ReasonNoTransport,
		},
		{
			name: "ethernet without bluetooth is enough",
			modify: func(c *Conditions) {
				c.BluetoothPresent = false
				c.Connection = ConnectionEthernet
			},
			expected:       Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageOnline},
			expectedReason: ReasonAdvertising,
		},
		{
			name: "bluetooth without a network is enough",
			modify: func(c *Conditions) {
				c.Connection = ConnectionNone
			},
			expected:       Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageOnline},
			expectedReason: ReasonAdvertising,
		},
		{
			name:           "disabled",
			modify:         func(c *Conditions) { c.Enabled = false },
			expectedReason: ReasonDisabled,
		},
		{
			name: "disabled takes priority over scanning",
			modify: func(c *Conditions) {
				c.Enabled = false
				c.Scanning = true
			},
			expectedReason: ReasonDisabled,
		},
		{
			name: "scanning",
			modify: func(c *Conditions) {
				c.Scanning = true
				c.Transferring = true
			},
			expectedReason: ReasonScanning,
		},
		{
			name:           "transferring",
			modify:         func(c *Conditions) { c.Transferring = true },
			expectedReason: ReasonTransferring,
		},
		{
			name:           "no surfaces",
			modify:         func(c *Conditions) { c.ForegroundSurfaces = 0 },
			expectedReason: ReasonNoSurfaces,
		},
		{
			name: "visible to no one with only background surfaces",
			modify: func(c *Conditions) {
				c.ForegroundSurfaces = 0
				c.BackgroundSurfaces = 1
				c.Visibility = sharing.VisibilityNoOne
			},
			expectedReason: ReasonNotVisible,
		},
		{
			name: "unknown visibility with only background surfaces",
			modify: func(c *Conditions) {
				c.ForegroundSurfaces = 0
				c.BackgroundSurfaces = 1
				c.Visibility = sharing.VisibilityUnknown
			},
			expectedReason: ReasonNotVisible,
		},
		{
			name: "visible to no one with a foreground surface",
			modify: func(c *Conditions) {
				c.Visibility = sharing.VisibilityNoOne
				c.BackgroundSurfaces = 1
			},
			expected:       Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageOnline},
			expectedReason: ReasonAdvertising,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := advertisable()
			tt.modify(&c)

			session, reason := Evaluate(c)
			assert.Equal(t, tt.expected, session)
			assert.Equal(t, tt.expectedReason, reason)
		})
	}
}

func TestSessionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NotAdvertising", Session{}.String())
	assert.Equal(t, "Advertising(high, wifi_only)",
		Session{Active: true, PowerLevel: PowerLevelHigh, DataUsage: sharing.DataUsageWifiOnly}.String())
}

func TestParseConnectionType(t *testing.T) {
	t.Parallel()

	c, err := ParseConnectionType("Ethernet")
	assert.NoError(t, err)
	assert.Equal(t, ConnectionEthernet, c)
	assert.True(t, c.IsLAN())
	assert.False(t, ConnectionCellular.IsLAN())

	_, err = ParseConnectionType("carrier-pigeon")
	assert.Error(t, err)

	s, err := ParseSurfaceState("FOREGROUND")
	assert.NoError(t, err)
	assert.Equal(t, SurfaceForeground, s)
	_, err = ParseSurfaceState("sideways")
	assert.Error(t, err)
}

func TestSurfaceStateJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[SurfaceID]SurfaceState{"a": SurfaceForeground})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"foreground"}`, string(data))

	var decoded struct {
		State SurfaceState `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"state":"background"}`), &decoded))
	assert.Equal(t, SurfaceBackground, decoded.State)
	assert.Error(t, json.Unmarshal([]byte(`{"state":"minimized"}`), &decoded))
}
