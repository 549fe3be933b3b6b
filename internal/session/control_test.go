package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/control"
	"github.com/stacklok/nearby-sync/internal/sharing"
)

func ptr[T any](v T) *T { return &v }

func TestController_ReceiveSurfaces(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()
	ctx := context.Background()

	id, err := h.session.RegisterReceiveSurface(ctx, advertising.SurfaceForeground)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		st, err := h.session.Advertising(ctx)
		return err == nil && st.Reason == advertising.ReasonAdvertising
	}, waitFor, tick)

	st, err := h.session.Advertising(ctx)
	require.NoError(t, err)
	assert.True(t, st.Session.Active)
	assert.Equal(t, advertising.PowerLevelHigh, st.Session.PowerLevel)
	assert.Equal(t, st.Session.String(), st.Description)
	assert.Equal(t, advertising.SurfaceForeground, st.Surfaces[id])
	require.NotNil(t, st.Transport)

	require.NoError(t, h.session.UnregisterReceiveSurface(ctx, id))
	require.ErrorIs(t, h.session.UnregisterReceiveSurface(ctx, id), advertising.ErrUnknownSurface)

	st, err = h.session.Advertising(ctx)
	require.NoError(t, err)
	assert.False(t, st.Session.Active)
	assert.Equal(t, advertising.ReasonNoSurfaces, st.Reason)
}

func TestController_UpdateConditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		update control.ConditionsUpdate
		want   advertising.Reason
	}{
		{
			name:   "screen locked",
			update: control.ConditionsUpdate{ScreenLocked: ptr(true)},
			want:   advertising.ReasonScreenLocked,
		},
		{
			name:   "no bluetooth and offline",
			update: control.ConditionsUpdate{BluetoothPresent: ptr(false), Connection: ptr(advertising.ConnectionNone)},
			want:   advertising.ReasonNoTransport,
		},
		{
			name:   "powered off radio and offline keeps advertising",
			update: control.ConditionsUpdate{BluetoothPowered: ptr(false), Connection: ptr(advertising.ConnectionNone)},
			want:   advertising.ReasonAdvertising,
		},
		{
			name:   "sharing disabled",
			update: control.ConditionsUpdate{Enabled: ptr(false)},
			want:   advertising.ReasonDisabled,
		},
		{
			name:   "scanning",
			update: control.ConditionsUpdate{Scanning: ptr(true)},
			want:   advertising.ReasonScanning,
		},
		{
			name:   "transferring",
			update: control.ConditionsUpdate{Transferring: ptr(true)},
			want:   advertising.ReasonTransferring,
		},
		{
			name:   "visibility change keeps advertising",
			update: control.ConditionsUpdate{Visibility: ptr(sharing.VisibilitySelectedContacts)},
			want:   advertising.ReasonAdvertising,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.start()
			h.advertiseInForeground()

			st, err := h.session.UpdateConditions(context.Background(), tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Reason)
			assert.Equal(t, tt.want == advertising.ReasonAdvertising, st.Session.Active)
		})
	}
}

func TestController_UpdateDeviceName(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()
	h.advertiseInForeground()
	ctx := context.Background()

	_, err := h.session.UpdateConditions(ctx, control.ConditionsUpdate{DeviceName: ptr("")})
	require.ErrorIs(t, err, control.ErrInvalidRequest)

	before := h.transport.Stats()
	st, err := h.session.UpdateConditions(ctx, control.ConditionsUpdate{DeviceName: ptr("kitchen tablet")})
	require.NoError(t, err)
	assert.True(t, st.Session.Active)

	ss, err := h.session.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kitchen tablet", ss.Device.Name)
	assert.NotEmpty(t, ss.Device.ID)

	after := h.transport.Stats()
	assert.Greater(t, after.Starts, before.Starts, "advertisement should restart with the new name")
	ad, ok := h.transport.Advertising()
	require.True(t, ok)
	assert.Equal(t, "kitchen tablet", ad.DeviceName)
}

func TestController_AllowedContacts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()
	ctx := context.Background()

	ids, err := h.session.AllowedContacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, h.session.SetAllowedContacts(ctx, []string{"b", "a"}))
	ids, err = h.session.AllowedContacts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, h.session.DownloadContacts(ctx, true))
}

func TestController_CanceledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.session.Advertising(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
