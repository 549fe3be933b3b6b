package advertising

// Evaluate returns the target session for c and the reason for it. Rules are
// checked in priority order and the first match wins.
func Evaluate(c Conditions) (Session, Reason) {
	switch {
	case c.ScreenLocked:
		return Session{}, ReasonScreenLocked
	case !c.BluetoothPresent && !c.Connection.IsLAN():
		return Session{}, ReasonNoTransport
	case !c.Enabled:
		return Session{}, ReasonDisabled
	case c.Scanning:
		return Session{}, ReasonScanning
	case c.Transferring:
		return Session{}, ReasonTransferring
	case c.ForegroundSurfaces == 0 && c.BackgroundSurfaces == 0:
		return Session{}, ReasonNoSurfaces
	case !c.Visibility.IsContactVisible() && c.ForegroundSurfaces == 0:
		return Session{}, ReasonNotVisible
	}

	power := PowerLevelLow
	if c.ForegroundSurfaces > 0 {
		power = PowerLevelHigh
	}
	return Session{Active: true, PowerLevel: power, DataUsage: c.DataUsage}, ReasonAdvertising
}
