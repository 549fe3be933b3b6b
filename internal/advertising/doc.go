// Package advertising decides when this device broadcasts its presence to
// nearby devices.
//
// The decision is a pure function of a Conditions snapshot (see Evaluate).
// The Machine gathers the snapshot from its Environment, Preferences and
// registered receive surfaces, and drives a Transport so that the active
// Session always matches the evaluated target. Equal targets never cause a
// stop/start pair; different targets always stop before starting.
package advertising
