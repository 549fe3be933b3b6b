// Package versions compares the build of a client with the daemon it talks to.
package versions

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Skew describes how a daemon's version relates to the client's
type Skew int

// Version skews
const (
	// SkewNone means both builds carry the same release version
	SkewNone Skew = iota
	// SkewDaemonOlder means the daemon predates the client
	SkewDaemonOlder
	// SkewDaemonNewer means the daemon is newer than the client
	SkewDaemonNewer
	// SkewUnknown means at least one side is not a release build
	SkewUnknown
)

// CompareBuilds compares a client release with a daemon release. Development
// builds such as "dev" or "build-1a2b3c4d" are not comparable.
func CompareBuilds(client, daemon string) Skew {
	clientVer, errClient := semver.StrictNewVersion(trimV(client))
	daemonVer, errDaemon := semver.StrictNewVersion(trimV(daemon))
	if errClient != nil || errDaemon != nil {
		return SkewUnknown
	}

	switch daemonVer.Compare(clientVer) {
	case -1:
		return SkewDaemonOlder
	case 1:
		return SkewDaemonNewer
	default:
		return SkewNone
	}
}

// Warning returns a human readable warning, or "" when there is nothing to report
func (s Skew) Warning(client, daemon string) string {
	switch s {
	case SkewDaemonOlder:
		return fmt.Sprintf("daemon %s is older than this client %s; restart the daemon after upgrading", daemon, client)
	case SkewDaemonNewer:
		return fmt.Sprintf("daemon %s is newer than this client %s", daemon, client)
	default:
		return ""
	}
}

func trimV(v string) string {
	if len(v) > 0 && v[0] == 'v' {
		return v[1:]
	}
	return v
}
