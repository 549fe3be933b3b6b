// Package versions reports the build of nearby-sync binaries.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknown = "unknown"

// Set with -ldflags "-X github.com/stacklok/nearby-sync/pkg/versions.Version=..."
var (
	// Version is the release version, or "dev"
	Version = "dev"
	// Commit is the git revision of the build
	Commit = unknown
	// BuildDate is an RFC 3339 timestamp of the build
	BuildDate = unknown
)

// VersionInfo describes a build
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Release   bool   `json:"release"`
}

// GetVersionInfo returns the version information of the running binary
func GetVersionInfo() VersionInfo {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	return resolve(Version, Commit, BuildDate, settings)
}

// UserAgent returns "<component>/<version> (<os>/<arch>)"
func UserAgent(component string) string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s/%s (%s)", component, info.Version, info.Platform)
}

// resolve fills gaps in the linker-provided values from the VCS stamp. Builds
// without a release version are named after their commit.
func resolve(version, commit, buildDate string, settings []debug.BuildSetting) VersionInfo {
	release := version != "dev"
	if !release {
		for _, s := range settings {
			switch {
			case s.Key == "vcs.revision" && commit == unknown:
				commit = s.Value
			case s.Key == "vcs.time" && buildDate == unknown:
				buildDate = s.Value
			}
		}
		version = "build-" + shortCommit(commit)
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Release:   release,
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
