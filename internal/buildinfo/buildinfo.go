// Package buildinfo exposes the version, commit, and build date stamped into
// the binary. Release builds inject all three via -ldflags -X; binaries built
// without them (go install, go run) are backfilled from the VCS metadata the
// toolchain embeds, so "rover version" stays useful either way.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags -X.
var (
	// Version is the semantic version or git describe output.
	Version = "dev"

	// Commit is the short git commit SHA.
	Commit = "unknown"

	// Date is the UTC build timestamp in RFC3339 format.
	Date = "unknown"
)

// Info holds structured build information suitable for JSON serialization.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetInfo resolves the effective build information. Fields still at their
// defaults are filled from the build settings embedded by the Go toolchain,
// when present.
func GetInfo() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	if info.Commit != "unknown" && info.Date != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withVCSSettings(info, bi.Settings)
	}
	return info
}

// withVCSSettings backfills unknown fields from vcs.* build settings. Values
// injected via ldflags always win.
func withVCSSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortSHA(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		}
	}
	return info
}

func shortSHA(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a human-readable version string.
// Example: "rover v1.4.0 (commit: a1b2c3d, built: 2026-08-01T10:00:00Z)"
func (i Info) String() string {
	return fmt.Sprintf("rover v%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}
