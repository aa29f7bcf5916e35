// Package version reports the relay build.
//
//nolint:revive
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Overridden with -ldflags "-X github.com/memohai/relay/internal/version.Version=..." at build time.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info is the build metadata printed by `relay version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

var (
	infoOnce sync.Once
	info     Info
)

// Get returns the build metadata, falling back to the VCS stamp embedded by
// the Go toolchain when ldflags were not set.
func Get() Info {
	infoOnce.Do(func() {
		info = Info{
			Version:   Version,
			Commit:    CommitHash,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
		}
		if info.Commit != "" {
			return
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.Commit = s.Value
				case "vcs.time":
					if info.BuildTime == "" {
						info.BuildTime = s.Value
					}
				}
			}
		}
	})
	return info
}

// GetInfo returns "version (shortcommit)".
func GetInfo() string {
	i := Get()
	if i.Commit == "" {
		return i.Version
	}
	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return i.Version + " (" + short + ")"
}
