// Package version reports the build version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set at link time:
//
//	go build -ldflags "-X github.com/ShayCichocki/autopilot/internal/version.Version=v1.2.0"
var Version = ""

// Get returns the linked version, then the module version from build info,
// then "dev".
func Get() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
