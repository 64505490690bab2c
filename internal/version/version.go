// Package version tracks build metadata for the application.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

const devVersion = "dev"

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var (
	mu      sync.RWMutex
	current = withDefaults(Info{}, readBuildInfo)
)

// Set records metadata stamped through -ldflags. Fields left empty are
// filled from the module build info embedded by the Go toolchain.
func Set(v Info) {
	v = withDefaults(v, readBuildInfo)

	mu.Lock()
	defer mu.Unlock()
	current = v
}

// Current returns the build metadata served on /version.
func Current() Info {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func withDefaults(v Info, buildInfo func() (*debug.BuildInfo, bool)) Info {
	v.GoVersion = runtime.Version()

	if bi, ok := buildInfo(); ok && bi != nil {
		if v.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v.Version = bi.Main.Version
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if v.Commit == "" {
					v.Commit = setting.Value
				}
			case "vcs.time":
				if v.BuildTime == "" {
					v.BuildTime = setting.Value
				}
			}
		}
	}

	if v.Version == "" {
		v.Version = devVersion
	}
	return v
}
