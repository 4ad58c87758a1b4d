// Package version reports what binary is running.
//
// Release builds stamp the variables through ldflags:
//
//	go build -ldflags "-X github.com/ErgunUral/BorsaVerileri2025-sub001/internal/version.Version=1.0.0 \
//	                   -X github.com/ErgunUral/BorsaVerileri2025-sub001/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/ErgunUral/BorsaVerileri2025-sub001/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/quoted
//
// Unstamped builds fall back to the VCS metadata the Go toolchain embeds.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set via ldflags; empty means unstamped.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

const unknown = "unknown"

// Info is the version reported by the health endpoint and the startup log.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Modified  bool   `json:"modified,omitempty"` // built from a dirty tree
}

var readBuildInfo = debug.ReadBuildInfo

// Get merges the ldflags values with embedded build info. Stamped values win.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := readBuildInfo(); ok {
		info = merge(info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

func merge(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String formats Get for logs and --version style output.
func String() string {
	info := Get()
	s := info.Version + " (" + info.Commit
	if info.Modified {
		s += "-dirty"
	}
	return s + ") built " + info.BuildTime + " with " + info.GoVersion
}
