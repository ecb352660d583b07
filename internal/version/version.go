// Package version exposes build information for the hoofbeat binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo contains version and build information.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information, falling back to the module build
// info embedded by the toolchain when ldflags were not set.
func Get() BuildInfo {
	v := Version
	commit := GitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		if commit == "unknown" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
					commit = setting.Value[:7]
				}
			}
		}
	}
	return BuildInfo{
		Version:   v,
		GitCommit: commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a one-line version summary.
func (b BuildInfo) String() string {
	return fmt.Sprintf("hoofbeat %s (commit %s, %s, %s)", b.Version, b.GitCommit, b.GoVersion, b.Platform)
}
