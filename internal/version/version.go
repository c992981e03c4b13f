package version

import (
	"runtime"
	"runtime/debug"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is the build metadata reported by the version command and the
// OpenTelemetry resource.
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
}

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// Get returns the build metadata. When the binary was built without
// ldflags, the VCS revision recorded by the Go toolchain fills the commit.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion(),
	}
	if info.GitCommit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				if info.BuildTime == "unknown" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}
