package buildinfo

import "runtime/debug"

// Set via -ldflags, e.g.
// go build -ldflags "-X github.com/gilby125/flight-connections/pkg/buildinfo.Version=v1.2.3 -X github.com/gilby125/flight-connections/pkg/buildinfo.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the build identifiers. When Commit was not injected it falls
// back to the VCS revision stamped by the Go toolchain.
func Info() map[string]string {
	commit := Commit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"date":    Date,
	}
}
