package apikit

import (
	"fmt"
	"runtime"
)

// Build metadata. Version tracks releases; GitCommit and BuildDate are
// stamped by the release pipeline via -ldflags.
var (
	Version   = "v0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns a single-line description of this build.
func GetVersion() string {
	return fmt.Sprintf("apikit %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// GetVersionInfo returns build metadata as key/value pairs suitable for
// structured logging.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
