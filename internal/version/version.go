// Package version carries build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// SetInfo overrides the non-empty build values.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String renders the single line printed by `tradiecrm version`.
func String() string {
	return fmt.Sprintf("tradiecrm %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// Fields returns build information for structured startup logs.
func Fields() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_time": BuildTime,
		"go":         GoVersion,
	}
}
