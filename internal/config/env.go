package config

import (
	"os"
	"strings"
)

// Environment flags controlling ancillary importer/runner behavior.
const (
	EnvDevMode       = "FINIEX_DEV_MODE"
	EnvDebug         = "FINIEX_DEBUG"
	EnvMoveFiles     = "FINIEX_MOVE_FILES"
	EnvDeleteOnError = "FINIEX_DELETE_ON_ERROR"
)

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// DevMode reports whether developer mode is enabled.
func DevMode() bool { return boolEnv(EnvDevMode) }

// Debug reports whether debug behavior is forced via environment.
func Debug() bool { return boolEnv(EnvDebug) }

// MoveFiles reports whether the importer should move source files.
func MoveFiles() bool { return boolEnv(EnvMoveFiles) }

// DeleteOnError reports whether partially written artifacts are removed
// on failure.
func DeleteOnError() bool { return boolEnv(EnvDeleteOnError) }
