// Package paths resolves configuration and root directory locations and
// owns the on-disk layout of the two study roots.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir        = "BLINDKIT_CONFIG_DIR"
	EnvBlinderRoot      = "BLINDKIT_BLINDER_ROOT"
	EnvExperimenterRoot = "BLINDKIT_EXPERIMENTER_ROOT"
)

// Subdirectories created under each root on init.
var (
	BlinderSubdirs      = []string{"configs", "labels", "logs", "media/photos", "archives", "audit"}
	ExperimenterSubdirs = []string{"configs", "receipts", "logs", "media/photos", "anatomy_blinded", "anatomy_working", "provenance", "audit"}
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration
// directory.
//
// Linux:   $XDG_CONFIG_HOME/blindkit (fallback ~/.config/blindkit)
// macOS:   ~/Library/Application Support/blindkit
// Windows: %APPDATA%/blindkit
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "blindkit"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "blindkit"), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "blindkit"), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > BLINDKIT_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveRoot returns a root directory following the precedence chain:
// flag > config.yaml value > env override. An empty result is valid; a
// command that requires the root rejects it with a user error.
func ResolveRoot(flag, configValue, envName string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(envName); env != "" {
		return filepath.Abs(env)
	}
	return "", nil
}

// EnsureLayout creates the standard subdirectories under root.
func EnsureLayout(root string, subdirs []string) error {
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}
