package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescale/dualpane/internal/constants"
)

// DefaultConfigPath returns ~/.config/dualpane/config (or the platform equivalent).
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("failed to get home directory: %w", herr)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "dualpane", "config"), nil
}

// DefaultDownloadDir returns $HOME/temporary, falling back to the temp dir.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), constants.DefaultDownloadDirName)
	}
	return filepath.Join(home, constants.DefaultDownloadDirName)
}

// LogDirectory returns the directory used for log files.
func LogDirectory() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dualpane-logs")
	}
	return filepath.Join(configDir, "dualpane", "logs")
}

// EnsureDir creates dir with owner-only permissions if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
