package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the directory the journal uses when --data-dir is
// given without a value. It follows XDG, then the platform convention, then a
// dotdir in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./queuekit-data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "queuekit-bull")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "QueueKit", "bull")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "QueueKit", "bull")
		}
	}
	if isDir(filepath.Join(homeDir, ".local", "share")) {
		return filepath.Join(homeDir, ".local", "share", "queuekit-bull")
	}
	return filepath.Join(homeDir, ".queuekit-bull")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
