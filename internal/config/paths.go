package config

import (
	"os"
	"path/filepath"
)

// DataDirName is the per-user directory holding the default SQLite database
const DataDirName = ".visiontrack"

// DefaultDataDir returns ~/.visiontrack, or ./.visiontrack when the home
// directory cannot be determined.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return DataDirName
	}
	return filepath.Join(homeDir, DataDirName)
}

// DefaultSQLitePath returns the default location of the tracker database
func DefaultSQLitePath() string {
	return filepath.Join(DefaultDataDir(), "tracker.db")
}

// EnsureParentDir creates the directory that will contain path
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
