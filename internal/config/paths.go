package config

import (
	"os"
	"path/filepath"
	"strings"
)

// envDataDir anchors relative logs and backups paths, e.g. a mounted volume.
const envDataDir = "DIARY_DATA_DIR"

// LogDir is where nativelog writes its daily files.
func (c *AppConfig) LogDir() string {
	if c == nil {
		return runtimeDir("", "logs")
	}
	return runtimeDir(c.Paths.Logs, "logs")
}

// BackupDir holds backup archives.
func (c *AppConfig) BackupDir() string {
	if c == nil {
		return runtimeDir("", "backups")
	}
	return runtimeDir(c.Paths.Backups, "backups")
}

// runtimeDir resolves a configured directory. Relative paths, and the
// fallback name when nothing is configured, hang off dataRoot.
func runtimeDir(configured, fallback string) string {
	dir := strings.TrimSpace(configured)
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(dataRoot(), dir)
}

// dataRoot is $DIARY_DATA_DIR, else the directory of the running binary with
// symlinks resolved, else the working directory.
func dataRoot() string {
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		return filepath.Clean(v)
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
