package helper

import (
	"os"
	"path/filepath"
)

const (
	// DefaultConfigDir is the system-wide configuration directory
	DefaultConfigDir = "/etc/castwall"
	// DefaultPIDFile is used when no PID file location is configured
	DefaultPIDFile = "/var/run/castwall.pid"
)

// GetCfgPath returns the path to the configuration file.
//
// Lookup order:
//  1. filename itself when it is absolute
//  2. ./{filename}
//  3. ./configs/{filename}
//  4. /etc/castwall/{filename}
func GetCfgPath(filename string) string {
	if filename == "" {
		panic("filename cannot be empty")
	}
	if filepath.IsAbs(filename) {
		return filename
	}

	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		for _, dir := range []string{cwd, filepath.Join(cwd, "configs")} {
			candidate := filepath.Join(dir, filename)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs
			}
		}
	}
	return filepath.Join(DefaultConfigDir, filename)
}

// GetPIDPath returns where the PID file should be written. Relative names
// resolve against the working directory as long as their parent exists.
func GetPIDPath(filename string) string {
	if filename == "" {
		return DefaultPIDFile
	}
	if filepath.IsAbs(filename) {
		return filename
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return DefaultPIDFile
	}
	abs, err := filepath.Abs(filepath.Join(cwd, filename))
	if err != nil {
		return DefaultPIDFile
	}
	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return DefaultPIDFile
	}
	return abs
}
