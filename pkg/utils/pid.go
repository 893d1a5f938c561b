package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDManager handles the PID file of a running hub
type PIDManager struct {
	pidFile string
}

// NewPIDManager creates a new PIDManager instance
func NewPIDManager(pidFile string) *PIDManager {
	return &PIDManager{pidFile: pidFile}
}

// WritePID writes the current process ID to the PID file
func (p *PIDManager) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(p.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(p.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// ReadPID returns the process ID recorded in the PID file
func (p *PIDManager) ReadPID() (int, error) {
	data, err := os.ReadFile(p.pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID file %s: %w", p.pidFile, err)
	}
	return pid, nil
}

// RemovePID removes the PID file. A missing file is not an error.
func (p *PIDManager) RemovePID() error {
	if err := os.Remove(p.pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetPIDFile returns the PID file path
func (p *PIDManager) GetPIDFile() string {
	return p.pidFile
}
