// Package pidfile records the bank server's process id on disk so init
// scripts and operators can find or signal the single running instance.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile represents a PID file
type Pidfile struct {
	path string
}

// New creates a new PID file instance
func New(path string) *Pidfile {
	return &Pidfile{path: path}
}

// Write writes the current PID to the PID file, refusing to clobber a
// file that names another live process.
func (p *Pidfile) Write() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("pidfile %s already held by running process %d", p.path, pid)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Read reads the PID from the PID file
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Remove removes the PID file
func (p *Pidfile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path
func (p *Pidfile) Path() string {
	return p.path
}

// processAlive reports whether a process with the given pid can be
// signaled. Best effort; a false positive only blocks startup.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
