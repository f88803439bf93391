package listener

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// lockFileName, pidFileName, and versionFileName are the three sentinel
// files the listener keeps in stateDir (spec.md §6): the lock is an
// advisory unix.Flock, pid/version are plain text read by a second daemon
// to build its "already running" message.
const (
	lockFileName    = "daemon.lock"
	pidFileName     = "daemon.pid"
	versionFileName = "daemon.version"
)

// singleton holds the open lock file descriptor for the lifetime of the
// daemon process; releasing it (via Close) drops the advisory lock.
type singleton struct {
	stateDir string
	file     *os.File
}

// acquireSingleton takes the advisory lock in stateDir or returns an error
// describing the process already holding it, per spec.md §6's "already
// running (pid: ..., version: ...)" startup message.
func acquireSingleton(stateDir, version string) (*singleton, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("listener: create state dir: %w", err)
	}

	lockPath := filepath.Join(stateDir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("listener: open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		pid := readTrimmed(filepath.Join(stateDir, pidFileName))
		ver := readTrimmed(filepath.Join(stateDir, versionFileName))
		f.Close()
		return nil, fmt.Errorf("already running (pid: %s, version: %s)", pid, ver)
	}

	if err := os.WriteFile(filepath.Join(stateDir, pidFileName), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("listener: write pid file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, versionFileName), []byte(version), 0o644); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("listener: write version file: %w", err)
	}

	return &singleton{stateDir: stateDir, file: f}, nil
}

func (s *singleton) release() {
	unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	s.file.Close()
	os.Remove(filepath.Join(s.stateDir, pidFileName))
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(b))
}
