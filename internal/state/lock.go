package state

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StaleLockAge is how old a lock file written on another host, or one whose
// owner cannot be read, must be before it is broken. A lock held by a live
// process on this host is never broken.
const StaleLockAge = 24 * time.Hour

// ErrLocked is returned when another process holds the state lock.
var ErrLocked = errors.New("state is locked by another process")

// lockOwner is the process recorded in a lock file.
type lockOwner struct {
	pid  int
	host string
}

// Lock acquires a file lock on the state to prevent concurrent modifications.
func (m *Manager) Lock(ctx context.Context) error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if abandoned(lockPath) {
		os.Remove(lockPath)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return fmt.Errorf("%w (lock file: %s). If this is an error, remove the lock file manually", ErrLocked, lockPath)
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	host, _ := os.Hostname()
	if _, err := fmt.Fprintf(f, "pid=%d\nhost=%s\ntime=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Unlock releases the state lock.
func (m *Manager) Unlock(ctx context.Context) error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}

// abandoned reports whether the lock file at path may be broken: its owner
// ran on this host and has exited, or it cannot be attributed and is older
// than StaleLockAge.
func abandoned(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	owner, ok := parseLockOwner(raw)
	host, _ := os.Hostname()
	if ok && owner.host == host {
		return !processAlive(owner.pid)
	}
	return time.Since(info.ModTime()) > StaleLockAge
}

func parseLockOwner(raw []byte) (lockOwner, bool) {
	var owner lockOwner
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		key, value, _ := strings.Cut(sc.Text(), "=")
		switch key {
		case "pid":
			pid, err := strconv.Atoi(value)
			if err != nil || pid <= 0 {
				return lockOwner{}, false
			}
			owner.pid = pid
		case "host":
			owner.host = value
		}
	}
	return owner, owner.pid > 0
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
