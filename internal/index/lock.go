package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var (
	// ErrBuildInProgress is returned when another builder holds the lock.
	ErrBuildInProgress = errors.New("another index build is in progress")

	// ErrLockTimeout is returned when waiting for the build lock timed out.
	ErrLockTimeout = errors.New("timed out waiting for the build lock")
)

// BuildLock serializes index builds across processes with flock(2).
// The kernel drops the lock if the holder dies, so stale lock files are harmless.
type BuildLock struct {
	path string
	file *os.File
}

// NewBuildLock returns a lock backed by the file at path. Nothing is opened yet.
func NewBuildLock(path string) *BuildLock {
	return &BuildLock{path: path}
}

// TryAcquire takes the lock without blocking.
// It returns ErrBuildInProgress when another holder has it.
func (l *BuildLock) TryAcquire() error {
	if err := l.open(); err != nil {
		return err
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	}
	l.closeFile()
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return ErrBuildInProgress
	}
	return fmt.Errorf("flock %s: %w", l.path, err)
}

// Acquire waits for the lock until timeout elapses or ctx is done.
func (l *BuildLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			l.closeFile()
			return fmt.Errorf("flock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			l.closeFile()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			l.closeFile()
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *BuildLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock %s: %w", l.path, err)
	}
	return closeErr
}

// Held reports whether this instance currently holds the lock.
func (l *BuildLock) Held() bool {
	return l.file != nil
}

func (l *BuildLock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}

func (l *BuildLock) closeFile() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
