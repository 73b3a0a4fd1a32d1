package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [Locker.TryLock] when another process holds
// the lock.
var ErrWouldBlock = errors.New("lock would block")

// Locker provides advisory exclusive locks using flock(2).
//
// flock applies to an inode, not a pathname. Use a dedicated lock file that is
// never replaced or unlinked while locks may be held.
//
// This implementation is Unix-only.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu   sync.Mutex
	file File
}

// Close releases the lock and closes the underlying file descriptor.
// Close is idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

// TryLock attempts to acquire an exclusive lock on path without blocking.
//
// The lock file and its parent directories are created if missing. Returns
// [ErrWouldBlock] if another process holds the lock.
func (l *Locker) TryLock(path string) (*Lock, error) {
	err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", ErrWouldBlock, path)
		}

		return nil, fmt.Errorf("flock: %w", err)
	}

	return &Lock{file: file}, nil
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the call.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
