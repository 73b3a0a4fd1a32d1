// Package fs provides the filesystem abstraction used by every component that
// touches the repository tree.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] and atomic replacement
//   - [Faulty]: testing wrapper that fails selected operations
//   - [Locker]: advisory exclusive lock on a lock file
//
// Example usage:
//
//	fsys := fs.NewReal()
//	data, err := fsys.ReadFile("TRUTH.md")
//	if err != nil {
//	    return err
//	}
//
//	err = fsys.WriteFileAtomic("TRUTH.md", append(data, entry...), 0o644)
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File]. [io.ReaderAt] is included so zip
// readers can work on handles returned by any [FS].
type File interface {
	io.ReadWriteCloser
	io.Seeker
	io.ReaderAt

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for low-level operations like flock.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines filesystem operations for reading, writing, and managing files.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection. Paths use OS semantics.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for writing. See [os.Create].
	Create(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with data using a temp file + rename,
	// so a crash never leaves a half-written file behind.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info, following symlinks. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Lstat returns file info without following symlinks. See [os.Lstat].
	Lstat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	RemoveAll(path string) error

	// Rename moves/renames a file or directory. See [os.Rename].
	// Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
