package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"sync"
)

// Op identifies an [FS] operation that [Faulty] can fail.
type Op string

// Valid Op values for [Fault.Op].
const (
	OpOpen            Op = "open"
	OpCreate          Op = "create"
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpReadDir         Op = "readdir"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
	OpLstat           Op = "lstat"
	OpExists          Op = "exists"
	OpRemove          Op = "remove"
	OpRemoveAll       Op = "removeall"
	OpRename          Op = "rename"
)

// ErrInjected is the default error returned by a triggered [Fault].
var ErrInjected = errors.New("injected fault")

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Op   Op
	Path string
	Err  error
}

// Error returns "<op> <path>: <err>".
func (e *InjectedError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Fault describes one failure to inject.
type Fault struct {
	// Op is the operation to fail.
	Op Op

	// Match selects the paths to fail. For [OpRename] it receives the
	// destination path. Nil matches every path.
	Match func(path string) bool

	// Err is returned (wrapped in [InjectedError]). Defaults to [ErrInjected].
	Err error

	// Times limits how many calls fail. Zero means every matching call.
	Times int
}

// Faulty wraps an [FS] and fails operations selected by [Fault] rules.
// Operations without a matching rule pass through to the wrapped FS.
//
// Faulty is safe for concurrent use.
type Faulty struct {
	inner FS

	mu     sync.Mutex
	faults []*faultState
	calls  map[Op]int
}

type faultState struct {
	Fault
	fired int
}

// NewFaulty wraps inner. Panics if inner is nil.
func NewFaulty(inner FS, faults ...Fault) *Faulty {
	if inner == nil {
		panic("fs is nil")
	}

	f := &Faulty{inner: inner, calls: make(map[Op]int)}
	for _, fault := range faults {
		f.Add(fault)
	}

	return f
}

// Add registers another fault rule.
func (f *Faulty) Add(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fault.Err == nil {
		fault.Err = ErrInjected
	}

	f.faults = append(f.faults, &faultState{Fault: fault})
}

// Calls returns how many times op was invoked, including failed calls.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	for _, st := range f.faults {
		if st.Op != op {
			continue
		}

		if st.Match != nil && !st.Match(path) {
			continue
		}

		if st.Times > 0 && st.fired >= st.Times {
			continue
		}

		st.fired++

		return &InjectedError{Op: op, Path: path, Err: &iofs.PathError{Op: string(op), Path: path, Err: st.Err}}
	}

	return nil
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	return f.inner.Open(path)
}

func (f *Faulty) Create(path string) (File, error) {
	if err := f.check(OpCreate, path); err != nil {
		return nil, err
	}

	return f.inner.Create(path)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.inner.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.inner.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFileAtomic, path); err != nil {
		return err
	}

	return f.inner.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.check(OpReadDir, path); err != nil {
		return nil, err
	}

	return f.inner.ReadDir(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.inner.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.inner.Stat(path)
}

func (f *Faulty) Lstat(path string) (os.FileInfo, error) {
	if err := f.check(OpLstat, path); err != nil {
		return nil, err
	}

	return f.inner.Lstat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.inner.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.inner.Remove(path)
}

func (f *Faulty) RemoveAll(path string) error {
	if err := f.check(OpRemoveAll, path); err != nil {
		return err
	}

	return f.inner.RemoveAll(path)
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.check(OpRename, newpath); err != nil {
		return err
	}

	return f.inner.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
