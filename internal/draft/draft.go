// Package draft stores the single pending, unconfirmed next entry of a
// project's ledger.
//
// Drafts live under the policy's draft root as
// <project>_TRUTH_V<version>_DRAFT.txt. They are independent of the ledger
// until a confirm consumes one.
package draft

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/violation"
)

var nameRe = regexp.MustCompile(`^(.+)_TRUTH_V(\d+)_DRAFT\.txt$`)

// ErrExists is returned by [Store.Write] when a pending draft would be
// overwritten without explicit permission. It matches
// [violation.ErrDraftConflict].
var ErrExists = &violation.Error{Kind: violation.ErrDraftConflict, Msg: "draft already exists (overwrite not confirmed)"}

// Draft identifies a draft file.
type Draft struct {
	Project string
	Version int
	Path    string
}

// Name returns the draft file name for project and version.
func Name(project string, version int) string {
	return project + "_TRUTH_V" + strconv.Itoa(version) + "_DRAFT.txt"
}

// ParseName extracts project and version from a draft file name.
func ParseName(name string) (string, int, bool) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}

	v, err := strconv.Atoi(m[2])
	if err != nil || v < 1 {
		return "", 0, false
	}

	return m[1], v, true
}

// Store manages drafts in Dir.
type Store struct {
	fs  fs.FS
	dir string
}

// NewStore returns a Store for drafts in dir (absolute).
func NewStore(fsys fs.FS, dir string) *Store {
	return &Store{fs: fsys, dir: dir}
}

// Dir returns the draft directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of the draft for project and version.
func (s *Store) Path(project string, version int) string {
	return filepath.Join(s.dir, Name(project, version))
}

// List returns every draft of project, ordered by version ascending.
func (s *Store) List(project string) ([]Draft, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list drafts: %w", err)
	}

	var out []Draft

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		p, v, ok := ParseName(e.Name())
		if !ok || p != project {
			continue
		}

		out = append(out, Draft{Project: p, Version: v, Path: filepath.Join(s.dir, e.Name())})
	}

	slices.SortFunc(out, func(a, b Draft) int { return a.Version - b.Version })

	return out, nil
}

// FindPending returns the highest-versioned draft of project, or nil.
func (s *Store) FindPending(project string) (*Draft, error) {
	drafts, err := s.List(project)
	if err != nil {
		return nil, err
	}

	if len(drafts) == 0 {
		return nil, nil
	}

	d := drafts[len(drafts)-1]

	return &d, nil
}

// Write stores text as the draft for project and version and returns its
// path.
//
// Without overwrite, any existing draft of the project is a conflict
// ([ErrExists]). With overwrite, the existing drafts are replaced so at
// most one draft remains.
func (s *Store) Write(project string, version int, text string, overwrite bool) (string, error) {
	existing, err := s.List(project)
	if err != nil {
		return "", err
	}

	if len(existing) > 0 && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrExists, existing[len(existing)-1].Path)
	}

	err = s.fs.MkdirAll(s.dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create draft dir: %w", err)
	}

	path := s.Path(project, version)

	err = s.fs.WriteFileAtomic(path, []byte(text), 0o644)
	if err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}

	for _, d := range existing {
		if d.Path == path {
			continue
		}

		err = s.Delete(d.Path)
		if err != nil {
			return "", err
		}
	}

	return path, nil
}

// Read returns the draft text.
func (s *Store) Read(d *Draft) (string, error) {
	data, err := s.fs.ReadFile(d.Path)
	if err != nil {
		return "", fmt.Errorf("read draft: %w", err)
	}

	return string(data), nil
}

// Replace rewrites an existing draft in place.
func (s *Store) Replace(d *Draft, text string) error {
	err := s.fs.WriteFileAtomic(d.Path, []byte(text), 0o644)
	if err != nil {
		return fmt.Errorf("write draft: %w", err)
	}

	return nil
}

// Delete removes the draft at path. Deleting a missing draft is not an error.
func (s *Store) Delete(path string) error {
	err := s.fs.Remove(path)
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("delete draft: %w", err)
	}

	return nil
}

// Bind returns the pending draft that may be confirmed on top of version
// current. No pending draft, or a pending draft for any version other than
// current+1, is a DraftConflict.
func (s *Store) Bind(project string, current int) (*Draft, error) {
	d, err := s.FindPending(project)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, violation.New(violation.ErrDraftConflict,
			"no pending draft for %s (expected %s)", project, Name(project, current+1))
	}

	if d.Version != current+1 {
		return nil, violation.At(violation.ErrDraftConflict, d.Path, 0,
			"pending draft is TRUTH_V%d but ledger is at TRUTH_V%d (expected TRUTH_V%d)", d.Version, current, current+1)
	}

	return d, nil
}
