// Package enumerate is the canonical repository file listing.
//
// Every component that needs "the files of the repository" (archives,
// backups, the derived index, the hygiene scan) calls [List]. There is no
// other directory walk in the module, so what is indexed, archived and
// verified can never drift apart.
package enumerate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
)

// FileRecord is one included file.
type FileRecord struct {
	// Path is slash-separated and relative to the walk root.
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// Options selects the policy overlay for a walk.
type Options struct {
	policy.Match

	// SkipHash leaves FileRecord.SHA256 empty.
	SkipHash bool
}

// List walks root and returns every regular file the policy includes, sorted
// by lower-cased path with the exact path as tie-break.
//
// .git is never descended. Excluded directories are pruned. Symlinks and other
// non-regular entries are skipped. Read errors propagate.
func List(ctx context.Context, fsys fs.FS, root string, pol *policy.Policy, opts Options) ([]FileRecord, error) {
	var out []FileRecord

	err := walk(ctx, fsys, root, "", pol, opts, &out)
	if err != nil {
		return nil, err
	}

	Sort(out)

	return out, nil
}

func walk(ctx context.Context, fsys fs.FS, root, dir string, pol *policy.Policy, opts Options, out *[]FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := fsys.ReadDir(filepath.Join(root, filepath.FromSlash(dir)))
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	for _, entry := range entries {
		rel := path.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			if pol.ExcludesDir(rel, opts.Match) {
				continue
			}

			err := walk(ctx, fsys, root, rel, pol, opts, out)
			if err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if pol.Excludes(rel, opts.Match) {
				continue
			}

			rec, err := record(fsys, root, rel, opts.SkipHash)
			if err != nil {
				return err
			}

			*out = append(*out, rec)
		}
	}

	return nil
}

func record(fsys fs.FS, root, rel string, skipHash bool) (FileRecord, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))

	if skipHash {
		info, err := fsys.Stat(abs)
		if err != nil {
			return FileRecord{}, fmt.Errorf("stat %q: %w", rel, err)
		}

		return FileRecord{Path: rel, Size: info.Size()}, nil
	}

	f, err := fsys.Open(abs)
	if err != nil {
		return FileRecord{}, fmt.Errorf("open %q: %w", rel, err)
	}

	defer func() { _ = f.Close() }()

	h := sha256.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return FileRecord{}, fmt.Errorf("hash %q: %w", rel, err)
	}

	return FileRecord{Path: rel, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Sort orders records by lower-cased path, then exact path.
func Sort(recs []FileRecord) {
	slices.SortFunc(recs, func(a, b FileRecord) int {
		if c := strings.Compare(strings.ToLower(a.Path), strings.ToLower(b.Path)); c != 0 {
			return c
		}

		return strings.Compare(a.Path, b.Path)
	})
}

// Paths returns the record paths in order.
func Paths(recs []FileRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Path
	}

	return out
}

// TextFiles returns the records the hygiene scan covers: text extensions per
// policy, minus exempted files.
func TextFiles(recs []FileRecord, pol *policy.Policy) []FileRecord {
	var out []FileRecord

	for _, r := range recs {
		if pol.IsText(r.Path) && !pol.HygieneExempted(r.Path) {
			out = append(out, r)
		}
	}

	return out
}

// Under reports whether any record lives below folder.
func Under(recs []FileRecord, folder string) bool {
	prefix := strings.TrimSuffix(folder, "/") + "/"

	return slices.ContainsFunc(recs, func(r FileRecord) bool {
		return strings.HasPrefix(r.Path, prefix)
	})
}
