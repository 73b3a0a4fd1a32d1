// Package index builds the derived, non-authoritative repository index: a
// file map with content digests, a per-extension source listing and the
// detected entrypoints.
//
// The index is advisory. Nothing reads it back as input; verification only
// checks that the required artifacts exist and have the expected JSON shape.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/calvinalkan/truth/internal/enumerate"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

// Artifact file names inside the index root.
const (
	FileMap     = "_file_map.json"
	SourceIndex = "source_index.json"
	Entrypoints = "entrypoints.json"
	Listing     = "_ai_index_INDEX.txt"
	Readme      = "_ai_index_README.txt"
	Why         = "_WHY.txt"
)

// Required lists the artifacts [Index.Verify] insists on.
var Required = []string{FileMap, SourceIndex, Entrypoints, Listing}

const readmeText = `This folder is generated. Do not edit.

_file_map.json      every enumerated file with size, sha256 and blake3
source_index.json   enumerated files grouped by extension
entrypoints.json    detected program entrypoints
_ai_index_INDEX.txt name, size and sha256 of each artifact here
`

const whyText = `The index is a derived view of the repository for tooling.
It is rebuilt after every ledger mutation and is never authoritative.
`

// FileEntry is one _file_map.json record.
type FileEntry struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Index rebuilds and verifies the derived index of the repository at root.
type Index struct {
	fs     fs.FS
	root   string
	policy *policy.Policy
	log    *slog.Logger
}

// New returns an Index for the repository at root.
func New(fsys fs.FS, root string, pol *policy.Policy, log *slog.Logger) *Index {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Index{fs: fsys, root: root, policy: pol, log: log}
}

// Dir returns the absolute index root.
func (x *Index) Dir() string {
	return filepath.Join(x.root, x.policy.IndexRoot)
}

// stagingDir and prevDir live under the archive root, which the enumerator
// never lists, so a crash mid-rebuild cannot leak them into archives.
func (x *Index) stagingDir() string {
	return filepath.Join(x.root, x.policy.ZipRoot, ".index_staging")
}

func (x *Index) prevDir() string {
	return filepath.Join(x.root, x.policy.ZipRoot, ".index_prev")
}

// Rebuild regenerates every artifact from the current tree. Artifacts are
// written to a staging directory and swapped in with renames.
func (x *Index) Rebuild(ctx context.Context) error {
	recs, err := enumerate.List(ctx, x.fs, x.root, x.policy, enumerate.Options{})
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	fileMap := make(map[string]FileEntry, len(recs))

	for _, r := range recs {
		sum, err := x.blake3(r.Path)
		if err != nil {
			return err
		}

		fileMap[r.Path] = FileEntry{Size: r.Size, SHA256: r.SHA256, BLAKE3: sum}
	}

	bySource := make(map[string][]string)
	for _, r := range recs {
		ext := strings.ToLower(path.Ext(r.Path))
		if ext == "" {
			ext = "(none)"
		}

		bySource[ext] = append(bySource[ext], r.Path)
	}

	entry := make([]string, 0)
	for _, r := range recs {
		if isEntrypoint(r.Path) {
			entry = append(entry, r.Path)
		}
	}

	artifacts := map[string][]byte{
		Readme: []byte(readmeText),
		Why:    []byte(whyText),
	}

	for name, v := range map[string]any{FileMap: fileMap, SourceIndex: bySource, Entrypoints: entry} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("index: encode %s: %w", name, err)
		}

		artifacts[name] = append(data, '\n')
	}

	artifacts[Listing] = listing(artifacts)

	err = x.stage(artifacts)
	if err != nil {
		return err
	}

	err = x.swap()
	if err != nil {
		return err
	}

	x.log.Info("index rebuilt", "files", len(recs), "entrypoints", len(entry))

	return nil
}

func (x *Index) blake3(rel string) (string, error) {
	f, err := x.fs.Open(filepath.Join(x.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("index: open %s: %w", rel, err)
	}

	defer func() { _ = f.Close() }()

	h := blake3.New()

	_, err = io.Copy(h, f)
	if err != nil {
		return "", fmt.Errorf("index: hash %s: %w", rel, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func isEntrypoint(rel string) bool {
	switch {
	case rel == "main.go", rel == "app/main.py":
		return true
	case strings.HasPrefix(rel, "cmd/") && strings.HasSuffix(rel, "/main.go"):
		return strings.Count(rel, "/") == 2
	}

	return false
}

// listing renders "<name>\t<size>\t<sha256>" for every artifact, sorted.
func listing(artifacts map[string][]byte) []byte {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}

	slices.Sort(names)

	var b strings.Builder

	for _, name := range names {
		sum := sha256.Sum256(artifacts[name])
		b.WriteString(name + "\t" + strconv.Itoa(len(artifacts[name])) + "\t" + hex.EncodeToString(sum[:]) + "\n")
	}

	return []byte(b.String())
}

func (x *Index) stage(artifacts map[string][]byte) error {
	dir := x.stagingDir()

	err := x.fs.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("index: clear staging: %w", err)
	}

	err = x.fs.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("index: create staging: %w", err)
	}

	for name, data := range artifacts {
		err = x.fs.WriteFileAtomic(filepath.Join(dir, name), data, 0o644)
		if err != nil {
			return fmt.Errorf("index: write %s: %w", name, err)
		}
	}

	return nil
}

func (x *Index) swap() error {
	dir, prev := x.Dir(), x.prevDir()

	err := x.fs.RemoveAll(prev)
	if err != nil {
		return fmt.Errorf("index: clear previous: %w", err)
	}

	exists, err := x.fs.Exists(dir)
	if err != nil {
		return fmt.Errorf("index: stat: %w", err)
	}

	if exists {
		err = x.fs.Rename(dir, prev)
		if err != nil {
			return fmt.Errorf("index: move previous aside: %w", err)
		}
	}

	err = x.fs.Rename(x.stagingDir(), dir)
	if err != nil {
		if exists {
			_ = x.fs.Rename(prev, dir)
		}

		return fmt.Errorf("index: swap in: %w", err)
	}

	err = x.fs.RemoveAll(prev)
	if err != nil {
		return fmt.Errorf("index: remove previous: %w", err)
	}

	return nil
}

// Verify checks that the required artifacts exist and parse with the
// expected shape. Content is not re-derived.
func (x *Index) Verify(_ context.Context) error {
	dir := x.Dir()

	for _, name := range Required {
		ok, err := x.fs.Exists(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("index: stat %s: %w", name, err)
		}

		if !ok {
			return violation.At(violation.ErrIndex, path.Join(x.policy.IndexRoot, name), 0, "missing index artifact")
		}
	}

	var fileMap map[string]json.RawMessage

	err := x.load(FileMap, &fileMap)
	if err != nil {
		return err
	}

	if fileMap == nil {
		return violation.At(violation.ErrIndex, path.Join(x.policy.IndexRoot, FileMap), 0, "must be a JSON object")
	}

	for _, name := range []string{SourceIndex, Entrypoints} {
		var v any

		err = x.load(name, &v)
		if err != nil {
			return err
		}

		switch v.(type) {
		case map[string]any, []any:
		default:
			return violation.At(violation.ErrIndex, path.Join(x.policy.IndexRoot, name), 0, "must be a JSON object or array")
		}
	}

	return nil
}

func (x *Index) load(name string, v any) error {
	rel := path.Join(x.policy.IndexRoot, name)

	data, err := x.fs.ReadFile(filepath.Join(x.Dir(), name))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return violation.At(violation.ErrIndex, rel, 0, "missing index artifact")
		}

		return fmt.Errorf("index: read %s: %w", name, err)
	}

	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))

	err = json.Unmarshal(data, v)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return violation.At(violation.ErrIndex, rel, 0, "must be a JSON object")
		}

		return violation.Wrap(violation.ErrIndex, err, "invalid JSON in %s", rel)
	}

	return nil
}
