package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

// open returns a zip reader over path and a closer for the underlying file.
func open(fsys fs.FS, path string) (*zip.Reader, func(), error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, violation.Wrap(violation.ErrArchiveContract, err, "archive missing: %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()

		return nil, nil, violation.Wrap(violation.ErrArchiveContract, err, "not a zip archive: %s", path)
	}

	return zr, func() { _ = f.Close() }, nil
}

// fileNames returns the non-directory member names, slash-normalized.
func fileNames(zr *zip.Reader) []string {
	var out []string

	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		if strings.TrimSpace(name) == "" || strings.HasSuffix(name, "/") {
			continue
		}

		out = append(out, name)
	}

	return out
}

// checkNesting enforces the nesting and duplicate contract: every member
// lives under "<root>/" and no two members collide case-insensitively.
func checkNesting(archive, root string, names []string) error {
	if len(names) == 0 {
		return violation.At(violation.ErrArchiveContract, archive, 0, "archive is empty")
	}

	prefix := root + "/"
	seen := make(map[string]string, len(names))

	for _, n := range names {
		if !strings.HasPrefix(n, prefix) {
			return violation.At(violation.ErrArchiveContract, archive, 0,
				"member %q not nested under %q", n, prefix)
		}

		key := strings.ToLower(n)
		if prev, ok := seen[key]; ok {
			return violation.At(violation.ErrArchiveContract, archive, 0,
				"duplicate archive path: %q and %q", prev, n)
		}

		seen[key] = n
	}

	return nil
}

// ProjectFromReleaseName extracts the project from a release archive name.
func ProjectFromReleaseName(name string) (string, bool) {
	project, _, ok := strings.Cut(filepath.Base(name), "_TRUTH_V")
	if !ok || project == "" {
		return "", false
	}

	return project, true
}

// ValidateRelease checks a release archive: nested under "<project>/" where
// project comes from the archive name, no duplicate paths, and at least one
// file under each core folder.
func ValidateRelease(fsys fs.FS, path string, coreFolders []string) error {
	project, ok := ProjectFromReleaseName(path)
	if !ok {
		return violation.At(violation.ErrArchiveContract, path, 0, "release archive name not recognized")
	}

	zr, closeFn, err := open(fsys, path)
	if err != nil {
		return err
	}
	defer closeFn()

	names := fileNames(zr)

	err = checkNesting(path, project, names)
	if err != nil {
		return err
	}

	for _, core := range coreFolders {
		prefix := project + "/" + strings.Trim(core, "/") + "/"
		if !slices.ContainsFunc(names, func(n string) bool { return strings.HasPrefix(n, prefix) }) {
			return violation.At(violation.ErrArchiveContract, path, 0, "missing expected core folder %s/", core)
		}
	}

	return nil
}

// CheckSlim reports members of a slim archive that the slim overlay should
// have excluded. Up to 25 offenders are listed.
func CheckSlim(fsys fs.FS, path string, pol *policy.Policy) error {
	zr, closeFn, err := open(fsys, path)
	if err != nil {
		return err
	}
	defer closeFn()

	var offenders []string

	for _, n := range fileNames(zr) {
		_, inner, ok := strings.Cut(n, "/")
		if !ok {
			inner = n
		}

		if why := pol.SlimForbidden(inner); why != "" {
			offenders = append(offenders, n+" ("+why+")")
		}
	}

	if len(offenders) == 0 {
		return nil
	}

	sample := offenders[:min(len(offenders), 25)]
	more := ""

	if len(offenders) > len(sample) {
		more = fmt.Sprintf(" and %d more", len(offenders)-len(sample))
	}

	return violation.At(violation.ErrArchiveContract, path, 0,
		"slim archive contains forbidden content: %s%s", strings.Join(sample, ", "), more)
}

// BackupReport summarizes a backup validation.
type BackupReport struct {
	OK         bool     `json:"ok"`
	ZipPath    string   `json:"zip_path"`
	Root       string   `json:"root,omitempty"`
	EntryCount int      `json:"entry_count"`
	FileCount  int      `json:"file_count"`
	Errors     []string `json:"errors,omitempty"`
}

// ValidateBackup checks a backup archive: a single top-level folder, no
// duplicate paths, a manifest present, manifest entries and archived files
// matching one to one, and every file's sha256 and size matching the
// manifest. The returned error is the first violation; the report is always
// non-nil.
func ValidateBackup(fsys fs.FS, path string) (*BackupReport, error) {
	rep := &BackupReport{ZipPath: path}

	err := validateBackup(fsys, path, rep)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())

		return rep, err
	}

	rep.OK = true

	return rep, nil
}

func validateBackup(fsys fs.FS, path string, rep *BackupReport) error {
	zr, closeFn, err := open(fsys, path)
	if err != nil {
		return err
	}
	defer closeFn()

	rep.EntryCount = len(zr.File)
	names := fileNames(zr)
	rep.FileCount = len(names)

	roots := map[string]struct{}{}
	for _, n := range names {
		root, _, _ := strings.Cut(n, "/")
		roots[root] = struct{}{}
	}

	if len(roots) != 1 {
		return violation.At(violation.ErrArchiveContract, path, 0,
			"backup must contain exactly one top-level folder, found %d", len(roots))
	}

	root := strings.SplitN(names[0], "/", 2)[0]
	rep.Root = root

	err = checkNesting(path, root, names)
	if err != nil {
		return err
	}

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[strings.ReplaceAll(f.Name, `\`, "/")] = f
	}

	manifestName := root + "/" + ManifestName

	mf, ok := byName[manifestName]
	if !ok {
		return violation.At(violation.ErrArchiveContract, path, 0, "manifest %s missing", manifestName)
	}

	manifest, err := readManifest(mf)
	if err != nil {
		return violation.Wrap(violation.ErrArchiveContract, err, "manifest %s invalid", manifestName)
	}

	if manifest.FileCount != len(manifest.Files) {
		return violation.At(violation.ErrArchiveContract, path, 0,
			"manifest file_count %d does not match %d entries", manifest.FileCount, len(manifest.Files))
	}

	for _, n := range names {
		if n == manifestName {
			continue
		}

		rel := strings.TrimPrefix(n, root+"/")
		if _, ok := manifest.Files[rel]; !ok {
			return violation.At(violation.ErrArchiveContract, path, 0, "archived file %s not in manifest", rel)
		}
	}

	rels := make([]string, 0, len(manifest.Files))
	for rel := range manifest.Files {
		rels = append(rels, rel)
	}

	slices.Sort(rels)

	for _, rel := range rels {
		want := manifest.Files[rel]

		f, ok := byName[root+"/"+rel]
		if !ok {
			return violation.At(violation.ErrArchiveContract, path, 0, "manifest file missing in archive: %s", rel)
		}

		sum, size, err := digest(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}

		if size != want.Size {
			return violation.At(violation.ErrArchiveContract, path, 0, "size mismatch: %s (%d != %d)", rel, size, want.Size)
		}

		if !strings.EqualFold(sum, want.SHA256) {
			return violation.At(violation.ErrArchiveContract, path, 0, "sha256 mismatch: %s", rel)
		}
	}

	return nil
}

func readManifest(f *zip.File) (*Manifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m Manifest

	err = json.NewDecoder(rc).Decode(&m)
	if err != nil {
		return nil, err
	}

	if m.Files == nil {
		return nil, errors.New("missing files object")
	}

	return &m, nil
}

func digest(f *zip.File) (string, int64, error) {
	rc, err := f.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	h := sha256.New()

	n, err := io.Copy(h, rc)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}
