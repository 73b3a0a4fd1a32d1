// Package archive builds and validates the zip artifacts produced by a
// transaction: FULL and SLIM release archives and external repository
// backups.
//
// Every archive nests all members under a single "<project>/" folder and
// never contains two members whose paths differ only in case. Builds are
// atomic per archive: the zip is written to a temporary sibling and renamed
// into place. Member order and timestamps are fixed, so the same tree always
// yields byte-identical archives.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/calvinalkan/truth/internal/enumerate"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/violation"
)

// Kind selects a release archive flavor.
type Kind string

// Release archive kinds.
const (
	Full Kind = "FULL"
	Slim Kind = "SLIM"
)

// ManifestName is the backup manifest member, stored as
// "<project>/BACKUP_MANIFEST.json".
const ManifestName = "BACKUP_MANIFEST.json"

// BackupStampLayout formats the timestamp embedded in backup names.
const BackupStampLayout = "20060102_150405"

// memberTime is stamped on every member so builds are reproducible.
var memberTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// ReleaseName returns "<project>_TRUTH_V<version>_<kind>.zip".
func ReleaseName(project string, version int, kind Kind) string {
	return project + "_TRUTH_V" + strconv.Itoa(version) + "_" + string(kind) + ".zip"
}

// BackupName returns "<project>_REPO_BACKUP_<YYYYmmdd_HHMMSS>.zip".
func BackupName(project string, t time.Time) string {
	return project + "_REPO_BACKUP_" + t.Format(BackupStampLayout) + ".zip"
}

// Result describes a written archive.
type Result struct {
	Path   string
	Files  []enumerate.FileRecord
	SHA256 string
}

// member is one file to add to an archive.
type member struct {
	name string // archive path
	src  string // absolute source path, empty when data is set
	data []byte
}

// checkMembers rejects members that collide case-insensitively.
func checkMembers(members []member) error {
	seen := make(map[string]string, len(members))

	for _, m := range members {
		key := strings.ToLower(m.name)
		if prev, ok := seen[key]; ok {
			return violation.New(violation.ErrArchiveContract,
				"duplicate archive path (case-insensitive): %q and %q", prev, m.name)
		}

		seen[key] = m.name
	}

	return nil
}

// write builds the zip at dest through a temporary sibling file. On any error
// the temporary file is removed and dest is left untouched.
func write(fsys fs.FS, dest string, members []member) (sum string, err error) {
	err = checkMembers(members)
	if err != nil {
		return "", err
	}

	err = fsys.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(dest), ".tmp_"+filepath.Base(dest))

	f, err := fsys.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = fsys.Remove(tmp)
		}
	}()

	h := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, h))
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	for _, m := range members {
		err = addMember(fsys, zw, m)
		if err != nil {
			return "", err
		}
	}

	err = zw.Close()
	if err != nil {
		return "", fmt.Errorf("finish zip: %w", err)
	}

	err = f.Sync()
	if err != nil {
		return "", fmt.Errorf("sync zip: %w", err)
	}

	err = f.Close()
	if err != nil {
		return "", fmt.Errorf("close zip: %w", err)
	}

	err = fsys.Rename(tmp, dest)
	if err != nil {
		return "", fmt.Errorf("rename zip into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func addMember(fsys fs.FS, zw *zip.Writer, m member) error {
	hdr := &zip.FileHeader{
		Name:     m.name,
		Method:   zip.Deflate,
		Modified: memberTime,
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", m.name, err)
	}

	if m.src == "" {
		_, err = w.Write(m.data)
		if err != nil {
			return fmt.Errorf("add %s: %w", m.name, err)
		}

		return nil
	}

	src, err := fsys.Open(m.src)
	if err != nil {
		return fmt.Errorf("add %s: %w", m.name, err)
	}

	defer func() { _ = src.Close() }()

	_, err = io.Copy(w, src)
	if err != nil {
		return fmt.Errorf("add %s: %w", m.name, err)
	}

	return nil
}
