package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/violation"
)

// LastBackupName is the marker written under the archive root before a
// transaction mutates anything. Post-verification validates the backup it
// points at.
const LastBackupName = "last_before_confirm_backup.json"

// LastBackup is the content of the last-backup marker.
type LastBackup struct {
	BackupZip string `json:"backup_zip"`
	CreatedAt string `json:"created_at"`
	Tx        string `json:"tx,omitempty"`
}

// WriteLastBackup atomically writes the marker into dir.
func WriteLastBackup(fsys fs.FS, dir string, lb LastBackup) error {
	data, err := json.MarshalIndent(lb, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup marker: %w", err)
	}

	err = fsys.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	err = fsys.WriteFileAtomic(filepath.Join(dir, LastBackupName), append(data, '\n'), 0o644)
	if err != nil {
		return fmt.Errorf("write backup marker: %w", err)
	}

	return nil
}

// ReadLastBackup reads the marker from dir. It returns (nil, nil) when no
// marker exists. A marker that is not valid JSON or names no archive is an
// ArchiveContractViolation.
func ReadLastBackup(fsys fs.FS, dir string) (*LastBackup, error) {
	path := filepath.Join(dir, LastBackupName)

	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read backup marker: %w", err)
	}

	var lb LastBackup

	err = json.Unmarshal(data, &lb)
	if err != nil {
		return nil, violation.Wrap(violation.ErrArchiveContract, err, "backup marker is not valid JSON: %s", path)
	}

	lb.BackupZip = strings.TrimSpace(lb.BackupZip)
	if lb.BackupZip == "" {
		return nil, violation.At(violation.ErrArchiveContract, path, 0, "backup marker missing 'backup_zip'")
	}

	return &lb, nil
}
