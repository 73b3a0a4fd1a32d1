package archive

import (
	"time"

	"github.com/calvinalkan/truth/internal/enumerate"
)

// Manifest is the file index embedded in a backup archive.
type Manifest struct {
	Project   string                  `json:"project"`
	CreatedAt string                  `json:"created_at"`
	FileCount int                     `json:"file_count"`
	Files     map[string]ManifestFile `json:"files"`
}

// ManifestFile is one manifest record.
type ManifestFile struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// NewManifest builds a manifest for recs.
func NewManifest(project string, now time.Time, recs []enumerate.FileRecord) *Manifest {
	m := &Manifest{
		Project:   project,
		CreatedAt: now.Format(time.RFC3339),
		FileCount: len(recs),
		Files:     make(map[string]ManifestFile, len(recs)),
	}

	for _, r := range recs {
		m.Files[r.Path] = ManifestFile{SHA256: r.SHA256, Size: r.Size}
	}

	return m
}
