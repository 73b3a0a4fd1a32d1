package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/calvinalkan/truth/internal/enumerate"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

// Builder creates archives of the repository at Root.
type Builder struct {
	fs     fs.FS
	root   string
	policy *policy.Policy
	log    *slog.Logger
}

// NewBuilder returns a Builder for the repository at root.
func NewBuilder(fsys fs.FS, root string, pol *policy.Policy, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Builder{fs: fsys, root: root, policy: pol, log: log}
}

// ReleaseRequest describes one release archive.
type ReleaseRequest struct {
	Project string
	Version int
	Kind    Kind

	// DestDir defaults to <root>/<zip_root>.
	DestDir string
}

// BuildRelease enumerates the repository and writes a FULL or SLIM release
// archive. FULL archives re-allow the index root so the derived index ships
// with the release; SLIM archives apply the slim overlay and leave the index
// out.
func (b *Builder) BuildRelease(ctx context.Context, req ReleaseRequest) (Result, error) {
	opts := enumerate.Options{}
	if req.Kind == Slim {
		opts.Slim = true
	} else {
		opts.AllowTopLevel = []string{b.policy.IndexRoot}
	}

	recs, err := enumerate.List(ctx, b.fs, b.root, b.policy, opts)
	if err != nil {
		return Result{}, fmt.Errorf("enumerate %s: %w", req.Kind, err)
	}

	dir := req.DestDir
	if dir == "" {
		dir = filepath.Join(b.root, b.policy.ZipRoot)
	}

	dest := filepath.Join(dir, ReleaseName(req.Project, req.Version, req.Kind))

	sum, err := write(b.fs, dest, b.members(req.Project, recs))
	if err != nil {
		return Result{}, err
	}

	b.log.Info("archive built", "kind", string(req.Kind), "path", dest, "files", len(recs))

	return Result{Path: dest, Files: recs, SHA256: sum}, nil
}

// BuildBackup writes a full snapshot of the repository to destDir with a
// manifest of every file as the final member. Backups are append-only: an
// existing archive with the same name is a conflict.
func (b *Builder) BuildBackup(ctx context.Context, project, destDir string, now time.Time) (Result, error) {
	recs, err := enumerate.List(ctx, b.fs, b.root, b.policy, enumerate.Options{})
	if err != nil {
		return Result{}, fmt.Errorf("enumerate backup: %w", err)
	}

	dest := filepath.Join(destDir, BackupName(project, now))

	exists, err := b.fs.Exists(dest)
	if err != nil {
		return Result{}, fmt.Errorf("stat backup: %w", err)
	}

	if exists {
		return Result{}, violation.At(violation.ErrArchiveContract, dest, 0, "backup archive already exists")
	}

	manifest := NewManifest(project, now, recs)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}

	members := b.members(project, recs)
	members = append(members, member{name: path.Join(project, ManifestName), data: append(data, '\n')})

	sum, err := write(b.fs, dest, members)
	if err != nil {
		return Result{}, err
	}

	b.log.Info("backup built", "path", dest, "files", len(recs))

	return Result{Path: dest, Files: recs, SHA256: sum}, nil
}

func (b *Builder) members(project string, recs []enumerate.FileRecord) []member {
	out := make([]member, len(recs))
	for i, r := range recs {
		out[i] = member{
			name: project + "/" + r.Path,
			src:  filepath.Join(b.root, filepath.FromSlash(r.Path)),
		}
	}

	return out
}
