// Package truth is the transaction orchestrator of the ledger.
//
// Every mutation of the authoritative documents (the ledger and the version
// marker) runs through a [Tx]: the repository is verified, snapshotted and
// backed up before anything changes, and any later failure restores both
// documents verbatim and removes the release archives the transaction built.
//
// The Manager assumes a single active mutation. Callers serialize access;
// the CLI does so with an advisory lock.
package truth

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/docstore"
	"github.com/calvinalkan/truth/internal/draft"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/index"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/verify"
	"github.com/calvinalkan/truth/internal/violation"
)

const timeLayout = time.RFC3339

var errNotExist = iofs.ErrNotExist

// projectNameRe restricts project names to a filename-safe token.
var projectNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Indexer rebuilds and verifies the derived index.
type Indexer interface {
	Rebuild(ctx context.Context) error
	Verify(ctx context.Context) error
}

// Config holds the Manager's collaborators. FS, Root and Policy are
// required; the rest have defaults.
type Config struct {
	FS     fs.FS
	Root   string
	Policy *policy.Policy

	// Docs defaults to a [docstore.Files] rooted at Root.
	Docs docstore.Store

	// Index defaults to [index.New].
	Index Indexer

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// BackupDir receives backup archives. Defaults to
	// <parent of Root>/<project>_backups.
	BackupDir string

	// Failpoint, when set, is called on entering every step. A non-nil
	// error fails the transaction at that step.
	Failpoint func(Step) error
}

// Manager runs ledger operations against one repository.
type Manager struct {
	fs         fs.FS
	root       string
	policy     *policy.Policy
	docs       docstore.Store
	index      Indexer
	verifier   *verify.Verifier
	builder    *archive.Builder
	drafts     *draft.Store
	log        *slog.Logger
	now        func() time.Time
	backupRoot string
	failpoint  func(Step) error
}

// New returns a Manager for cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.FS == nil {
		return nil, errors.New("truth: fs is nil")
	}

	if cfg.Root == "" {
		return nil, errors.New("truth: root is empty")
	}

	if cfg.Policy == nil {
		return nil, errors.New("truth: policy is nil")
	}

	m := &Manager{
		fs:         cfg.FS,
		root:       cfg.Root,
		policy:     cfg.Policy,
		docs:       cfg.Docs,
		index:      cfg.Index,
		log:        cfg.Logger,
		now:        cfg.Now,
		backupRoot: cfg.BackupDir,
		failpoint:  cfg.Failpoint,
	}

	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}

	if m.docs == nil {
		m.docs = docstore.NewFiles(m.fs, m.root)
	}

	if m.index == nil {
		m.index = index.New(m.fs, m.root, m.policy, m.log)
	}

	if m.now == nil {
		m.now = time.Now
	}

	m.verifier = verify.New(m.fs, m.root, m.policy, m.docs, m.index, m.log)
	m.builder = archive.NewBuilder(m.fs, m.root, m.policy, m.log)
	m.drafts = draft.NewStore(m.fs, filepath.Join(m.root, m.policy.DraftRoot))

	return m, nil
}

// Policy returns the exclusion policy in use.
func (m *Manager) Policy() *policy.Policy {
	return m.policy
}

// Drafts returns the draft store.
func (m *Manager) Drafts() *draft.Store {
	return m.drafts
}

func (m *Manager) zipDir() string {
	return filepath.Join(m.root, m.policy.ZipRoot)
}

func (m *Manager) backupDir(project string) string {
	if m.backupRoot != "" {
		return m.backupRoot
	}

	return filepath.Join(filepath.Dir(filepath.Clean(m.root)), project+"_backups")
}

// maxBackupSkew bounds how far [Manager.backupTime] moves past a taken
// backup name.
const maxBackupSkew = 60

// backupTime returns the first second, starting now, whose backup name for
// project is not taken. Backup names have one-second resolution and are
// never overwritten.
func (m *Manager) backupTime(project string) (time.Time, error) {
	t := m.now()

	for range maxBackupSkew {
		exists, err := m.fs.Exists(filepath.Join(m.backupDir(project), archive.BackupName(project, t)))
		if err != nil {
			return time.Time{}, fmt.Errorf("stat backup: %w", err)
		}

		if !exists {
			return t, nil
		}

		t = t.Add(time.Second)
	}

	return t, nil
}

func (m *Manager) rules() ledger.Rules {
	return ledger.Rules{PhasesRequired: m.policy.PhasesRequired}
}

// Verify runs a verification phase.
func (m *Manager) Verify(ctx context.Context, phase verify.Phase) (*verify.Report, error) {
	return m.verifier.Run(ctx, phase)
}

// RebuildIndex regenerates the derived index.
func (m *Manager) RebuildIndex(ctx context.Context) error {
	return m.index.Rebuild(ctx)
}

// readMarker reads and parses the version marker.
func (m *Manager) readMarker() (*ledger.Marker, error) {
	name := m.policy.VersionFile

	data, err := m.docs.Read(name)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, violation.At(violation.ErrAuthority, name, 0, "version marker missing")
		}

		return nil, err
	}

	mk, err := ledger.ParseMarker(string(data))
	if err != nil {
		return nil, violation.WithPath(err, name)
	}

	return mk, nil
}

func (m *Manager) readLedger() (string, error) {
	data, err := m.docs.Read(m.policy.LedgerFile)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", violation.At(violation.ErrFormat, m.policy.LedgerFile, 0, "ledger missing")
		}

		return "", err
	}

	return string(data), nil
}

// PendingDraft is the pending draft as reported by [Manager.Status].
type PendingDraft struct {
	Version int    `json:"ver"`
	Path    string `json:"path"`
}

// Status is the current ledger position.
type Status struct {
	Project   string        `json:"project"`
	Confirmed int           `json:"confirmed"`
	Next      int           `json:"next"`
	Draft     *PendingDraft `json:"draft_pending"`
}

// Status reads the marker and the pending draft. It does not verify the
// repository.
func (m *Manager) Status(_ context.Context) (*Status, error) {
	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	st := &Status{Project: mk.Project, Confirmed: mk.Version, Next: mk.Version + 1}

	d, err := m.drafts.FindPending(mk.Project)
	if err != nil {
		return nil, err
	}

	if d != nil {
		st.Draft = &PendingDraft{Version: d.Version, Path: d.Path}
	}

	return st, nil
}

// Result describes a committed transaction.
type Result struct {
	Tx      string
	Project string
	Version int
	Full    string
	Slim    string
	Backup  string

	// Warnings are problems that did not fail the operation.
	Warnings []string
}
