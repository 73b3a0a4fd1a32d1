package truth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

// maintain runs a maintenance transaction: snapshot and backup, mutate,
// rebuild the index, verify (pre phase) and commit. finalize, if set, runs
// at COMMIT once everything else has passed; it holds the changes a
// rollback cannot undo.
func (m *Manager) maintain(ctx context.Context, op, project string, mutate, finalize func(tx *Tx) error) (*Tx, error) {
	tx, err := m.begin(op, maintenancePlan)
	if err != nil {
		return nil, err
	}

	err = tx.Advance(StepSnapshot)
	if err == nil {
		err = tx.capture(ctx, project)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepMutate)
	if err == nil {
		err = mutate(tx)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepRebuildIndex)
	if err == nil {
		err = m.index.Rebuild(ctx)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepVerify)
	if err == nil {
		_, err = m.verifier.Pre(ctx)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepCommit)
	if err == nil && finalize != nil {
		err = finalize(tx)
	}

	if err == nil {
		err = tx.Commit()
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	return tx, nil
}

// RepairOutcome describes a trailing-entry repair.
type RepairOutcome struct {
	// Truncated is the version of the removed entry, 0 if nothing was
	// removed.
	Truncated int

	// Latest is the version the ledger and marker end at.
	Latest int

	// MarkerWas is the marker version before the repair.
	MarkerWas int

	DryRun bool
	Backup string
}

// Repair truncates a trailing entry that has a header but no END and
// resynchronizes the version marker to the highest remaining version. An
// unterminated entry anywhere else is fatal. A ledger without a trailing
// unterminated entry is left alone, even if the marker disagrees with it.
func (m *Manager) Repair(ctx context.Context, dryRun bool) (*RepairOutcome, error) {
	text, err := m.readLedger()
	if err != nil {
		return nil, err
	}

	fixed, rr, err := ledger.RepairTrailing(text)
	if err != nil {
		return nil, violation.WithPath(err, m.policy.LedgerFile)
	}

	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	out := &RepairOutcome{Truncated: rr.Truncated, Latest: rr.Latest, MarkerWas: mk.Version, DryRun: dryRun}

	if rr.Truncated == 0 {
		out.Latest = mk.Version

		return out, nil
	}

	if rr.Latest == 0 {
		return nil, violation.At(violation.ErrFormat, m.policy.LedgerFile, 0,
			"repair would leave no entries (only TRUTH_V%d present); reseed instead", rr.Truncated)
	}

	doc, err := ledger.Parse(fixed)
	if err == nil {
		err = ledger.Validate(doc, m.rules())
	}

	if err != nil {
		return nil, violation.Wrap(violation.ErrFormat, violation.WithPath(err, m.policy.LedgerFile),
			"ledger still invalid after removing TRUTH_V%d", rr.Truncated)
	}

	if rr.Project != mk.Project {
		return nil, violation.New(violation.ErrSequence,
			"PROJECT_NAME mismatch: marker=%q ledger=%q", mk.Project, rr.Project)
	}

	if dryRun {
		return out, nil
	}

	tx, err := m.maintain(ctx, "repair", mk.Project, func(_ *Tx) error {
		err := m.docs.Replace(m.policy.LedgerFile, []byte(fixed))
		if err != nil {
			return err
		}

		return m.docs.Replace(m.policy.VersionFile, []byte(mk.WithVersion(rr.Latest)))
	}, nil)
	if err != nil {
		return nil, err
	}

	out.Backup = tx.Snapshot().Backup
	m.log.Info("ledger repaired", "truncated", rr.Truncated, "latest", rr.Latest)

	return out, nil
}

// ReseedRequest describes a reseed.
type ReseedRequest struct {
	// Name is the new project name. Empty keeps the current one.
	Name string

	// Force must be set; reseed discards the ledger history.
	Force bool
}

// ReseedOutcome describes a reseed.
type ReseedOutcome struct {
	Project string
	Backup  string

	// PolicyWritten is set when no policy document existed and a default
	// one was written.
	PolicyWritten string
}

// ErrReseedNotForced is returned by [Manager.Reseed] without Force.
var ErrReseedNotForced = errors.New("reseed discards the ledger history; force is required")

// Reseed resets the repository to a fresh TRUTH_V1: the marker is set to
// version 1 (renaming the project if asked), the ledger replaced by a single
// seed entry and the index rebuilt. Only after the result verifies are the
// archive root emptied and the old project's drafts removed. A backup of the
// repository is written first.
func (m *Manager) Reseed(ctx context.Context, req ReseedRequest) (*ReseedOutcome, error) {
	if !req.Force {
		return nil, ErrReseedNotForced
	}

	var (
		old        string
		markerText string
	)

	data, missing, err := readOptional(m.docs, m.policy.VersionFile)
	if err != nil {
		return nil, err
	}

	if !missing {
		markerText = string(data)

		if mk, err := ledger.ParseMarker(markerText); err == nil {
			old = mk.Project
		}
	}

	project := req.Name
	if project == "" {
		project = old
	}

	if project == "" {
		return nil, violation.At(violation.ErrAuthority, m.policy.VersionFile, 0,
			"no project name in marker; pass a name")
	}

	if !projectNameRe.MatchString(project) {
		return nil, fmt.Errorf("invalid project name %q (must match [A-Za-z0-9_-]+)", project)
	}

	seed, err := ledger.Render(ledger.EntrySpec{
		Project:   project,
		Version:   1,
		Timestamp: m.now(),
		Statement: []string{
			"Initial project seed",
			"TRUTH_VERSION set to 1",
			fmt.Sprintf("%s and %s reset", m.policy.ZipRoot, m.policy.IndexRoot),
		},
		Notes:  []string{"Mint the next truth to begin work"},
		Phased: m.policy.PhasesRequired,
	})
	if err != nil {
		return nil, err
	}

	out := &ReseedOutcome{Project: project}

	reset := func(tx *Tx) error {
		return m.resetArtifacts(tx, old)
	}

	tx, err := m.maintain(ctx, "reseed", project, func(tx *Tx) error {
		var err error

		out.PolicyWritten, err = m.ensurePolicy(tx)
		if err != nil {
			return err
		}

		err = m.docs.Replace(m.policy.VersionFile, []byte(ledger.SeedMarker(markerText, project)))
		if err != nil {
			return err
		}

		return m.docs.Replace(m.policy.LedgerFile, []byte(seed+"\n"))
	}, reset)
	if err != nil {
		return nil, err
	}

	out.Backup = tx.Snapshot().Backup
	m.log.Info("reseeded", "project", project, "previous", old)

	return out, nil
}

// resetArtifacts empties the archive root and deletes the old project's
// drafts. The index root needs no reset; REBUILD_INDEX swaps it in whole.
// The last-backup marker is rewritten so post-verify still finds the backup
// taken for this transaction.
func (m *Manager) resetArtifacts(tx *Tx, oldProject string) error {
	dir := m.zipDir()

	err := m.fs.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("reset %s: %w", dir, err)
	}

	err = m.fs.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("reset %s: %w", dir, err)
	}

	err = archive.WriteLastBackup(m.fs, m.zipDir(), archive.LastBackup{
		BackupZip: tx.snap.Backup,
		CreatedAt: m.now().UTC().Format(timeLayout),
		Tx:        tx.ID,
	})
	if err != nil {
		return err
	}

	if oldProject == "" {
		return nil
	}

	drafts, err := m.drafts.List(oldProject)
	if err != nil {
		return err
	}

	for _, d := range drafts {
		err = m.drafts.Delete(d.Path)
		if err != nil {
			return err
		}
	}

	return nil
}

// ensurePolicy writes the policy in use as the JSON policy document when
// the repository has none. It returns the written path or "". The file is
// removed again if the transaction rolls back.
func (m *Manager) ensurePolicy(tx *Tx) (string, error) {
	rel, err := policy.Locate(m.fs, m.root)
	if err != nil || rel != "" {
		return "", err
	}

	data, err := json.MarshalIndent(m.policy, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode policy: %w", err)
	}

	p := filepath.Join(m.root, filepath.FromSlash(policy.JSONFile))

	err = m.fs.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		return "", fmt.Errorf("write policy: %w", err)
	}

	tx.track(p)

	err = m.fs.WriteFileAtomic(p, append(data, '\n'), 0o644)
	if err != nil {
		return "", fmt.Errorf("write policy: %w", err)
	}

	m.policy.File = policy.JSONFile

	return policy.JSONFile, nil
}

// BackupOutcome describes a standalone backup.
type BackupOutcome struct {
	Path   string
	Files  int
	SHA256 string
	Report *archive.BackupReport
}

// Backup writes a backup archive of the repository and validates it.
func (m *Manager) Backup(ctx context.Context) (*BackupOutcome, error) {
	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	at, err := m.backupTime(mk.Project)
	if err != nil {
		return nil, err
	}

	res, err := m.builder.BuildBackup(ctx, mk.Project, m.backupDir(mk.Project), at)
	if err != nil {
		return nil, err
	}

	rep, err := archive.ValidateBackup(m.fs, res.Path)
	if err != nil {
		return nil, err
	}

	return &BackupOutcome{Path: res.Path, Files: len(res.Files), SHA256: res.SHA256, Report: rep}, nil
}
