package truth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/docstore"
	"github.com/calvinalkan/truth/internal/violation"
)

// Step is one stage of a ledger transaction.
type Step string

// Transaction steps, in pipeline order.
const (
	StepPreVerify        Step = "PRE_VERIFY"
	StepSnapshot         Step = "SNAPSHOT"
	StepMutate           Step = "MUTATE"
	StepRebuildIndex     Step = "REBUILD_INDEX"
	StepBuildArchives    Step = "BUILD_ARCHIVES"
	StepValidateArchives Step = "VALIDATE_ARCHIVES"
	StepPostVerify       Step = "POST_VERIFY"
	StepVerify           Step = "VERIFY"
	StepCommit           Step = "COMMIT"
)

// confirmPlan is the pipeline of confirm and mint.
var confirmPlan = []Step{
	StepPreVerify, StepSnapshot, StepMutate, StepRebuildIndex,
	StepBuildArchives, StepValidateArchives, StepPostVerify, StepCommit,
}

// maintenancePlan is the pipeline of repair and reseed. They produce no
// release archives and finish with a pre-phase check of the result.
var maintenancePlan = []Step{
	StepSnapshot, StepMutate, StepRebuildIndex, StepVerify, StepCommit,
}

// Snapshot is the verbatim pre-mutation content of the authoritative
// documents. A nil slice with Missing set means the document did not exist.
type Snapshot struct {
	Ledger        []byte
	LedgerMissing bool
	Marker        []byte
	MarkerMissing bool

	// Backup is the external backup archive written before mutation.
	Backup string
}

// RollbackReport lists what a rollback restored, removed and failed to undo.
type RollbackReport struct {
	Restored []string
	Removed  []string
	Failed   []error
}

// Tx walks one transaction through its plan.
//
// Steps must be entered in plan order with [Tx.Advance]. Failing before
// MUTATE aborts with nothing to undo. Failing at MUTATE or later rolls back:
//  1. Restore the ledger and version marker from the snapshot
//  2. Remove release archives created by this transaction and put back
//     the content of any it overwrote
//  3. Rebuild the index (best effort; it is derived)
//
// If a restore fails the caller gets a [violation.RollbackError] carrying
// the original cause and every restore failure.
type Tx struct {
	ID string

	m       *Manager
	op      string
	plan    []Step
	step    Step
	snap    *Snapshot
	created []string
	saved   []savedFile
	closed  bool
	log     *slog.Logger
	report  RollbackReport
}

func (m *Manager) begin(op string, plan []Step) (*Tx, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new tx id: %w", err)
	}

	tx := &Tx{
		ID:   id.String(),
		m:    m,
		op:   op,
		plan: plan,
		log:  m.log.With("tx", id.String(), "op", op),
	}

	tx.log.Debug("tx begin")

	return tx, nil
}

// Step returns the current step ("" before the first Advance).
func (tx *Tx) Step() Step {
	return tx.step
}

// Snapshot returns the captured snapshot, or nil before SNAPSHOT ran.
func (tx *Tx) Snapshot() *Snapshot {
	return tx.snap
}

// Advance moves to step, which must be the next step of the plan, and
// fires the manager's failpoint for it.
func (tx *Tx) Advance(step Step) error {
	if tx.closed {
		return fmt.Errorf("tx %s: closed", tx.ID)
	}

	next := slices.Index(tx.plan, tx.step) + 1
	if next >= len(tx.plan) || tx.plan[next] != step {
		return fmt.Errorf("tx %s: disallowed transition %q -> %q", tx.ID, tx.step, step)
	}

	tx.step = step
	tx.log.Debug("tx step", "step", string(step))

	if tx.m.failpoint != nil {
		err := tx.m.failpoint(step)
		if err != nil {
			return fmt.Errorf("failpoint %s: %w", step, err)
		}
	}

	return nil
}

// mutated reports whether the authoritative documents may have changed.
func (tx *Tx) mutated() bool {
	cur := slices.Index(tx.plan, tx.step)
	mut := slices.Index(tx.plan, StepMutate)

	return mut >= 0 && cur >= mut
}

// capture reads the ledger and marker, writes the external backup and the
// last-backup marker. project names the backup archive.
func (tx *Tx) capture(ctx context.Context, project string) error {
	m := tx.m
	snap := &Snapshot{}

	var err error

	snap.Ledger, snap.LedgerMissing, err = readOptional(m.docs, m.policy.LedgerFile)
	if err != nil {
		return err
	}

	snap.Marker, snap.MarkerMissing, err = readOptional(m.docs, m.policy.VersionFile)
	if err != nil {
		return err
	}

	at, err := m.backupTime(project)
	if err != nil {
		return err
	}

	res, err := m.builder.BuildBackup(ctx, project, m.backupDir(project), at)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	snap.Backup = res.Path

	err = archive.WriteLastBackup(m.fs, m.zipDir(), archive.LastBackup{
		BackupZip: res.Path,
		CreatedAt: m.now().UTC().Format(timeLayout),
		Tx:        tx.ID,
	})
	if err != nil {
		return err
	}

	tx.snap = snap
	tx.log.Info("snapshot captured", "backup", res.Path, "files", len(res.Files))

	return nil
}

func readOptional(docs docstore.Store, name string) ([]byte, bool, error) {
	data, err := docs.Read(name)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, true, nil
	}

	if err != nil {
		return nil, false, err
	}

	return data, false, nil
}

// track registers a path created by this transaction. It is removed on
// rollback.
func (tx *Tx) track(path string) {
	tx.created = append(tx.created, path)
}

type savedFile struct {
	path string
	data []byte
}

// guard registers a path this transaction is about to write. A new file is
// removed on rollback; an existing one gets its previous content back.
func (tx *Tx) guard(path string) error {
	ok, err := tx.m.fs.Exists(path)
	if err != nil {
		return err
	}

	if !ok {
		tx.track(path)

		return nil
	}

	data, err := tx.m.fs.ReadFile(path)
	if err != nil {
		return err
	}

	tx.saved = append(tx.saved, savedFile{path: path, data: data})

	return nil
}

// Fail ends the transaction after err. Before MUTATE it only logs and
// returns err. From MUTATE on it rolls back and returns either err wrapped
// with the failed step or a [violation.RollbackError].
func (tx *Tx) Fail(ctx context.Context, err error) error {
	if tx.closed {
		return err
	}

	tx.closed = true

	if !tx.mutated() || tx.snap == nil {
		tx.log.Warn("tx aborted", "step", string(tx.step), "error", err)

		return err
	}

	tx.log.Warn("tx failed, rolling back", "step", string(tx.step), "error", err)
	tx.rollback(ctx)

	if len(tx.report.Failed) > 0 {
		tx.log.Error("rollback failed", "failures", len(tx.report.Failed))

		return &violation.RollbackError{
			Cause:    fmt.Errorf("%s: %w", tx.step, err),
			Failures: tx.report.Failed,
			Restored: append(slices.Clone(tx.report.Restored), tx.report.Removed...),
		}
	}

	tx.log.Info("rolled back", "restored", tx.report.Restored, "removed", tx.report.Removed)

	return fmt.Errorf("%s failed, rolled back: %w", tx.step, err)
}

// Report returns the rollback report (empty unless a rollback ran).
func (tx *Tx) Report() RollbackReport {
	return tx.report
}

func (tx *Tx) rollback(ctx context.Context) {
	m := tx.m

	tx.restore(m.policy.LedgerFile, tx.snap.Ledger, tx.snap.LedgerMissing)
	tx.restore(m.policy.VersionFile, tx.snap.Marker, tx.snap.MarkerMissing)

	for _, p := range slices.Backward(tx.created) {
		ok, err := m.fs.Exists(p)
		if err == nil && ok {
			err = m.fs.Remove(p)
		}

		if err != nil {
			tx.report.Failed = append(tx.report.Failed, fmt.Errorf("remove %s: %w", p, err))

			continue
		}

		if ok {
			tx.report.Removed = append(tx.report.Removed, p)
		}
	}

	for _, f := range slices.Backward(tx.saved) {
		err := m.fs.WriteFileAtomic(f.path, f.data, 0o644)
		if err != nil {
			tx.report.Failed = append(tx.report.Failed, fmt.Errorf("restore %s: %w", f.path, err))

			continue
		}

		tx.report.Restored = append(tx.report.Restored, f.path)
	}

	if len(tx.report.Failed) > 0 {
		return
	}

	err := m.index.Rebuild(ctx)
	if err != nil {
		tx.log.Warn("index rebuild after rollback failed", "error", err)
	}
}

// restore puts one document back. A document that did not exist before the
// transaction is removed.
func (tx *Tx) restore(name string, data []byte, missing bool) {
	m := tx.m

	var err error

	if missing {
		err = m.fs.Remove(filepath.Join(m.root, filepath.FromSlash(name)))
		if err != nil && errors.Is(err, errNotExist) {
			err = nil
		}
	} else {
		err = m.docs.Replace(name, data)
	}

	if err != nil {
		tx.report.Failed = append(tx.report.Failed, fmt.Errorf("restore %s: %w", name, err))

		return
	}

	tx.report.Restored = append(tx.report.Restored, name)
}

// Commit closes a transaction that reached COMMIT.
func (tx *Tx) Commit() error {
	if tx.closed {
		return fmt.Errorf("tx %s: closed", tx.ID)
	}

	if tx.step != StepCommit {
		return fmt.Errorf("tx %s: commit at step %q", tx.ID, tx.step)
	}

	tx.closed = true
	tx.log.Info("tx committed")

	return nil
}
