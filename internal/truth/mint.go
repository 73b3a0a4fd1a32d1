package truth

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/draft"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/violation"
)

// DraftRequest describes a draft to write.
type DraftRequest struct {
	// Statement is the entry body; each non-blank line becomes a bullet.
	Statement string

	// Notes is an optional NOTES section.
	Notes string

	// Tag is an optional header type tag (CONFIRM, DREAM or DEBUG).
	Tag string

	// Overwrite replaces an existing draft.
	Overwrite bool
}

// MintDraft renders a phased entry for the next version and stores it as
// the pending draft. An existing draft is a DraftConflict unless Overwrite
// is set.
func (m *Manager) MintDraft(_ context.Context, req DraftRequest) (*draft.Draft, error) {
	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	next := mk.Version + 1

	text, err := ledger.Render(ledger.EntrySpec{
		Project:   mk.Project,
		Version:   next,
		Tag:       req.Tag,
		Timestamp: m.now(),
		Statement: lines(req.Statement),
		Notes:     lines(req.Notes),
		Phased:    true,
	})
	if err != nil {
		return nil, err
	}

	path, err := m.drafts.Write(mk.Project, next, text+"\n", req.Overwrite)
	if err != nil {
		return nil, err
	}

	m.log.Info("draft written", "project", mk.Project, "version", next, "path", path)

	return &draft.Draft{Project: mk.Project, Version: next, Path: path}, nil
}

// SetDraftType rewrites the type tag of the pending draft. An empty tag
// removes it.
func (m *Manager) SetDraftType(_ context.Context, tag string) (*draft.Draft, error) {
	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	d, err := m.drafts.Bind(mk.Project, mk.Version)
	if err != nil {
		return nil, err
	}

	text, err := m.drafts.Read(d)
	if err != nil {
		return nil, err
	}

	out, err := ledger.SetTag(text, tag)
	if err != nil {
		return nil, violation.WithPath(err, d.Path)
	}

	err = m.drafts.Replace(d, out)
	if err != nil {
		return nil, err
	}

	m.log.Info("draft type set", "path", d.Path, "tag", tag)

	return d, nil
}

// DiscardDraft deletes the pending draft. It returns nil, nil when no
// draft is pending.
func (m *Manager) DiscardDraft(_ context.Context) (*draft.Draft, error) {
	mk, err := m.readMarker()
	if err != nil {
		return nil, err
	}

	d, err := m.drafts.FindPending(mk.Project)
	if err != nil || d == nil {
		return nil, err
	}

	err = m.drafts.Delete(d.Path)
	if err != nil {
		return nil, err
	}

	m.log.Info("draft discarded", "path", d.Path)

	return d, nil
}

// ConfirmDraft commits the pending draft as the next ledger entry. The
// draft must be for exactly current+1; it is deleted on success.
func (m *Manager) ConfirmDraft(ctx context.Context) (*Result, error) {
	return m.transact(ctx, "confirm-draft", func(project string, current int) (string, *draft.Draft, error) {
		d, err := m.drafts.Bind(project, current)
		if err != nil {
			return "", nil, err
		}

		text, err := m.drafts.Read(d)
		if err != nil {
			return "", nil, err
		}

		return text, d, nil
	})
}

// MintRequest describes an immediate mint.
type MintRequest struct {
	Statement string
	Notes     string
	Tag       string
}

// Mint commits a statement as the next entry without a draft. The entry is
// phased when the policy requires phases and legacy otherwise.
func (m *Manager) Mint(ctx context.Context, req MintRequest) (*Result, error) {
	return m.transact(ctx, "mint", func(project string, current int) (string, *draft.Draft, error) {
		text, err := ledger.Render(ledger.EntrySpec{
			Project:   project,
			Version:   current + 1,
			Tag:       req.Tag,
			Timestamp: m.now(),
			Statement: lines(req.Statement),
			Notes:     lines(req.Notes),
			Phased:    m.policy.PhasesRequired,
		})

		return text, nil, err
	})
}

// blockFunc produces the entry to append on top of project at current, and
// the draft it consumes (nil for none).
type blockFunc func(project string, current int) (string, *draft.Draft, error)

// transact runs the confirm pipeline:
//  1. PRE_VERIFY: verify, then build and validate the new ledger text
//  2. SNAPSHOT: copy the documents, write the backup and last-backup marker
//  3. MUTATE: replace the ledger, then the marker
//  4. REBUILD_INDEX
//  5. BUILD_ARCHIVES: FULL then SLIM
//  6. VALIDATE_ARCHIVES: nesting, duplicates, core folders, slim contents
//  7. POST_VERIFY
//  8. COMMIT: delete the consumed draft
func (m *Manager) transact(ctx context.Context, op string, block blockFunc) (*Result, error) {
	tx, err := m.begin(op, confirmPlan)
	if err != nil {
		return nil, err
	}

	err = tx.Advance(StepPreVerify)
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	rep, err := m.verifier.Pre(ctx)
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	text, consumed, err := block(rep.Project, rep.Version)
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	current, err := m.readLedger()
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	updated, entry, err := ledger.Append(current, text, m.rules())
	if err != nil {
		if consumed != nil {
			err = violation.WithPath(err, consumed.Path)
		}

		return nil, tx.Fail(ctx, err)
	}

	mk, err := m.readMarker()
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	res := &Result{Tx: tx.ID, Project: entry.Project, Version: entry.Version}
	log := tx.log.With("project", entry.Project, "version", entry.Version)

	err = tx.Advance(StepSnapshot)
	if err == nil {
		err = tx.capture(ctx, entry.Project)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	res.Backup = tx.snap.Backup

	err = tx.Advance(StepMutate)
	if err == nil {
		err = m.docs.Replace(m.policy.LedgerFile, []byte(updated))
	}

	if err == nil {
		err = m.docs.Replace(m.policy.VersionFile, []byte(mk.WithVersion(entry.Version)))
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	log.Info("ledger appended")

	err = tx.Advance(StepRebuildIndex)
	if err == nil {
		err = m.index.Rebuild(ctx)
	}

	if err == nil {
		err = m.index.Verify(ctx)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepBuildArchives)
	if err == nil {
		res.Full, res.Slim, err = m.buildReleases(ctx, tx, entry.Project, entry.Version)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepValidateArchives)
	if err == nil {
		err = m.validateReleases(res.Full, res.Slim)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepPostVerify)
	if err == nil {
		err = m.postVerify(ctx, entry.Project, entry.Version)
	}

	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	err = tx.Advance(StepCommit)
	if err != nil {
		return nil, tx.Fail(ctx, err)
	}

	if consumed != nil {
		err = m.drafts.Delete(consumed.Path)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("committed but draft not deleted: %v", err))
		}
	} else {
		res.Warnings = append(res.Warnings, m.staleDraftWarnings(entry.Project, entry.Version)...)
	}

	err = tx.Commit()
	if err != nil {
		return nil, err
	}

	log.Info("committed", "full", res.Full, "slim", res.Slim)

	return res, nil
}

// buildReleases writes FULL and SLIM. Each path is tracked before the build
// so a failure leaves neither behind.
func (m *Manager) buildReleases(ctx context.Context, tx *Tx, project string, version int) (string, string, error) {
	var paths [2]string

	for i, kind := range []archive.Kind{archive.Full, archive.Slim} {
		err := tx.guard(filepath.Join(m.zipDir(), archive.ReleaseName(project, version, kind)))
		if err != nil {
			return "", "", err
		}

		res, err := m.builder.BuildRelease(ctx, archive.ReleaseRequest{Project: project, Version: version, Kind: kind})
		if err != nil {
			return "", "", err
		}

		paths[i] = res.Path
	}

	return paths[0], paths[1], nil
}

func (m *Manager) validateReleases(full, slim string) error {
	for _, p := range []string{full, slim} {
		err := archive.ValidateRelease(m.fs, p, m.policy.CoreFolders)
		if err != nil {
			return err
		}
	}

	return archive.CheckSlim(m.fs, slim, m.policy)
}

func (m *Manager) postVerify(ctx context.Context, project string, version int) error {
	rep, err := m.verifier.Post(ctx)
	if err != nil {
		return err
	}

	if rep.Project != project || rep.Version != version {
		return violation.New(violation.ErrSequence,
			"post-verify sees %s TRUTH_V%d, expected %s TRUTH_V%d", rep.Project, rep.Version, project, version)
	}

	return nil
}

// staleDraftWarnings reports drafts left behind by an immediate mint.
func (m *Manager) staleDraftWarnings(project string, version int) []string {
	drafts, err := m.drafts.List(project)
	if err != nil {
		return []string{fmt.Sprintf("listing drafts: %v", err)}
	}

	var out []string

	for _, d := range drafts {
		if d.Version <= version {
			out = append(out, fmt.Sprintf("stale draft %s (ledger is at TRUTH_V%d)", d.Path, version))
		}
	}

	return out
}

func lines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(ledger.Normalize(s), "\n")
}
