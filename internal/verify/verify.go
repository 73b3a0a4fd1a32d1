// Package verify is the two-phase checker of every ledger invariant.
//
// The pre phase checks authority, ledger structure, ledger/marker agreement,
// text hygiene and the derived index. The post phase adds the release
// archives and the last pre-transaction backup.
//
// Each check appends an [Event] to the [Report]; the first failing check
// stops the run and is returned as the error.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/docstore"
	"github.com/calvinalkan/truth/internal/enumerate"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

// Phase selects which checks run.
type Phase string

// Verification phases.
const (
	Pre  Phase = "pre"
	Post Phase = "post"
)

// ParsePhase parses "pre" or "post".
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case Pre, Post:
		return Phase(s), nil
	}

	return "", fmt.Errorf("unknown phase %q (want pre or post)", s)
}

// IndexChecker verifies the derived index artifacts.
type IndexChecker interface {
	Verify(ctx context.Context) error
}

// Event is one check outcome.
type Event struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Report collects check outcomes. Project and Version are set once the
// marker has been read.
type Report struct {
	Phase   Phase   `json:"phase"`
	OK      bool    `json:"ok"`
	Project string  `json:"project,omitempty"`
	Version int     `json:"version,omitempty"`
	Events  []Event `json:"events"`
	Error   string  `json:"error,omitempty"`
}

func (r *Report) ok(format string, args ...any) {
	r.Events = append(r.Events, Event{OK: true, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) fail(err error) error {
	r.Events = append(r.Events, Event{OK: false, Message: err.Error()})
	r.Error = err.Error()

	return err
}

// Verifier runs the checks against the repository at Root.
type Verifier struct {
	fs     fs.FS
	root   string
	policy *policy.Policy
	docs   docstore.Store
	index  IndexChecker
	log    *slog.Logger
}

// New returns a Verifier. docs must serve the ledger and marker documents of
// the repository at root.
func New(fsys fs.FS, root string, pol *policy.Policy, docs docstore.Store, idx IndexChecker, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Verifier{fs: fsys, root: root, policy: pol, docs: docs, index: idx, log: log}
}

// Run executes phase and returns the report with the first violation.
func (v *Verifier) Run(ctx context.Context, phase Phase) (*Report, error) {
	rep := &Report{Phase: phase}

	err := v.pre(ctx, rep)
	if err == nil && phase == Post {
		err = v.post(ctx, rep)
	}

	if err != nil {
		v.log.Warn("verify failed", "phase", string(phase), "error", err)

		return rep, rep.fail(err)
	}

	rep.OK = true
	rep.ok("verification complete (%s)", phase)
	v.log.Debug("verify ok", "phase", string(phase), "checks", len(rep.Events))

	return rep, nil
}

// Pre runs the pre phase.
func (v *Verifier) Pre(ctx context.Context) (*Report, error) {
	return v.Run(ctx, Pre)
}

// Post runs the post phase (which includes every pre check).
func (v *Verifier) Post(ctx context.Context) (*Report, error) {
	return v.Run(ctx, Post)
}

func (v *Verifier) pre(ctx context.Context, rep *Report) error {
	err := v.checkPolicy(rep)
	if err != nil {
		return err
	}

	marker, err := v.checkMarker(ctx, rep)
	if err != nil {
		return err
	}

	rep.Project, rep.Version = marker.Project, marker.Version

	doc, err := v.checkLedger(rep)
	if err != nil {
		return err
	}

	err = checkAgreement(rep, marker, doc)
	if err != nil {
		return err
	}

	err = v.checkHygiene(ctx, rep)
	if err != nil {
		return err
	}

	if v.index != nil {
		err = v.index.Verify(ctx)
		if err != nil {
			return err
		}

		rep.ok("%s contract verified", v.policy.IndexRoot)
	}

	return nil
}

func (v *Verifier) checkPolicy(rep *Report) error {
	rel, err := policy.Locate(v.fs, v.root)
	if err != nil {
		return err
	}

	if rel == "" {
		return violation.At(violation.ErrAuthority, policy.JSONFile, 0, "policy document missing")
	}

	rep.ok("single policy authority (%s)", rel)

	return nil
}

// checkMarker reads the designated marker file and rejects any other
// declaration site among enumerated files of the same type. The enumerator
// already leaves out backups, drafts and artifacts, so copies there can
// never count as competing authorities.
func (v *Verifier) checkMarker(ctx context.Context, rep *Report) (*ledger.Marker, error) {
	name := v.policy.VersionFile

	data, err := v.docs.Read(name)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, violation.At(violation.ErrAuthority, name, 0, "version marker missing")
		}

		return nil, err
	}

	marker, err := ledger.ParseMarker(string(data))
	if err != nil {
		return nil, violation.WithPath(err, name)
	}

	err = marker.CheckAuthority()
	if err != nil {
		return nil, violation.WithPath(err, name)
	}

	recs, err := enumerate.List(ctx, v.fs, v.root, v.policy, enumerate.Options{SkipHash: true})
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(name))

	for _, r := range recs {
		if r.Path == name || strings.ToLower(path.Ext(r.Path)) != ext {
			continue
		}

		text, err := v.fs.ReadFile(filepath.Join(v.root, filepath.FromSlash(r.Path)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.Path, err)
		}

		if ledger.CountVersionAssignments(string(text)) > 0 {
			return nil, violation.At(violation.ErrAuthority, r.Path, 0,
				"TRUTH_VERSION assigned outside %s", name)
		}

		if ledger.CountProjectAssignments(string(text)) > 0 {
			return nil, violation.At(violation.ErrAuthority, r.Path, 0,
				"PROJECT_NAME assigned outside %s", name)
		}
	}

	rep.ok("single TRUTH_VERSION and PROJECT_NAME authority (%s)", name)

	return marker, nil
}

func (v *Verifier) checkLedger(rep *Report) (*ledger.Document, error) {
	name := v.policy.LedgerFile

	data, err := v.docs.Read(name)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, violation.At(violation.ErrFormat, name, 0, "ledger missing")
		}

		return nil, err
	}

	doc, err := ledger.Parse(string(data))
	if err != nil {
		return nil, violation.WithPath(err, name)
	}

	err = ledger.Validate(doc, ledger.Rules{PhasesRequired: v.policy.PhasesRequired})
	if err != nil {
		return nil, violation.WithPath(err, name)
	}

	suffix := ""
	if v.policy.PhasesRequired {
		suffix = " [phases required]"
	}

	rep.ok("%s format verified%s", name, suffix)
	rep.ok("%s versions contiguous: 1..%d", name, doc.Latest().Version)

	return doc, nil
}

func checkAgreement(rep *Report, marker *ledger.Marker, doc *ledger.Document) error {
	latest := doc.Latest()

	if marker.Project != latest.Project {
		return violation.New(violation.ErrSequence,
			"PROJECT_NAME mismatch: marker=%q ledger=%q", marker.Project, latest.Project)
	}

	if marker.Version != latest.Version {
		return violation.New(violation.ErrSequence,
			"TRUTH_VERSION mismatch: marker=%d ledger latest=%d", marker.Version, latest.Version)
	}

	rep.ok("version marker matches ledger latest entry (%s TRUTH_V%d)", latest.Project, latest.Version)

	return nil
}

var ellipsisRe = regexp.MustCompile(`^\s*\.\.\.\s*$`)

func (v *Verifier) checkHygiene(ctx context.Context, rep *Report) error {
	recs, err := enumerate.List(ctx, v.fs, v.root, v.policy, enumerate.Options{SkipHash: true})
	if err != nil {
		return err
	}

	markers := v.policy.Markers()

	for _, r := range enumerate.TextFiles(recs, v.policy) {
		data, err := v.fs.ReadFile(filepath.Join(v.root, filepath.FromSlash(r.Path)))
		if err != nil {
			return fmt.Errorf("read %s: %w", r.Path, err)
		}

		for i, line := range strings.Split(ledger.Normalize(string(data)), "\n") {
			if ellipsisRe.MatchString(line) {
				return violation.At(violation.ErrFormat, r.Path, i+1, "standalone ellipsis line")
			}

			for _, m := range markers {
				if m != "" && strings.Contains(line, m) {
					return violation.At(violation.ErrFormat, r.Path, i+1, "forbidden marker substring %q", m)
				}
			}
		}
	}

	rep.ok("no standalone ellipsis lines or forbidden marker substrings")

	return nil
}

func (v *Verifier) post(_ context.Context, rep *Report) error {
	zipDir := filepath.Join(v.root, v.policy.ZipRoot)

	var paths []string

	for _, kind := range []archive.Kind{archive.Full, archive.Slim} {
		p := filepath.Join(zipDir, archive.ReleaseName(rep.Project, rep.Version, kind))

		ok, err := v.fs.Exists(p)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		if !ok {
			return violation.At(violation.ErrArchiveContract, path.Join(v.policy.ZipRoot, filepath.Base(p)), 0,
				"missing %s release archive", kind)
		}

		paths = append(paths, p)
	}

	rep.ok("release archives present (FULL + SLIM)")

	for _, p := range paths {
		err := archive.ValidateRelease(v.fs, p, v.policy.CoreFolders)
		if err != nil {
			return err
		}
	}

	rep.ok("release archives nested under %s/ with no duplicates", rep.Project)

	err := archive.CheckSlim(v.fs, paths[1], v.policy)
	if err != nil {
		return err
	}

	rep.ok("SLIM archive contents verified against policy")

	lb, err := archive.ReadLastBackup(v.fs, zipDir)
	if err != nil {
		return err
	}

	if lb == nil {
		rep.ok("no last-backup marker present")

		return nil
	}

	_, err = archive.ValidateBackup(v.fs, lb.BackupZip)
	if err != nil {
		return err
	}

	rep.ok("last backup validated: %s", lb.BackupZip)

	return nil
}
