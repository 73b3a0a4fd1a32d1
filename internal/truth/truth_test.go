package truth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/testutil"
	"github.com/calvinalkan/truth/internal/truth"
	"github.com/calvinalkan/truth/internal/verify"
	"github.com/calvinalkan/truth/internal/violation"
)

var errBoom = errors.New("boom")

var (
	entry      = testutil.Entry
	ledgerText = testutil.Ledger
	writeTree  = testutil.WriteTree
)

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// clock advances one second per call so backup names never collide.
func clock() func() time.Time {
	return testutil.NewClock().Now
}

type env struct {
	root    string
	backups string
	fs      fs.FS
	m       *truth.Manager
}

func (e *env) ledger(t *testing.T) string {
	t.Helper()

	return readFile(t, filepath.Join(e.root, "TRUTH.md"))
}

func (e *env) marker(t *testing.T) string {
	t.Helper()

	return readFile(t, filepath.Join(e.root, "app", "version.py"))
}

func (e *env) zips(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.root, "_truth"))
	require.NoError(t, err)

	var out []string

	for _, de := range entries {
		if strings.HasSuffix(de.Name(), ".zip") {
			out = append(out, de.Name())
		}
	}

	return out
}

func (e *env) backupsMade(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir(e.backups)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}

	require.NoError(t, err)

	return len(entries)
}

type option func(*truth.Config)

func withFailpoint(fp func(truth.Step) error) option {
	return func(c *truth.Config) { c.Failpoint = fp }
}

func withFS(fsys fs.FS) option {
	return func(c *truth.Config) { c.FS = fsys }
}

// newEnv returns a consistent Foo repository at version 3 with a built
// index.
func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"TRUTH.md":                ledgerText("Foo", 3),
		"app/version.py":          "\"\"\"Version authority.\"\"\"\n\nPROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 3\n",
		"app/main.py":             "print('hi')\n",
		"tools/truth_config.json": "{\n  // slim releases drop assets\n  \"slim_exclude_folders\": [\"assets\"],\n  \"slim_exclude_ext\": [\".PNG\"],\n}\n",
		"assets/logo.txt":         "logo\n",
		"app/icon.png":            "png",
	})

	return openEnv(t, root, opts...)
}

func openEnv(t *testing.T, root string, opts ...option) *env {
	t.Helper()

	pol, err := policy.Load(fs.NewReal(), root)
	require.NoError(t, err)

	cfg := truth.Config{
		FS:        fs.NewReal(),
		Root:      root,
		Policy:    pol,
		Now:       clock(),
		BackupDir: filepath.Join(t.TempDir(), "backups"),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := truth.New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.RebuildIndex(context.Background()))

	return &env{root: root, backups: cfg.BackupDir, fs: cfg.FS, m: m}
}

func writeDraft(t *testing.T, e *env, version int) string {
	t.Helper()

	name := fmt.Sprintf("Foo_TRUTH_V%d_DRAFT.txt", version)
	writeTree(t, e.root, map[string]string{"_truth_drafts/" + name: entry("Foo", version) + "\n"})

	return filepath.Join(e.root, "_truth_drafts", name)
}

func zipMembers(t *testing.T, path string) []string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() { _ = zr.Close() }()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	return names
}

func Test_ConfirmDraft_Advances_Version_And_Builds_Nested_Archives_When_Draft_Is_Next(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	draftPath := writeDraft(t, e, 4)

	res, err := e.m.ConfirmDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, res.Version)
	require.Empty(t, res.Warnings)

	mk, err := ledger.ParseMarker(e.marker(t))
	require.NoError(t, err)
	require.Equal(t, 4, mk.Version)
	require.Contains(t, e.marker(t), "\"\"\"Version authority.\"\"\"")

	require.Equal(t, ledgerText("Foo", 4), e.ledger(t))

	_, err = os.Stat(draftPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	got := e.zips(t)
	want := []string{"Foo_TRUTH_V4_FULL.zip", "Foo_TRUTH_V4_SLIM.zip"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("release archives mismatch (-want +got):\n%s", diff)
	}

	for _, name := range want {
		for _, member := range zipMembers(t, filepath.Join(e.root, "_truth", name)) {
			require.True(t, strings.HasPrefix(member, "Foo/"), member)
		}
	}

	slim := zipMembers(t, res.Slim)
	require.NotContains(t, slim, "Foo/assets/logo.txt")
	require.NotContains(t, slim, "Foo/app/icon.png")
	require.Contains(t, zipMembers(t, res.Full), "Foo/_ai_index/_file_map.json")

	lb, err := archive.ReadLastBackup(fs.NewReal(), filepath.Join(e.root, "_truth"))
	require.NoError(t, err)
	require.Equal(t, res.Backup, lb.BackupZip)
	require.Equal(t, res.Tx, lb.Tx)

	_, err = archive.ValidateBackup(fs.NewReal(), res.Backup)
	require.NoError(t, err)

	_, err = e.m.Verify(context.Background(), verify.Post)
	require.NoError(t, err)
}

func Test_ConfirmDraft_Returns_DraftConflict_When_Draft_Skips_A_Version(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeDraft(t, e, 5)

	ledgerBefore, markerBefore := e.ledger(t), e.marker(t)

	_, err := e.m.ConfirmDraft(context.Background())
	require.ErrorIs(t, err, violation.ErrDraftConflict)

	require.Equal(t, ledgerBefore, e.ledger(t))
	require.Equal(t, markerBefore, e.marker(t))
	require.Empty(t, e.zips(t))
	require.Zero(t, e.backupsMade(t))
}

func Test_ConfirmDraft_Returns_DraftConflict_When_No_Draft_Pending(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.m.ConfirmDraft(context.Background())
	require.ErrorIs(t, err, violation.ErrDraftConflict)
	require.Contains(t, err.Error(), "Foo_TRUTH_V4_DRAFT.txt")
}

func Test_ConfirmDraft_Returns_SequenceViolation_When_Draft_Header_Disagrees_With_Name(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeTree(t, e.root, map[string]string{"_truth_drafts/Foo_TRUTH_V4_DRAFT.txt": entry("Foo", 6) + "\n"})

	ledgerBefore := e.ledger(t)

	_, err := e.m.ConfirmDraft(context.Background())
	require.ErrorIs(t, err, violation.ErrSequence)
	require.Equal(t, ledgerBefore, e.ledger(t))
}

func Test_ConfirmDraft_Rolls_Back_When_A_Step_After_Mutation_Fails(t *testing.T) {
	t.Parallel()

	for _, step := range []truth.Step{
		truth.StepMutate,
		truth.StepRebuildIndex,
		truth.StepBuildArchives,
		truth.StepValidateArchives,
		truth.StepPostVerify,
		truth.StepCommit,
	} {
		t.Run(string(step), func(t *testing.T) {
			t.Parallel()

			e := newEnv(t, withFailpoint(func(s truth.Step) error {
				if s == step {
					return errBoom
				}

				return nil
			}))
			draftPath := writeDraft(t, e, 4)

			ledgerBefore, markerBefore := e.ledger(t), e.marker(t)

			_, err := e.m.ConfirmDraft(context.Background())
			require.ErrorIs(t, err, errBoom)
			require.NotErrorIs(t, err, violation.ErrRollbackFailed)
			require.Contains(t, err.Error(), "rolled back")

			require.Equal(t, ledgerBefore, e.ledger(t))
			require.Equal(t, markerBefore, e.marker(t))
			require.Empty(t, e.zips(t))

			_, err = os.Stat(draftPath)
			require.NoError(t, err, "draft must survive a rollback")

			// Backups are append-only and survive the rollback.
			require.Equal(t, 1, e.backupsMade(t))

			_, err = e.m.Verify(context.Background(), verify.Pre)
			require.NoError(t, err)
		})
	}
}

func Test_ConfirmDraft_Aborts_Without_Backup_When_PreVerify_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeDraft(t, e, 4)
	writeTree(t, e.root, map[string]string{"app/notes.md": "half a thought\n...\n"})

	_, err := e.m.ConfirmDraft(context.Background())
	require.ErrorIs(t, err, violation.ErrFormat)
	require.Contains(t, err.Error(), "app/notes.md")
	require.Zero(t, e.backupsMade(t))
}

func Test_ConfirmDraft_Returns_RollbackError_When_Restore_Fails(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())

	var ledgerPath string

	e := newEnv(t, withFS(faulty), withFailpoint(func(s truth.Step) error {
		if s != truth.StepBuildArchives {
			return nil
		}

		faulty.Add(fs.Fault{
			Op:    fs.OpWriteFileAtomic,
			Match: func(p string) bool { return p == ledgerPath },
			Times: 1,
		})

		return errBoom
	}))
	ledgerPath = filepath.Join(e.root, "TRUTH.md")
	writeDraft(t, e, 4)

	markerBefore := e.marker(t)

	_, err := e.m.ConfirmDraft(context.Background())
	require.ErrorIs(t, err, violation.ErrRollbackFailed)
	require.ErrorIs(t, err, errBoom, "the triggering cause must stay visible")
	require.ErrorIs(t, err, fs.ErrInjected)

	rb, ok := violation.AsRollback(err)
	require.True(t, ok)
	require.Len(t, rb.Failures, 1)
	require.Contains(t, rb.Restored, "app/version.py")
	require.Equal(t, violation.ErrRollbackFailed, violation.KindOf(err))

	require.Equal(t, markerBefore, e.marker(t))
	require.Empty(t, e.zips(t))
}

func Test_Mint_Appends_Rendered_Entry(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	res, err := e.m.Mint(context.Background(), truth.MintRequest{
		Statement: "* first point\nsecond point\n\n",
		Tag:       ledger.TagConfirm,
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.Version)

	doc, err := ledger.Parse(e.ledger(t))
	require.NoError(t, err)

	latest := doc.Latest()
	require.Equal(t, 4, latest.Version)
	require.Equal(t, ledger.TagConfirm, latest.Tag)
	require.True(t, latest.Phased())

	text := doc.EntryText(latest)
	require.Contains(t, text, "- first point\n- second point")
	require.Contains(t, text, "- Timestamp: 2026-03-01 12:00:")
}

func Test_Mint_Restores_Existing_Release_Archive_When_It_Rolls_Back(t *testing.T) {
	t.Parallel()

	e := newEnv(t, withFailpoint(func(s truth.Step) error {
		if s == truth.StepValidateArchives {
			return errBoom
		}

		return nil
	}))

	full := archive.ReleaseName("Foo", 4, archive.Full)
	writeTree(t, e.root, map[string]string{"_truth/" + full: "left over\n"})

	_, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "overwrites an old archive"})
	require.ErrorIs(t, err, errBoom)
	require.Contains(t, err.Error(), "rolled back")

	require.Equal(t, []string{full}, e.zips(t))
	require.Equal(t, "left over\n", readFile(t, filepath.Join(e.root, "_truth", full)))
}

func Test_Mint_Warns_About_Stale_Draft(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeDraft(t, e, 4)

	res, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "direct"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "stale draft")
}

func Test_Mint_Leaves_State_Untouched_When_Statement_Empty(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	before := e.ledger(t)

	_, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "\n  \n"})
	require.ErrorIs(t, err, ledger.ErrEmptyStatement)
	require.Equal(t, before, e.ledger(t))
	require.Zero(t, e.backupsMade(t))
}

func Test_Mint_Keeps_Marker_Words_In_Statement_As_Bullets(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	before := e.ledger(t)

	_, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "END"})
	require.NoError(t, err)

	doc, err := ledger.Parse(e.ledger(t))
	require.NoError(t, err)
	require.Contains(t, doc.EntryText(doc.Latest()), "- END")
	require.NotEqual(t, before, e.ledger(t))
}

func Test_MintDraft_Returns_DraftConflict_Unless_Overwrite(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	d, err := e.m.MintDraft(context.Background(), truth.DraftRequest{Statement: "one"})
	require.NoError(t, err)
	require.Equal(t, 4, d.Version)
	require.Contains(t, readFile(t, d.Path), "TRUTH - Foo (TRUTH_V4)")

	_, err = e.m.MintDraft(context.Background(), truth.DraftRequest{Statement: "two"})
	require.ErrorIs(t, err, violation.ErrDraftConflict)
	require.Contains(t, readFile(t, d.Path), "- one")

	_, err = e.m.MintDraft(context.Background(), truth.DraftRequest{Statement: "two", Overwrite: true})
	require.NoError(t, err)
	require.Contains(t, readFile(t, d.Path), "- two")
}

func Test_SetDraftType_Tag_Survives_Confirm(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.m.MintDraft(context.Background(), truth.DraftRequest{Statement: "dreaming", Notes: "later"})
	require.NoError(t, err)

	d, err := e.m.SetDraftType(context.Background(), ledger.TagDream)
	require.NoError(t, err)
	require.Contains(t, readFile(t, d.Path), "TRUTH - Foo (TRUTH_V4) [DREAM]")

	_, err = e.m.SetDraftType(context.Background(), "LATER")
	require.ErrorIs(t, err, violation.ErrFormat)

	_, err = e.m.ConfirmDraft(context.Background())
	require.NoError(t, err)

	doc, err := ledger.Parse(e.ledger(t))
	require.NoError(t, err)
	require.Equal(t, ledger.TagDream, doc.Latest().Tag)
	require.True(t, doc.Latest().Has(ledger.KindNotes))
}

func Test_DiscardDraft_Removes_Pending_Draft(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	d, err := e.m.DiscardDraft(context.Background())
	require.NoError(t, err)
	require.Nil(t, d)

	path := writeDraft(t, e, 4)

	d, err = e.m.DiscardDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, path, d.Path)

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func Test_Status_Reports_Position_And_Pending_Draft(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	path := writeDraft(t, e, 4)

	st, err := e.m.Status(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(st)
	require.NoError(t, err)

	got := string(data)
	want := fmt.Sprintf(`{"project":"Foo","confirmed":3,"next":4,"draft_pending":{"ver":4,"path":%q}}`, path)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func Test_Repair_Truncates_Trailing_Entry_And_Resyncs_Marker(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	broken := ledgerText("Foo", 3) + "\n" + strings.TrimSuffix(entry("Foo", 4), "END") + "- cut off\n"
	writeTree(t, e.root, map[string]string{
		"TRUTH.md":       broken,
		"app/version.py": "PROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 4\n",
	})

	out, err := e.m.Repair(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 4, out.Truncated)
	require.Equal(t, 3, out.Latest)
	require.Equal(t, broken, e.ledger(t), "dry run must not write")

	out, err = e.m.Repair(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 4, out.MarkerWas)
	require.NotEmpty(t, out.Backup)

	require.Equal(t, ledgerText("Foo", 3), e.ledger(t))
	require.Equal(t, "PROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 3\n", e.marker(t))

	_, err = e.m.Verify(context.Background(), verify.Pre)
	require.NoError(t, err)
}

func Test_Repair_Refuses_Unterminated_Middle_Entry(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	broken := entry("Foo", 1) + "\n\n" + strings.TrimSuffix(entry("Foo", 2), "END") + "\n" + entry("Foo", 3) + "\n"
	writeTree(t, e.root, map[string]string{"TRUTH.md": broken})

	_, err := e.m.Repair(context.Background(), false)
	require.ErrorIs(t, err, violation.ErrFormat)
	require.Contains(t, err.Error(), "not repairable")
	require.Equal(t, broken, e.ledger(t))
}

func Test_Repair_Leaves_Marker_Desync_Alone(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeTree(t, e.root, map[string]string{"app/version.py": "PROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 5\n"})

	out, err := e.m.Repair(context.Background(), false)
	require.NoError(t, err)
	require.Zero(t, out.Truncated)
	require.Contains(t, e.marker(t), "TRUTH_VERSION = 5")

	_, err = e.m.Verify(context.Background(), verify.Pre)
	require.ErrorIs(t, err, violation.ErrSequence)
}

func Test_Reseed_Requires_Force(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.m.Reseed(context.Background(), truth.ReseedRequest{Name: "Bar"})
	require.ErrorIs(t, err, truth.ErrReseedNotForced)
}

func Test_Reseed_Starts_Fresh_Ledger_Under_New_Name(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeDraft(t, e, 4)

	_, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "before reseed"})
	require.NoError(t, err)

	out, err := e.m.Reseed(context.Background(), truth.ReseedRequest{Name: "Bar", Force: true})
	require.NoError(t, err)
	require.Equal(t, "Bar", out.Project)
	require.Empty(t, out.PolicyWritten)

	require.Equal(t, "\"\"\"Version authority.\"\"\"\n\nPROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 1\n", e.marker(t))

	doc, err := ledger.Parse(e.ledger(t))
	require.NoError(t, err)
	require.Len(t, doc.Entries, 1)
	require.Equal(t, "Bar", doc.Latest().Project)

	require.Empty(t, e.zips(t))

	drafts, err := os.ReadDir(filepath.Join(e.root, "_truth_drafts"))
	require.NoError(t, err)
	require.Empty(t, drafts)

	_, err = e.m.Verify(context.Background(), verify.Pre)
	require.NoError(t, err)
}

func Test_Reseed_Keeps_Archives_And_Drafts_When_It_Rolls_Back(t *testing.T) {
	t.Parallel()

	for _, step := range []truth.Step{truth.StepMutate, truth.StepRebuildIndex, truth.StepVerify, truth.StepCommit} {
		t.Run(string(step), func(t *testing.T) {
			t.Parallel()

			fail := false
			e := newEnv(t, withFailpoint(func(s truth.Step) error {
				if fail && s == step {
					return errBoom
				}

				return nil
			}))

			_, err := e.m.Mint(context.Background(), truth.MintRequest{Statement: "before reseed"})
			require.NoError(t, err)

			draftPath := writeDraft(t, e, 5)
			zipsBefore := e.zips(t)
			require.NotEmpty(t, zipsBefore)

			ledgerBefore, markerBefore := e.ledger(t), e.marker(t)
			fail = true

			_, err = e.m.Reseed(context.Background(), truth.ReseedRequest{Name: "Bar", Force: true})
			require.ErrorIs(t, err, errBoom)
			require.Contains(t, err.Error(), "rolled back")

			require.Equal(t, ledgerBefore, e.ledger(t))
			require.Equal(t, markerBefore, e.marker(t))
			require.Equal(t, zipsBefore, e.zips(t))

			_, err = os.Stat(draftPath)
			require.NoError(t, err, "draft must survive a rollback")

			_, err = e.m.Verify(context.Background(), verify.Post)
			require.NoError(t, err)
		})
	}
}

func Test_Reseed_Writes_Policy_When_Missing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/main.py":  "print('new')\n",
		"tools/run.py": "print('tool')\n",
	})

	e := openEnv(t, root)

	_, err := e.m.Reseed(context.Background(), truth.ReseedRequest{Force: true})
	require.Error(t, err, "no name anywhere")

	_, err = e.m.Reseed(context.Background(), truth.ReseedRequest{Name: "bad name", Force: true})
	require.ErrorContains(t, err, "invalid project name")

	out, err := e.m.Reseed(context.Background(), truth.ReseedRequest{Name: "Fresh", Force: true})
	require.NoError(t, err)
	require.Equal(t, policy.JSONFile, out.PolicyWritten)

	pol, err := policy.Load(fs.NewReal(), root)
	require.NoError(t, err)
	require.True(t, pol.PhasesRequired)

	require.Equal(t, ledger.RenderMarker("Fresh", 1), e.marker(t))

	_, err = e.m.Verify(context.Background(), verify.Pre)
	require.NoError(t, err)
}

func Test_Backup_Defaults_To_Sibling_Directory_Of_Root(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	writeTree(t, root, map[string]string{
		"TRUTH.md":       ledgerText("Foo", 1),
		"app/version.py": testutil.Marker("Foo", 1),
	})

	pol, err := policy.Load(fs.NewReal(), root)
	require.NoError(t, err)

	m, err := truth.New(truth.Config{FS: fs.NewReal(), Root: root, Policy: pol, Now: clock()})
	require.NoError(t, err)

	out, err := m.Backup(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(parent, "Foo_backups"), filepath.Dir(out.Path))
}

func Test_Backup_Writes_Valid_Backup(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	out, err := e.m.Backup(context.Background())
	require.NoError(t, err)
	require.True(t, out.Report.OK)
	require.Equal(t, out.Files+1, out.Report.FileCount, "members include the manifest")
	require.True(t, strings.HasPrefix(filepath.Base(out.Path), "Foo_REPO_BACKUP_"))
}
