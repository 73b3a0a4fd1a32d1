package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/docstore"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/index"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/testutil"
	"github.com/calvinalkan/truth/internal/verify"
	"github.com/calvinalkan/truth/internal/violation"
)

var (
	entry      = testutil.Entry
	ledgerText = testutil.Ledger
	writeTree  = testutil.WriteTree
)

// repo returns a consistent Foo V3 repository with a built index.
func repo(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"TRUTH.md":                ledgerText("Foo", 3),
		"app/version.py":          "PROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 3\n",
		"app/main.py":             "print('hi')\n",
		"tools/truth_config.json": `{"forbidden_marker_substrings": ["[TRUNCATED]"]}`,
		"tools/helper.py":         "VERSION_LABEL = 'x'\n",
	})

	rebuildIndex(t, root)

	return root
}

func load(t *testing.T, root string) *policy.Policy {
	t.Helper()

	pol, err := policy.Load(fs.NewReal(), root)
	require.NoError(t, err)

	return pol
}

func rebuildIndex(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, index.New(fs.NewReal(), root, load(t, root), nil).Rebuild(context.Background()))
}

func verifier(t *testing.T, root string) *verify.Verifier {
	t.Helper()

	pol := load(t, root)
	realFS := fs.NewReal()

	return verify.New(realFS, root, pol, docstore.NewFiles(realFS, root), index.New(realFS, root, pol, nil), nil)
}

func buildReleases(t *testing.T, root string, version int) {
	t.Helper()

	b := archive.NewBuilder(fs.NewReal(), root, load(t, root), nil)

	for _, kind := range []archive.Kind{archive.Full, archive.Slim} {
		_, err := b.BuildRelease(context.Background(), archive.ReleaseRequest{Project: "Foo", Version: version, Kind: kind})
		require.NoError(t, err)
	}
}

func Test_Pre_Passes_On_Consistent_Repository(t *testing.T) {
	t.Parallel()

	root := repo(t)

	rep, err := verifier(t, root).Pre(context.Background())
	require.NoError(t, err)
	require.True(t, rep.OK)
	require.Equal(t, "Foo", rep.Project)
	require.Equal(t, 3, rep.Version)

	for _, ev := range rep.Events {
		require.True(t, ev.OK, ev.Message)
	}
}

func Test_Pre_Returns_Violation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(t *testing.T, root string)
		kind   error
		want   string
	}{
		{
			name: "PolicyMissing",
			mutate: func(t *testing.T, root string) {
				require.NoError(t, os.Remove(filepath.Join(root, "tools", "truth_config.json")))
			},
			kind: violation.ErrAuthority,
			want: "policy document missing",
		},
		{
			name: "LegacyPolicyCopy",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"truth_config.json": "{}"})
			},
			kind: violation.ErrAuthority,
			want: "legacy duplicate policy",
		},
		{
			name: "MarkerMissing",
			mutate: func(t *testing.T, root string) {
				require.NoError(t, os.Remove(filepath.Join(root, "app", "version.py")))
			},
			kind: violation.ErrAuthority,
			want: "version marker missing",
		},
		{
			name: "StrayVersionAssignment",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"tools/helper.py": "TRUTH_VERSION = 3\n"})
			},
			kind: violation.ErrAuthority,
			want: "outside app/version.py",
		},
		{
			name: "StrayProjectAssignment",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"tools/other.py": "PROJECT_NAME = \"Foo\"\n"})
			},
			kind: violation.ErrAuthority,
			want: "PROJECT_NAME assigned outside app/version.py",
		},
		{
			name: "VersionMismatch",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"app/version.py": "PROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 4\n"})
			},
			kind: violation.ErrSequence,
			want: "TRUTH_VERSION mismatch",
		},
		{
			name: "ProjectMismatch",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"app/version.py": "PROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 3\n"})
			},
			kind: violation.ErrSequence,
			want: "PROJECT_NAME mismatch",
		},
		{
			name: "LedgerGap",
			mutate: func(t *testing.T, root string) {
				text := entry("Foo", 1) + "\n\n" + entry("Foo", 3) + "\n"
				writeTree(t, root, map[string]string{"TRUTH.md": text})
			},
			kind: violation.ErrSequence,
		},
		{
			name: "UnterminatedMiddleEntry",
			mutate: func(t *testing.T, root string) {
				broken := strings.TrimSuffix(entry("Foo", 2), "END")
				text := entry("Foo", 1) + "\n\n" + broken + "\n" + entry("Foo", 3) + "\n"
				writeTree(t, root, map[string]string{"TRUTH.md": text})
			},
			kind: violation.ErrFormat,
		},
		{
			name: "EllipsisLine",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"app/main.py": "print('hi')\n   ...\n"})
			},
			kind: violation.ErrFormat,
			want: "app/main.py line=2",
		},
		{
			name: "ForbiddenMarker",
			mutate: func(t *testing.T, root string) {
				writeTree(t, root, map[string]string{"docs/notes.md": "cut here [TRUNCATED]\n"})
			},
			kind: violation.ErrFormat,
			want: "forbidden marker",
		},
		{
			name: "IndexMissing",
			mutate: func(t *testing.T, root string) {
				require.NoError(t, os.RemoveAll(filepath.Join(root, "_ai_index")))
			},
			kind: violation.ErrIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := repo(t)
			tt.mutate(t, root)

			realFS := fs.NewReal()
			pol, err := policy.Load(realFS, root)
			if err != nil {
				// Policy authority failures surface before a verifier exists.
				require.ErrorIs(t, err, tt.kind)

				return
			}

			v := verify.New(realFS, root, pol, docstore.NewFiles(realFS, root), index.New(realFS, root, pol, nil), nil)

			rep, err := v.Pre(context.Background())
			require.ErrorIs(t, err, tt.kind)
			require.False(t, rep.OK)
			require.NotEmpty(t, rep.Error)
			require.False(t, rep.Events[len(rep.Events)-1].OK)

			if tt.want != "" {
				require.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func Test_Pre_Ignores_Artifact_Copies_Of_The_Marker(t *testing.T) {
	t.Parallel()

	root := repo(t)
	writeTree(t, root, map[string]string{
		"_truth_drafts/copy/version.py": "TRUTH_VERSION = 9\n",
		"_truth/stale/version.py":       "TRUTH_VERSION = 2\n",
	})

	_, err := verifier(t, root).Pre(context.Background())
	require.NoError(t, err)
}

func Test_Pre_Exempts_Policy_Document_From_Hygiene_Scan(t *testing.T) {
	t.Parallel()

	root := repo(t)

	data, err := os.ReadFile(filepath.Join(root, "tools", "truth_config.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "[TRUNCATED]")

	_, err = verifier(t, root).Pre(context.Background())
	require.NoError(t, err)
}

func Test_Post_Returns_ArchiveContractViolation_When_Releases_Missing(t *testing.T) {
	t.Parallel()

	root := repo(t)

	_, err := verifier(t, root).Post(context.Background())
	require.ErrorIs(t, err, violation.ErrArchiveContract)
	require.Contains(t, err.Error(), "FULL")
}

func Test_Post_Passes_When_Releases_Built(t *testing.T) {
	t.Parallel()

	root := repo(t)
	buildReleases(t, root, 3)

	rep, err := verifier(t, root).Post(context.Background())
	require.NoError(t, err)
	require.Equal(t, verify.Post, rep.Phase)
}

func Test_Post_Validates_Last_Backup(t *testing.T) {
	t.Parallel()

	root := repo(t)
	backups := t.TempDir()

	res, err := archive.NewBuilder(fs.NewReal(), root, load(t, root), nil).
		BuildBackup(context.Background(), "Foo", backups, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	buildReleases(t, root, 3)
	require.NoError(t, archive.WriteLastBackup(fs.NewReal(), filepath.Join(root, "_truth"),
		archive.LastBackup{BackupZip: res.Path, CreatedAt: "2026-01-02T03:04:05Z"}))

	_, err = verifier(t, root).Post(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(res.Path, []byte("not a zip"), 0o644))

	_, err = verifier(t, root).Post(context.Background())
	require.ErrorIs(t, err, violation.ErrArchiveContract)
}

func Test_ParsePhase(t *testing.T) {
	t.Parallel()

	p, err := verify.ParsePhase("post")
	require.NoError(t, err)
	require.Equal(t, verify.Post, p)

	_, err = verify.ParsePhase("during")
	require.Error(t, err)
}
