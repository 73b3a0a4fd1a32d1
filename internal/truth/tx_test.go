package truth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/docstore"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/violation"
)

func newTestManager(t *testing.T, docs docstore.Store) *Manager {
	t.Helper()

	m, err := New(Config{FS: fs.NewReal(), Root: t.TempDir(), Policy: policy.Default(), Docs: docs})
	require.NoError(t, err)

	return m
}

func Test_Tx_Advance_Rejects_Out_Of_Order_Steps(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, docstore.NewMemory(nil))

	tx, err := m.begin("test", confirmPlan)
	require.NoError(t, err)

	require.Error(t, tx.Advance(StepSnapshot))
	require.NoError(t, tx.Advance(StepPreVerify))
	require.Error(t, tx.Advance(StepMutate))
	require.NoError(t, tx.Advance(StepSnapshot))
	require.Equal(t, StepSnapshot, tx.Step())

	require.Error(t, tx.Commit(), "commit before COMMIT step")
}

func Test_Tx_Fail_Before_Mutate_Does_Not_Touch_Documents(t *testing.T) {
	t.Parallel()

	docs := docstore.NewMemory(map[string]string{"TRUTH.md": "ledger", "app/version.py": "marker"})
	m := newTestManager(t, docs)

	tx, err := m.begin("test", confirmPlan)
	require.NoError(t, err)
	require.NoError(t, tx.Advance(StepPreVerify))

	boom := errors.New("boom")
	require.Equal(t, boom, tx.Fail(context.Background(), boom))
	require.Zero(t, docs.Writes())
	require.Empty(t, tx.Report().Restored)
}

func Test_Tx_Rollback_Restores_Snapshot_And_Reports_Failures(t *testing.T) {
	t.Parallel()

	docs := docstore.NewMemory(map[string]string{"TRUTH.md": "ledger v1", "app/version.py": "marker v1"})
	m := newTestManager(t, docs)

	tx, err := m.begin("test", maintenancePlan)
	require.NoError(t, err)
	require.NoError(t, tx.Advance(StepSnapshot))

	// Snapshot without a backup; the backup path is covered end to end.
	tx.snap = &Snapshot{Ledger: []byte("ledger v1"), Marker: []byte("marker v1")}

	require.NoError(t, tx.Advance(StepMutate))
	require.NoError(t, docs.Replace("TRUTH.md", []byte("ledger v2")))
	require.NoError(t, docs.Replace("app/version.py", []byte("marker v2")))

	docs.FailReplace("TRUTH.md", errors.New("disk full"))

	err = tx.Fail(context.Background(), errors.New("index broke"))

	rb, ok := violation.AsRollback(err)
	require.True(t, ok)
	require.Len(t, rb.Failures, 1)
	require.ErrorContains(t, rb.Cause, "index broke")
	require.Equal(t, []string{"app/version.py"}, tx.Report().Restored)

	got, err := docs.Read("app/version.py")
	require.NoError(t, err)
	require.Equal(t, "marker v1", string(got))
}
