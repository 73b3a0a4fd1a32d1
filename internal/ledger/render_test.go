package ledger_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/violation"
)

var fixedTime = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func Test_Render_Produces_Valid_Phased_Entry(t *testing.T) {
	t.Parallel()

	text, err := ledger.Render(ledger.EntrySpec{
		Project:   "Foo",
		Version:   4,
		Tag:       ledger.TagConfirm,
		Timestamp: fixedTime,
		Statement: []string{"first fact", "", "* second fact", "- third fact"},
		Notes:     []string{"reviewed"},
		Phased:    true,
	})
	require.NoError(t, err)

	want := strings.Join([]string{
		ledger.Banner,
		"TRUTH - Foo (TRUTH_V4) [CONFIRM]",
		ledger.Banner,
		"",
		"LOCKED PRE",
		"- Version: 4",
		"- Timestamp: 2026-03-01 12:30:00",
		"",
		"LOCKED POST",
		"- first fact",
		"- second fact",
		"- third fact",
		"",
		"NOTES",
		"- reviewed",
		"",
		"END",
	}, "\n")
	require.Equal(t, want, text)

	e, err := ledger.ParseBlock(text, ledger.Rules{PhasesRequired: true})
	require.NoError(t, err)
	require.Equal(t, ledger.TagConfirm, e.Tag)
}

func Test_Render_Produces_Legacy_Entry_When_Not_Phased(t *testing.T) {
	t.Parallel()

	text, err := ledger.Render(ledger.EntrySpec{Project: "Foo", Version: 1, Timestamp: fixedTime, Statement: []string{"x"}})
	require.NoError(t, err)

	e, err := ledger.ParseBlock(text, ledger.Rules{})
	require.NoError(t, err)
	require.False(t, e.Phased())
	require.True(t, e.Has(ledger.KindLocked))
}

func Test_Render_Rejects_Empty_Statement(t *testing.T) {
	t.Parallel()

	_, err := ledger.Render(ledger.EntrySpec{Project: "Foo", Version: 1, Statement: []string{"", "  "}})
	require.ErrorIs(t, err, ledger.ErrEmptyStatement)
}

func Test_Render_Rejects_Unknown_Tag(t *testing.T) {
	t.Parallel()

	_, err := ledger.Render(ledger.EntrySpec{Project: "Foo", Version: 1, Tag: "MAYBE", Statement: []string{"x"}})
	require.ErrorIs(t, err, violation.ErrFormat)
}

func Test_SetTag_Rewrites_Only_The_Header(t *testing.T) {
	t.Parallel()

	text := "## " + "TRUTH - Foo (TRUTH_V2) [DREAM]\nLOCKED PRE\nLOCKED POST\nEND\n"

	got, err := ledger.SetTag(text, ledger.TagDebug)
	require.NoError(t, err)
	require.Equal(t, "## TRUTH - Foo (TRUTH_V2) [DEBUG]\nLOCKED PRE\nLOCKED POST\nEND\n", got)

	cleared, err := ledger.SetTag(got, "")
	require.NoError(t, err)
	require.Equal(t, "## TRUTH - Foo (TRUTH_V2)\nLOCKED PRE\nLOCKED POST\nEND\n", cleared)
}

func Test_SetTag_Returns_FormatViolation_When_No_Header(t *testing.T) {
	t.Parallel()

	_, err := ledger.SetTag("LOCKED\nEND\n", ledger.TagDream)
	require.ErrorIs(t, err, violation.ErrFormat)
}
