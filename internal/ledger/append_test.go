package ledger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/violation"
)

var phasedRules = ledger.Rules{PhasesRequired: true}

func Test_Append_Adds_Entry_When_Version_Is_Next(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 3)

	out, e, err := ledger.Append(text, phased("Foo", 4), phasedRules)
	require.NoError(t, err)
	require.Equal(t, 4, e.Version)
	require.Equal(t, text+"\n"+phased("Foo", 4)+"\n", out)

	d, err := ledger.Parse(out)
	require.NoError(t, err)
	require.NoError(t, ledger.Validate(d, phasedRules))
	require.Equal(t, 4, d.Latest().Version)
}

func Test_Append_Returns_SequenceViolation_When_Version_Or_Project_Wrong(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 3)

	tests := map[string]string{
		"current version": phased("Foo", 3),
		"skips a version": phased("Foo", 5),
		"wrong project":   phased("Bar", 4),
	}

	for name, block := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out, _, err := ledger.Append(text, block, phasedRules)
			require.ErrorIs(t, err, violation.ErrSequence)
			require.Empty(t, out)
		})
	}
}

func Test_Append_Returns_FormatViolation_When_Block_Is_Malformed(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 1)

	tests := map[string]string{
		"no header":     "LOCKED PRE\nLOCKED POST\nEND\n",
		"no END":        "TRUTH - Foo (TRUTH_V2)\nLOCKED PRE\nLOCKED POST\n",
		"two entries":   doc(phased("Foo", 2), phased("Foo", 3)),
		"legacy shape":  legacy("Foo", 2),
		"reserved mark": "TRUTH - Foo (TRUTH_V2)\nPHASE POST\nEND\n",
	}

	for name, block := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, _, err := ledger.Append(text, block, phasedRules)
			require.ErrorIs(t, err, violation.ErrFormat)
		})
	}
}

func Test_Append_Starts_At_Version_1_When_Ledger_Empty(t *testing.T) {
	t.Parallel()

	out, _, err := ledger.Append("", phased("Foo", 1), phasedRules)
	require.NoError(t, err)
	require.Equal(t, phased("Foo", 1)+"\n", out)

	_, _, err = ledger.Append("", phased("Foo", 2), phasedRules)
	require.ErrorIs(t, err, violation.ErrSequence)
}

func Test_Append_Normalizes_Trailing_Newlines(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 1) + "\n\n\n"

	out, _, err := ledger.Append(text, "\n\n"+phased("Foo", 2)+"\n\n", phasedRules)
	require.NoError(t, err)
	require.Equal(t, phasedDoc("Foo", 2), out)
	require.False(t, strings.Contains(out, "\n\n\n"))
}

func Test_RepairTrailing_Truncates_Unterminated_Last_Entry(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 2) + "\n" + ledger.Banner + "\nTRUTH - Foo (TRUTH_V3)\n" + ledger.Banner + "\n\nLOCKED PRE\n- half written"

	out, res, err := ledger.RepairTrailing(text)
	require.NoError(t, err)
	require.Equal(t, phasedDoc("Foo", 2), out)
	require.Equal(t, ledger.RepairResult{Truncated: 3, Latest: 2, Project: "Foo"}, res)
}

func Test_RepairTrailing_Leaves_Valid_Ledger_Unchanged(t *testing.T) {
	t.Parallel()

	text := phasedDoc("Foo", 2)

	out, res, err := ledger.RepairTrailing(text)
	require.NoError(t, err)
	require.Equal(t, text, out)
	require.Zero(t, res.Truncated)
	require.Equal(t, 2, res.Latest)
}

func Test_RepairTrailing_Returns_FormatViolation_When_Middle_Entry_Unterminated(t *testing.T) {
	t.Parallel()

	text := doc(phased("Foo", 1), "TRUTH - Foo (TRUTH_V2)\nLOCKED PRE", phased("Foo", 3))

	_, _, err := ledger.RepairTrailing(text)
	require.ErrorIs(t, err, violation.ErrFormat)
}
