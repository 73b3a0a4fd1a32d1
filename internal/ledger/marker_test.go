package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/violation"
)

const markerText = `"""Version authority."""

PROJECT_NAME = "Foo"
TRUTH_VERSION = 3
`

func Test_ParseMarker_Reads_Project_And_Version(t *testing.T) {
	t.Parallel()

	m, err := ledger.ParseMarker(markerText)
	require.NoError(t, err)
	require.Equal(t, "Foo", m.Project)
	require.Equal(t, 3, m.Version)
	require.Equal(t, []int{3}, m.ProjectLines)
	require.Equal(t, []int{4}, m.VersionLines)
	require.NoError(t, m.CheckAuthority())
}

func Test_ParseMarker_Returns_AuthorityViolation_When_Assignment_Missing(t *testing.T) {
	t.Parallel()

	_, err := ledger.ParseMarker("PROJECT_NAME = \"Foo\"\n")
	require.ErrorIs(t, err, violation.ErrAuthority)

	_, err = ledger.ParseMarker("TRUTH_VERSION = 1\n")
	require.ErrorIs(t, err, violation.ErrAuthority)
}

func Test_CheckAuthority_Rejects_Duplicate_Assignments(t *testing.T) {
	t.Parallel()

	m, err := ledger.ParseMarker(markerText + "TRUTH_VERSION = 4\n")
	require.NoError(t, err)
	require.Equal(t, 3, m.Version)

	err = m.CheckAuthority()
	require.ErrorIs(t, err, violation.ErrAuthority)
}

func Test_Marker_WithVersion_Preserves_Other_Lines(t *testing.T) {
	t.Parallel()

	m, err := ledger.ParseMarker(markerText)
	require.NoError(t, err)

	want := `"""Version authority."""

PROJECT_NAME = "Foo"
TRUTH_VERSION = 4
`
	require.Equal(t, want, m.WithVersion(4))
}

func Test_Marker_WithProject_Renames(t *testing.T) {
	t.Parallel()

	m, err := ledger.ParseMarker(ledger.RenderMarker("Foo", 1))
	require.NoError(t, err)

	require.Equal(t, ledger.RenderMarker("Bar", 1), m.WithProject("Bar"))
}

func Test_CountVersionAssignments_Ignores_Non_Integer_Assignments(t *testing.T) {
	t.Parallel()

	text := "TRUTH_VERSION = 1\nTRUTH_VERSION = other.TRUTH_VERSION\nx = TRUTH_VERSION\n  TRUTH_VERSION=2\n"
	require.Equal(t, 2, ledger.CountVersionAssignments(text))
}

func Test_CountProjectAssignments_Ignores_Unquoted_Assignments(t *testing.T) {
	t.Parallel()

	text := "PROJECT_NAME = \"Foo\"\nPROJECT_NAME = other.PROJECT_NAME\nname = PROJECT_NAME\n\tPROJECT_NAME=\"Bar\"\n"
	require.Equal(t, 2, ledger.CountProjectAssignments(text))
}

func Test_SeedMarker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "Empty", in: "", want: "PROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 1\n"},
		{
			name: "Rewrites",
			in:   "# header\nPROJECT_NAME = \"Foo\"\nTRUTH_VERSION = 7\n",
			want: "# header\nPROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 1\n",
		},
		{
			name: "MalformedValueReplaced",
			in:   "PROJECT_NAME = Foo\nTRUTH_VERSION = seven\n",
			want: "PROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 1\n",
		},
		{
			name: "AppendsMissing",
			in:   "OTHER = 1\r\n",
			want: "OTHER = 1\nPROJECT_NAME = \"Bar\"\nTRUTH_VERSION = 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ledger.SeedMarker(tt.in, "Bar")
			require.Equal(t, tt.want, got)

			m, err := ledger.ParseMarker(got)
			require.NoError(t, err)
			require.NoError(t, m.CheckAuthority())
		})
	}
}
