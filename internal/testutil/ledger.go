package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Entry returns a well-formed phased ledger entry, without a trailing
// newline.
func Entry(project string, version int) string {
	return fmt.Sprintf(`==================================================
TRUTH - %s (TRUTH_V%d)
==================================================

LOCKED PRE
- Version: %d

LOCKED POST
- statement %d

END`, project, version, version, version)
}

// Ledger returns a ledger holding versions 1..n of project.
func Ledger(project string, n int) string {
	entries := make([]string, 0, n)
	for v := 1; v <= n; v++ {
		entries = append(entries, Entry(project, v))
	}

	return strings.Join(entries, "\n\n") + "\n"
}

// Marker returns a version marker file.
func Marker(project string, version int) string {
	return fmt.Sprintf("PROJECT_NAME = %q\nTRUTH_VERSION = %d\n", project, version)
}

// WriteTree writes files (slash-separated relative path to content) under
// root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))

		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}

		err = os.WriteFile(path, []byte(content), 0o644)
		if err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// Repo writes a consistent repository for project at version n: ledger,
// marker, an app entrypoint and a JSONC policy that drops assets/ from slim
// releases. The index is not built.
func Repo(t testing.TB, root, project string, n int) {
	t.Helper()

	WriteTree(t, root, map[string]string{
		"TRUTH.md":       Ledger(project, n),
		"app/version.py": Marker(project, n),
		"app/main.py":    "print('hi')\n",
		"tools/truth_config.json": `{
  // slim releases drop assets
  "slim_exclude_folders": ["assets"],
}
`,
		"assets/logo.txt": "logo\n",
	})
}
