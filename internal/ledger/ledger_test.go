package ledger_test

import (
	"fmt"
	"strings"
)

// phased returns a well-formed phased entry.
func phased(project string, version int) string {
	return fmt.Sprintf(`==================================================
TRUTH - %s (TRUTH_V%d)
==================================================

LOCKED PRE
- Version: %d

LOCKED POST
- statement %d

END`, project, version, version, version)
}

// legacy returns a well-formed legacy entry.
func legacy(project string, version int) string {
	return fmt.Sprintf(`TRUTH - %s (TRUTH_V%d)

LOCKED
- Version: %d

END`, project, version, version)
}

// doc joins entries separated by one blank line, with a trailing newline.
func doc(entries ...string) string {
	return strings.Join(entries, "\n\n") + "\n"
}

// phasedDoc returns a phased ledger with versions 1..n.
func phasedDoc(project string, n int) string {
	entries := make([]string, 0, n)
	for v := 1; v <= n; v++ {
		entries = append(entries, phased(project, v))
	}

	return doc(entries...)
}
