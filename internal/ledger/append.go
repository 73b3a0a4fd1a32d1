package ledger

import (
	"strings"

	"github.com/calvinalkan/truth/internal/violation"
)

// ParseBlock parses a single standalone entry (a draft or a rendered
// statement) and validates its structure.
func ParseBlock(block string, rules Rules) (*Entry, error) {
	doc, err := Parse(block)
	if err != nil {
		return nil, err
	}

	switch len(doc.Entries) {
	case 0:
		return nil, violation.New(violation.ErrFormat, "entry has no 'TRUTH - <project> (TRUTH_V#)' header")
	case 1:
	default:
		return nil, violation.At(violation.ErrFormat, "", doc.Entries[1].Line,
			"expected exactly one entry, found %d", len(doc.Entries))
	}

	e := doc.Entries[0]

	err = ValidateEntry(e, rules)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// Append validates block as the next entry of text and returns the new
// document text. The block must hold exactly one well-formed entry whose
// version is latest+1 (1 for an empty ledger) and whose project matches.
// On error text is not modified; the caller keeps the original.
//
// Entries are separated by exactly one blank line and the result ends with
// a single newline.
func Append(text, block string, rules Rules) (string, *Entry, error) {
	doc, err := Parse(text)
	if err != nil {
		return "", nil, err
	}

	if len(doc.Entries) > 0 {
		err = Validate(doc, rules)
		if err != nil {
			return "", nil, err
		}
	}

	e, err := ParseBlock(block, rules)
	if err != nil {
		return "", nil, err
	}

	want := 1
	if latest := doc.Latest(); latest != nil {
		if e.Project != latest.Project {
			return "", nil, violation.New(violation.ErrSequence,
				"project mismatch: entry is %q, ledger is %q", e.Project, latest.Project)
		}

		want = latest.Version + 1
	}

	if e.Version != want {
		return "", nil, violation.New(violation.ErrSequence,
			"entry version TRUTH_V%d does not follow ledger (expected TRUTH_V%d)", e.Version, want)
	}

	body := strings.Trim(Normalize(block), "\n")
	head := strings.TrimRight(Normalize(text), "\n")

	out := body + "\n"
	if strings.TrimSpace(head) != "" {
		out = head + "\n\n" + out
	}

	return out, e, nil
}

// RepairResult describes what [RepairTrailing] did.
type RepairResult struct {
	// Truncated is the version of the removed entry, or 0 if nothing changed.
	Truncated int

	// Latest is the highest version remaining after repair.
	Latest int

	// Project is the project of the remaining entries ("" if none remain).
	Project string
}

// RepairTrailing removes a trailing entry that has a header but no END. An
// unterminated entry anywhere else is a fatal FormatViolation and nothing is
// changed. The returned text always ends with a single newline.
//
// The caller resynchronizes the version marker to RepairResult.Latest.
func RepairTrailing(text string) (string, RepairResult, error) {
	doc, err := Parse(text)
	if err != nil {
		return "", RepairResult{}, err
	}

	var res RepairResult

	for i, e := range doc.Entries {
		if e.Terminated {
			continue
		}

		if i != len(doc.Entries)-1 {
			return "", RepairResult{}, violation.At(violation.ErrFormat, "", e.Line,
				"TRUTH_V%d missing END but not last entry (corruption, not repairable)", e.Version)
		}

		doc.Lines = doc.Lines[:e.Start]
		doc.Entries = doc.Entries[:i]
		res.Truncated = e.Version
	}

	if latest := doc.Latest(); latest != nil {
		res.Latest = latest.Version
		res.Project = latest.Project
	}

	out := strings.TrimRight(strings.Join(doc.Lines, "\n"), "\n") + "\n"
	if strings.TrimSpace(out) == "" {
		out = ""
	}

	return out, res, nil
}
