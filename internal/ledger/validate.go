package ledger

import (
	"github.com/calvinalkan/truth/internal/violation"
)

// Rules are the policy switches that affect validation.
type Rules struct {
	// PhasesRequired forbids legacy LOCKED entries anywhere in the document.
	PhasesRequired bool
}

// Validate checks every entry's structure and the document's version
// sequence and project name. The first violation is returned; errors carry
// the offending line.
func Validate(doc *Document, rules Rules) error {
	if len(doc.Entries) == 0 {
		return violation.New(violation.ErrFormat, "ledger has no entries (no 'TRUTH - <project> (TRUTH_V#)' headers found)")
	}

	for i, e := range doc.Entries {
		err := ValidateEntry(e, rules)
		if err != nil {
			if !e.Terminated && i < len(doc.Entries)-1 {
				return violation.At(violation.ErrFormat, "", e.Line,
					"TRUTH_V%d missing END but not last entry (corruption, not repairable)", e.Version)
			}

			return err
		}
	}

	return ValidateSequence(doc.Entries)
}

// ValidateEntry checks one entry's section structure.
func ValidateEntry(e *Entry, rules Rules) error {
	ends := e.count(KindEnd)
	if ends == 0 || !e.Terminated {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d missing END terminator", e.Version)
	}

	if ends > 1 {
		return violation.At(violation.ErrFormat, "", e.first(KindEnd), "TRUTH_V%d has multiple END terminators", e.Version)
	}

	end := e.first(KindEnd)

	if e.count(KindNotes) > 1 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d has multiple NOTES sections", e.Version)
	}

	if e.Phased() {
		return validatePhased(e, end)
	}

	if rules.PhasesRequired {
		return violation.At(violation.ErrFormat, "", e.Line,
			"TRUTH_V%d uses legacy LOCKED shape (phases required)", e.Version)
	}

	locked := e.first(KindLocked)
	if locked == 0 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d missing LOCKED section", e.Version)
	}

	if e.count(KindLocked) > 1 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d has multiple LOCKED sections", e.Version)
	}

	if locked > end {
		return violation.At(violation.ErrFormat, "", locked, "TRUTH_V%d ordering invalid: LOCKED after END", e.Version)
	}

	return nil
}

func validatePhased(e *Entry, end int) error {
	if line := e.first(KindLocked); line > 0 {
		return violation.At(violation.ErrFormat, "", line, "TRUTH_V%d phased entry contains legacy LOCKED", e.Version)
	}

	pre, post := e.first(KindLockedPre), e.first(KindLockedPost)

	if pre == 0 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d phased entry missing LOCKED PRE", e.Version)
	}

	if post == 0 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d phased entry missing LOCKED POST", e.Version)
	}

	if e.count(KindLockedPre) > 1 || e.count(KindLockedPost) > 1 {
		return violation.At(violation.ErrFormat, "", e.Line, "TRUTH_V%d has duplicate LOCKED PRE/POST sections", e.Version)
	}

	if pre > post {
		return violation.At(violation.ErrFormat, "", pre, "TRUTH_V%d ordering invalid: LOCKED PRE after LOCKED POST", e.Version)
	}

	if notes := e.first(KindNotes); notes > 0 && notes < post {
		return violation.At(violation.ErrFormat, "", notes, "TRUTH_V%d ordering invalid: NOTES before LOCKED POST", e.Version)
	}

	if post > end {
		return violation.At(violation.ErrFormat, "", post, "TRUTH_V%d ordering invalid: LOCKED POST after END", e.Version)
	}

	return nil
}

// ValidateSequence checks that versions start at 1 and increase by exactly
// one, and that every entry names the same project.
func ValidateSequence(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	first := entries[0]
	if first.Version != 1 {
		return violation.At(violation.ErrSequence, "", first.Line, "first version must be 1 (found %d)", first.Version)
	}

	for i := 1; i < len(entries); i++ {
		prev, e := entries[i-1], entries[i]

		if e.Project != first.Project {
			return violation.At(violation.ErrSequence, "", e.Line,
				"project name mismatch: %q != %q", e.Project, first.Project)
		}

		if e.Version != prev.Version+1 {
			return violation.At(violation.ErrSequence, "", e.Line,
				"version sequence broken: %d -> %d (expected %d)", prev.Version, e.Version, prev.Version+1)
		}
	}

	return nil
}
