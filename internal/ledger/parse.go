// Package ledger parses, validates and appends to the ledger document: the
// append-only, human-readable log of versioned truth entries.
//
// An entry looks like:
//
//	==================================================
//	TRUTH - Foo (TRUTH_V4) [CONFIRM]
//	==================================================
//
//	LOCKED PRE
//	- Version: 4
//
//	LOCKED POST
//	- statement
//
//	END
//
// Parsing is a line classifier ([Classify]) feeding a two-state machine:
// SCANNING outside any entry, IN_ENTRY between a header and its END.
// Structural and sequence rules live in [Validate]. The version marker file
// that mirrors the latest entry is handled by [ParseMarker].
package ledger

import (
	"strings"

	"github.com/calvinalkan/truth/internal/violation"
)

// Section is a section marker inside an entry.
type Section struct {
	Kind Kind
	Line int // 1-based
}

// Entry is one versioned block of the ledger.
type Entry struct {
	Header

	// Line is the 1-based line of the header.
	Line int

	// Start and End delimit the entry's lines as 0-based, half-open indexes
	// into Document.Lines. Start includes the separator banner directly above
	// the header. End is one past the END line, or the end of the document
	// (or the next header) for an unterminated entry.
	Start, End int

	Sections []Section

	// Terminated is false when no END was seen before the next header or
	// the end of the document.
	Terminated bool
}

// Has reports whether the entry contains a section of kind k.
func (e *Entry) Has(k Kind) bool {
	return e.first(k) > 0
}

// first returns the line of the first section of kind k, or 0.
func (e *Entry) first(k Kind) int {
	for _, s := range e.Sections {
		if s.Kind == k {
			return s.Line
		}
	}

	return 0
}

func (e *Entry) count(k Kind) int {
	n := 0

	for _, s := range e.Sections {
		if s.Kind == k {
			n++
		}
	}

	return n
}

// Phased reports whether the entry uses LOCKED PRE / LOCKED POST.
func (e *Entry) Phased() bool {
	return e.Has(KindLockedPre) || e.Has(KindLockedPost)
}

// Document is a parsed ledger.
type Document struct {
	// Lines is the normalized text split on "\n". A trailing newline yields
	// a final empty element.
	Lines   []string
	Entries []*Entry
}

// Latest returns the last entry, or nil for an empty document.
func (d *Document) Latest() *Entry {
	if len(d.Entries) == 0 {
		return nil
	}

	return d.Entries[len(d.Entries)-1]
}

// Text returns lines [start, end) joined with "\n".
func (d *Document) Text(start, end int) string {
	return strings.Join(d.Lines[start:end], "\n")
}

// EntryText returns the source text of e, without surrounding blank lines.
func (d *Document) EntryText(e *Entry) string {
	return strings.Trim(d.Text(e.Start, e.End), "\n")
}

type state int

const (
	scanning state = iota
	inEntry
)

// Parse normalizes text and splits it into entries.
//
// Parse fails only for problems the state machine itself detects: a reserved
// marker anywhere, a zero version, or a section marker after an entry's END.
// An entry without END is recorded with Terminated=false and left for
// [Validate] (or [RepairTrailing]) to judge.
func Parse(text string) (*Document, error) {
	doc := &Document{Lines: strings.Split(Normalize(text), "\n")}

	var (
		st   = scanning
		cur  *Entry
		last *Entry
	)

	closeEntry := func(end int, terminated bool) {
		cur.End = end
		cur.Terminated = terminated
		doc.Entries = append(doc.Entries, cur)
		last = cur
		cur = nil
		st = scanning
	}

	for i, raw := range doc.Lines {
		lineNo := i + 1
		ln := Classify(raw)

		if ln.Kind == KindReserved {
			return nil, violation.At(violation.ErrFormat, "", lineNo,
				"unsupported legacy phase header %q (use LOCKED PRE/LOCKED POST)", ln.Text)
		}

		switch st {
		case scanning:
			switch {
			case ln.Kind == KindHeader:
				if ln.Header.Version < 1 {
					return nil, violation.At(violation.ErrFormat, "", lineNo,
						"invalid version TRUTH_V%d (versions start at 1)", ln.Header.Version)
				}

				cur = &Entry{Header: ln.Header, Line: lineNo, Start: bannerStart(doc.Lines, i, last)}
				st = inEntry
			case ln.Kind.IsMarker() && last != nil:
				what := "after END"
				if ln.Kind == KindEnd {
					what = "multiple END terminators"
				}

				return nil, violation.At(violation.ErrFormat, "", lineNo,
					"TRUTH_V%d: %s marker %s", last.Version, ln.Text, what)
			}
		case inEntry:
			switch {
			case ln.Kind == KindHeader:
				closeEntry(bannerStart(doc.Lines, i, cur), false)

				if ln.Header.Version < 1 {
					return nil, violation.At(violation.ErrFormat, "", lineNo,
						"invalid version TRUTH_V%d (versions start at 1)", ln.Header.Version)
				}

				cur = &Entry{Header: ln.Header, Line: lineNo, Start: bannerStart(doc.Lines, i, last)}
				st = inEntry
			case ln.Kind == KindEnd:
				cur.Sections = append(cur.Sections, Section{Kind: KindEnd, Line: lineNo})
				closeEntry(i+1, true)
			case ln.Kind.IsMarker():
				cur.Sections = append(cur.Sections, Section{Kind: ln.Kind, Line: lineNo})
			}
		}
	}

	if cur != nil {
		closeEntry(len(doc.Lines), false)
	}

	return doc, nil
}

// bannerStart walks back from header index i over blank and separator lines
// and returns the first index that belongs to the entry. It never crosses
// into the previous entry.
func bannerStart(lines []string, i int, prev *Entry) int {
	floor := 0
	if prev != nil {
		floor = prev.End
		if !prev.Terminated {
			floor = prev.Line
		}
	}

	start := i
	for j := i - 1; j >= floor; j-- {
		k := Classify(lines[j]).Kind
		if k == KindSeparator {
			start = j

			continue
		}

		if k != KindBlank {
			break
		}
	}

	return start
}
