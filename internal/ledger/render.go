package ledger

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/calvinalkan/truth/internal/violation"
)

// Banner is the separator line written above and below rendered headers.
const Banner = "=================================================="

// TimestampLayout is the timestamp format used in rendered entries.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrEmptyStatement is returned by [Render] when the statement has no
// non-blank lines.
var ErrEmptyStatement = errors.New("empty statement not allowed")

// EntrySpec describes an entry to render.
type EntrySpec struct {
	Project   string
	Version   int
	Tag       string
	Timestamp time.Time

	// Statement lines become bullets. Blank lines are dropped.
	Statement []string

	// Notes lines become an optional NOTES section (phased only).
	Notes []string

	// Phased selects LOCKED PRE / LOCKED POST instead of legacy LOCKED.
	Phased bool
}

// Bullets normalizes statement lines: blank lines are dropped, "*", "+" and
// "•" bullets become "-", and bare lines get a "- " prefix.
func Bullets(lines []string) []string {
	var out []string

	for _, raw := range lines {
		s := strings.TrimRight(Normalize(raw), " \t")
		if strings.TrimSpace(s) == "" {
			continue
		}

		s = NormalizeBullet(s)
		if !strings.HasPrefix(strings.TrimLeft(s, " \t"), "- ") {
			s = "- " + strings.TrimSpace(s)
		}

		out = append(out, s)
	}

	return out
}

// Render builds the canonical text of an entry, without a trailing newline.
//
// Phased:
//
//	LOCKED PRE   version and timestamp
//	LOCKED POST  statement bullets
//	NOTES        optional
//	END
//
// Legacy puts version, timestamp and statement under a single LOCKED.
func Render(spec EntrySpec) (string, error) {
	if !ValidTag(spec.Tag) {
		return "", violation.New(violation.ErrFormat, "unknown type tag %q", spec.Tag)
	}

	if spec.Version < 1 {
		return "", violation.New(violation.ErrFormat, "invalid version %d", spec.Version)
	}

	if strings.TrimSpace(spec.Project) == "" {
		return "", violation.New(violation.ErrFormat, "empty project name")
	}

	bullets := Bullets(spec.Statement)
	if len(bullets) == 0 {
		return "", ErrEmptyStatement
	}

	meta := []string{
		"- Version: " + strconv.Itoa(spec.Version),
		"- Timestamp: " + spec.Timestamp.Format(TimestampLayout),
	}

	lines := []string{
		Banner,
		FormatHeader(Header{Project: spec.Project, Version: spec.Version, Tag: spec.Tag}),
		Banner,
		"",
	}

	if spec.Phased {
		lines = append(lines, "LOCKED PRE")
		lines = append(lines, meta...)
		lines = append(lines, "", "LOCKED POST")
		lines = append(lines, bullets...)

		if notes := Bullets(spec.Notes); len(notes) > 0 {
			lines = append(lines, "", "NOTES")
			lines = append(lines, notes...)
		}
	} else {
		lines = append(lines, "LOCKED")
		lines = append(lines, meta...)
		lines = append(lines, "", "STATEMENT")
		lines = append(lines, bullets...)
	}

	lines = append(lines, "", "END")

	return strings.Join(lines, "\n"), nil
}

// SetTag rewrites the type tag on the first header line of text. An empty
// tag removes it. Every other byte is preserved.
func SetTag(text, tag string) (string, error) {
	if !ValidTag(tag) {
		return "", violation.New(violation.ErrFormat, "unknown type tag %q", tag)
	}

	text = Normalize(text)
	lines := strings.Split(text, "\n")

	for i, raw := range lines {
		ln := Classify(raw)
		if ln.Kind != KindHeader {
			continue
		}

		h := ln.Header
		h.Tag = tag

		prefix := raw[:strings.Index(raw, "TRUTH - ")]
		lines[i] = prefix + FormatHeader(h)

		return strings.Join(lines, "\n"), nil
	}

	return "", violation.New(violation.ErrFormat, "no entry header found")
}
