package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies one line of a ledger document.
type Kind int

// Line kinds produced by [Classify].
const (
	KindText Kind = iota
	KindBlank
	KindSeparator
	KindHeader
	KindLocked
	KindLockedPre
	KindLockedPost
	KindNotes
	KindEnd
	KindReserved
)

var kindNames = map[Kind]string{
	KindText:       "text",
	KindBlank:      "blank",
	KindSeparator:  "separator",
	KindHeader:     "header",
	KindLocked:     "LOCKED",
	KindLockedPre:  "LOCKED PRE",
	KindLockedPost: "LOCKED POST",
	KindNotes:      "NOTES",
	KindEnd:        "END",
	KindReserved:   "reserved",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsMarker reports whether k is a section marker (including reserved ones).
func (k Kind) IsMarker() bool {
	return k >= KindLocked
}

// Valid type tags. The empty tag means "untagged".
const (
	TagConfirm = "CONFIRM"
	TagDream   = "DREAM"
	TagDebug   = "DEBUG"
)

// ValidTag reports whether tag is empty or one of the known type tags.
func ValidTag(tag string) bool {
	switch tag {
	case "", TagConfirm, TagDream, TagDebug:
		return true
	}

	return false
}

var (
	headerRe  = regexp.MustCompile(`^TRUTH - (.+?) \(TRUTH_V(\d+)\)\s*(?:\[(CONFIRM|DREAM|DEBUG)\])?\s*$`)
	headingRe = regexp.MustCompile(`^#{1,6}\s+`)
	bulletRe  = regexp.MustCompile(`^(\s*)[*+•]\s+`)
)

var markers = map[string]Kind{
	"LOCKED":      KindLocked,
	"LOCKED PRE":  KindLockedPre,
	"LOCKED POST": KindLockedPost,
	"NOTES":       KindNotes,
	"END":         KindEnd,
	"PHASE PRE":   KindReserved,
	"PHASE POST":  KindReserved,
}

// Header is a parsed entry header line.
type Header struct {
	Project string
	Version int
	Tag     string
}

// Line is a classified line.
type Line struct {
	Kind Kind

	// Text is the control text with the markdown heading prefix and
	// surrounding whitespace removed.
	Text string

	// Header is set for KindHeader.
	Header Header
}

// Classify classifies a single line (already newline-normalized, no
// trailing "\n"). A markdown heading prefix ("# ", "## ", ...) is tolerated
// on control lines.
func Classify(raw string) Line {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Line{Kind: KindBlank}
	}

	if strings.Trim(s, "=") == "" {
		return Line{Kind: KindSeparator, Text: s}
	}

	s = strings.TrimSpace(headingRe.ReplaceAllString(s, ""))

	if k, ok := markers[s]; ok {
		return Line{Kind: k, Text: s}
	}

	if h, ok := parseHeader(s); ok {
		return Line{Kind: KindHeader, Text: s, Header: h}
	}

	return Line{Kind: KindText, Text: strings.TrimSpace(raw)}
}

func parseHeader(s string) (Header, bool) {
	m := headerRe.FindStringSubmatch(s)
	if m == nil {
		return Header{}, false
	}

	v, err := strconv.Atoi(m[2])
	if err != nil {
		return Header{}, false
	}

	return Header{Project: m[1], Version: v, Tag: m[3]}, true
}

// FormatHeader renders a header line.
func FormatHeader(h Header) string {
	s := "TRUTH - " + h.Project + " (TRUTH_V" + strconv.Itoa(h.Version) + ")"
	if h.Tag != "" {
		s += " [" + h.Tag + "]"
	}

	return s
}

// Normalize strips a leading BOM and converts CRLF and lone CR to LF.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	return strings.ReplaceAll(text, "\r", "\n")
}

// NormalizeBullet rewrites a leading "*", "+" or "•" bullet to "-",
// preserving indentation.
func NormalizeBullet(line string) string {
	return bulletRe.ReplaceAllString(line, "${1}- ")
}
