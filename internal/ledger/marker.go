package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/calvinalkan/truth/internal/violation"
)

var (
	versionAssignRe = regexp.MustCompile(`^\s*TRUTH_VERSION\s*=\s*(\d+)\s*$`)
	projectAssignRe = regexp.MustCompile(`^\s*PROJECT_NAME\s*=\s*"(.*?)"\s*$`)

	// Looser forms used when reseeding, so a malformed value is replaced
	// rather than duplicated.
	projectAnyRe = regexp.MustCompile(`^\s*PROJECT_NAME\s*=`)
	versionAnyRe = regexp.MustCompile(`^\s*TRUTH_VERSION\s*=`)
)

// Marker is the parsed version marker file: the single authority for the
// project name and the current version.
type Marker struct {
	Project string
	Version int

	// ProjectLines and VersionLines are the 1-based lines of every
	// assignment found. Authority requires exactly one of each.
	ProjectLines []int
	VersionLines []int

	lines []string
}

// ParseMarker reads PROJECT_NAME and TRUTH_VERSION assignments from text.
// The first assignment of each wins; [Marker.CheckAuthority] reports
// duplicates. Missing assignments are an AuthorityViolation.
func ParseMarker(text string) (*Marker, error) {
	m := &Marker{lines: strings.Split(Normalize(text), "\n")}

	for i, ln := range m.lines {
		if sub := projectAssignRe.FindStringSubmatch(ln); sub != nil {
			if len(m.ProjectLines) == 0 {
				m.Project = sub[1]
			}

			m.ProjectLines = append(m.ProjectLines, i+1)
		}

		if sub := versionAssignRe.FindStringSubmatch(ln); sub != nil {
			v, err := strconv.Atoi(sub[1])
			if err != nil {
				return nil, violation.At(violation.ErrFormat, "", i+1, "TRUTH_VERSION out of range: %s", sub[1])
			}

			if len(m.VersionLines) == 0 {
				m.Version = v
			}

			m.VersionLines = append(m.VersionLines, i+1)
		}
	}

	if len(m.ProjectLines) == 0 {
		return nil, violation.New(violation.ErrAuthority, "PROJECT_NAME assignment not found")
	}

	if len(m.VersionLines) == 0 {
		return nil, violation.New(violation.ErrAuthority, "TRUTH_VERSION assignment not found")
	}

	return m, nil
}

// CheckAuthority requires exactly one PROJECT_NAME and one TRUTH_VERSION
// assignment.
func (m *Marker) CheckAuthority() error {
	if n := len(m.VersionLines); n != 1 {
		return violation.At(violation.ErrAuthority, "", m.VersionLines[1],
			"expected exactly one TRUTH_VERSION assignment, found %d (lines %v)", n, m.VersionLines)
	}

	if n := len(m.ProjectLines); n != 1 {
		return violation.At(violation.ErrAuthority, "", m.ProjectLines[1],
			"expected exactly one PROJECT_NAME assignment, found %d (lines %v)", n, m.ProjectLines)
	}

	return nil
}

// WithVersion returns the marker text with every TRUTH_VERSION assignment
// set to v. Other lines are unchanged.
func (m *Marker) WithVersion(v int) string {
	return m.rewrite(versionAssignRe, fmt.Sprintf("TRUTH_VERSION = %d", v))
}

// WithProject returns the marker text with every PROJECT_NAME assignment set
// to name.
func (m *Marker) WithProject(name string) string {
	return m.rewrite(projectAssignRe, fmt.Sprintf("PROJECT_NAME = %q", name))
}

func (m *Marker) rewrite(re *regexp.Regexp, repl string) string {
	out := make([]string, len(m.lines))

	for i, ln := range m.lines {
		if re.MatchString(ln) {
			indent := ln[:len(ln)-len(strings.TrimLeft(ln, " \t"))]
			ln = indent + repl
		}

		out[i] = ln
	}

	return strings.Join(out, "\n")
}

// RenderMarker returns a fresh marker file.
func RenderMarker(project string, version int) string {
	return fmt.Sprintf("PROJECT_NAME = %q\nTRUTH_VERSION = %d\n", project, version)
}

// SeedMarker returns text with every PROJECT_NAME assignment set to project
// and every TRUTH_VERSION assignment set to 1. Missing assignments are
// appended; other lines are kept.
func SeedMarker(text, project string) string {
	if strings.TrimSpace(text) == "" {
		return RenderMarker(project, 1)
	}

	lines := strings.Split(strings.TrimRight(Normalize(text), "\n"), "\n")

	var sawProject, sawVersion bool

	for i, ln := range lines {
		switch {
		case projectAnyRe.MatchString(ln):
			lines[i] = fmt.Sprintf("PROJECT_NAME = %q", project)
			sawProject = true
		case versionAnyRe.MatchString(ln):
			lines[i] = "TRUTH_VERSION = 1"
			sawVersion = true
		}
	}

	if !sawProject {
		lines = append(lines, fmt.Sprintf("PROJECT_NAME = %q", project))
	}

	if !sawVersion {
		lines = append(lines, "TRUTH_VERSION = 1")
	}

	return strings.Join(lines, "\n") + "\n"
}

// CountVersionAssignments counts TRUTH_VERSION integer assignments in text.
// Used to reject marker declarations outside the designated file.
func CountVersionAssignments(text string) int {
	n := 0

	for _, ln := range strings.Split(Normalize(text), "\n") {
		if versionAssignRe.MatchString(ln) {
			n++
		}
	}

	return n
}

// CountProjectAssignments counts PROJECT_NAME string assignments in text.
func CountProjectAssignments(text string) int {
	n := 0

	for _, ln := range strings.Split(Normalize(text), "\n") {
		if projectAssignRe.MatchString(ln) {
			n++
		}
	}

	return n
}
