// Package policy holds the exclusion policy and repository layout that every
// repo walk, archive and verification step consults.
//
// A [Policy] is loaded once per command from the single authoritative policy
// document (see [Load]) and treated as immutable afterwards. Artifact roots
// (archive, index and draft roots) are always merged into the excluded folder
// set so generated outputs can never be read back in as inputs.
package policy

import (
	"path"
	"slices"
	"strings"
)

// Default values applied when the policy document omits a key.
const (
	DefaultZipRoot     = "_truth"
	DefaultIndexRoot   = "_ai_index"
	DefaultDraftRoot   = "_truth_drafts"
	DefaultLedgerFile  = "TRUTH.md"
	DefaultVersionFile = "app/version.py"
)

// DefaultExcludeFolders is used when exclude_common_folders is absent.
func DefaultExcludeFolders() []string {
	return []string{
		".git", "__pycache__", "_logs", "_outputs", "_build", "_dist",
		".venv", "venv", "env",
		"_truth", "_truth_backups", "_truth_drafts", "_ai_index",
	}
}

// DefaultExcludeFiles is used when exclude_common_files is absent.
func DefaultExcludeFiles() []string {
	return []string{".env"}
}

// DefaultForbiddenMarkers are scanned for when the policy lists none.
func DefaultForbiddenMarkers() []string {
	return []string{
		"<<<TRUNCATED>>>",
		"<<<TRUNCATION>>>",
		"<<TRUNCATED>>",
		"[TRUNCATED]",
		"…TRUNCATED…",
	}
}

// DefaultTextExtensions lists the extensions covered by the hygiene scan.
func DefaultTextExtensions() []string {
	return []string{
		".py", ".ps1", ".txt", ".md", ".json", ".yml", ".yaml",
		".toml", ".ini", ".cfg", ".go",
	}
}

// Policy is the resolved exclusion policy and repository layout.
//
// Name matching is case-sensitive; extension matching is case-insensitive.
// All paths are slash-separated and relative to the repository root.
type Policy struct {
	ZipRoot   string `json:"zip_root"`
	IndexRoot string `json:"ai_index_root"`
	DraftRoot string `json:"draft_root"`

	// ExcludeFolders already contains the artifact roots.
	ExcludeFolders   []string `json:"exclude_common_folders"`
	ExcludeFiles     []string `json:"exclude_common_files"`
	SlimFolders      []string `json:"slim_exclude_folders"`
	SlimExt          []string `json:"slim_exclude_ext"`
	SlimExtraFolders []string `json:"slim_exclude_extra_folders"`

	ForbiddenMarkers []string `json:"forbidden_marker_substrings"`
	PhasesRequired   bool     `json:"truth_phases_required"`

	LedgerFile     string   `json:"ledger_file"`
	VersionFile    string   `json:"version_file"`
	CoreFolders    []string `json:"core_folders"`
	TextExtensions []string `json:"text_extensions"`
	HygieneExempt  []string `json:"hygiene_exempt"`

	// File is the policy document this was loaded from, relative to the
	// repository root. Empty for [Default].
	File string `json:"-"`

	excludeFolders map[string]struct{}
	excludeFiles   map[string]struct{}
	slimFolders    map[string]struct{}
	slimExt        map[string]struct{}
}

// Default returns the policy used when no policy document overrides a key.
func Default() *Policy {
	p := &Policy{
		ZipRoot:          DefaultZipRoot,
		IndexRoot:        DefaultIndexRoot,
		DraftRoot:        DefaultDraftRoot,
		ExcludeFolders:   DefaultExcludeFolders(),
		ExcludeFiles:     DefaultExcludeFiles(),
		PhasesRequired:   true,
		LedgerFile:       DefaultLedgerFile,
		VersionFile:      DefaultVersionFile,
		CoreFolders:      []string{"app", "tools"},
		TextExtensions:   DefaultTextExtensions(),
		SlimFolders:      []string{},
		SlimExt:          []string{},
		SlimExtraFolders: []string{},
		ForbiddenMarkers: []string{},
		HygieneExempt:    []string{},
	}

	p.compile()

	return p
}

// compile merges artifact roots into the excluded folders, lowercases
// extensions and builds lookup sets. Idempotent.
func (p *Policy) compile() {
	roots := []string{p.ZipRoot, p.IndexRoot, p.DraftRoot}

	merged := make([]string, 0, len(p.ExcludeFolders)+len(roots))
	for _, name := range append(slices.Clone(p.ExcludeFolders), roots...) {
		if name != "" && !slices.Contains(merged, name) {
			merged = append(merged, name)
		}
	}

	p.ExcludeFolders = merged

	p.SlimExt = normalizeExts(p.SlimExt)
	p.TextExtensions = normalizeExts(p.TextExtensions)

	p.excludeFolders = toSet(p.ExcludeFolders)
	p.excludeFiles = toSet(p.ExcludeFiles)
	p.slimFolders = toSet(append(slices.Clone(p.SlimFolders), p.SlimExtraFolders...))
	p.slimExt = toSet(p.SlimExt)
}

// normalizeExts lowercases and dot-prefixes exts. Blank members are dropped
// so they never match extensionless files.
func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))

	for _, ext := range exts {
		ext = normalizeExt(ext)
		if ext != "" && !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}

	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}

	return set
}

// Match controls how [Policy.Excludes] evaluates a path.
type Match struct {
	// Slim applies the slim overlay (slim folders and extensions).
	Slim bool

	// AllowTopLevel re-allows normally excluded folder names when they are
	// the first path segment. Used when packaging the index root itself.
	AllowTopLevel []string
}

// Excludes reports whether rel (slash-separated, relative to the root) is
// excluded. Every segment, including the file name, is matched against the
// excluded folder names.
func (p *Policy) Excludes(rel string, m Match) bool {
	parts := strings.Split(path.Clean(rel), "/")

	if slices.Contains(parts, ".git") {
		return true
	}

	allowed := ""
	if slices.Contains(m.AllowTopLevel, parts[0]) {
		allowed = parts[0]
	}

	for _, part := range parts {
		if part == allowed {
			continue
		}

		if _, ok := p.excludeFolders[part]; ok {
			return true
		}
	}

	if _, ok := p.excludeFiles[parts[len(parts)-1]]; ok {
		return true
	}

	if !m.Slim {
		return false
	}

	for _, part := range parts {
		if _, ok := p.slimFolders[part]; ok {
			return true
		}
	}

	_, ok := p.slimExt[strings.ToLower(path.Ext(rel))]

	return ok
}

// ExcludesDir reports whether a directory at rel can be pruned from a walk:
// some segment is an excluded folder name (or, for slim walks, a slim folder
// name). Files below a pruned directory would all be excluded by [Policy.Excludes].
func (p *Policy) ExcludesDir(rel string, m Match) bool {
	parts := strings.Split(path.Clean(rel), "/")

	if slices.Contains(parts, ".git") {
		return true
	}

	allowed := ""
	if slices.Contains(m.AllowTopLevel, parts[0]) {
		allowed = parts[0]
	}

	for _, part := range parts {
		if _, ok := p.excludeFolders[part]; ok && part != allowed {
			return true
		}

		if _, ok := p.slimFolders[part]; ok && m.Slim {
			return true
		}
	}

	return false
}

// SlimForbidden reports why a member path of a slim archive violates the
// slim overlay, or "" if it does not. name is the path inside the project
// folder. Folder tokens are checked on directory segments only.
func (p *Policy) SlimForbidden(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return ""
	}

	for _, token := range parts[:len(parts)-1] {
		if _, ok := p.excludeFolders[token]; ok {
			return "folder '" + token + "'"
		}

		if _, ok := p.slimFolders[token]; ok {
			return "folder '" + token + "'"
		}
	}

	ext := strings.ToLower(path.Ext(parts[len(parts)-1]))
	if _, ok := p.slimExt[ext]; ok && ext != "" {
		return "ext '" + ext + "'"
	}

	return ""
}

// Markers returns the forbidden marker substrings, falling back to
// [DefaultForbiddenMarkers] when the policy lists none.
func (p *Policy) Markers() []string {
	if len(p.ForbiddenMarkers) == 0 {
		return DefaultForbiddenMarkers()
	}

	return p.ForbiddenMarkers
}

// IsText reports whether rel has one of the hygiene scan extensions.
func (p *Policy) IsText(rel string) bool {
	return slices.Contains(p.TextExtensions, strings.ToLower(path.Ext(rel)))
}

// HygieneExempted reports whether rel is skipped by the hygiene scan. The
// policy document itself is always exempt so its marker list cannot trip the
// scan.
func (p *Policy) HygieneExempted(rel string) bool {
	if p.File != "" && rel == p.File {
		return true
	}

	return slices.Contains(p.HygieneExempt, rel)
}

// ArtifactRoots returns the archive, index and draft roots.
func (p *Policy) ArtifactRoots() []string {
	return []string{p.ZipRoot, p.IndexRoot, p.DraftRoot}
}
