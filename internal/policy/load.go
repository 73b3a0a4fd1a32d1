package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/violation"
)

// Policy document locations, relative to the repository root.
const (
	JSONFile   = "tools/truth_config.json"
	YAMLFile   = "tools/truth_config.yaml"
	YMLFile    = "tools/truth_config.yml"
	LegacyFile = "truth_config.json"
)

var errInvalid = errors.New("invalid policy")

// document mirrors the policy file. Pointer fields distinguish an absent key
// (use the default) from an explicit value.
type document struct {
	ZipRoot          *string   `json:"zip_root"                    yaml:"zip_root"`
	IndexRoot        *string   `json:"ai_index_root"               yaml:"ai_index_root"`
	DraftRoot        *string   `json:"draft_root"                  yaml:"draft_root"`
	ExcludeFolders   *[]string `json:"exclude_common_folders"      yaml:"exclude_common_folders"`
	ExcludeFiles     *[]string `json:"exclude_common_files"        yaml:"exclude_common_files"`
	SlimFolders      *[]string `json:"slim_exclude_folders"        yaml:"slim_exclude_folders"`
	SlimExt          *[]string `json:"slim_exclude_ext"            yaml:"slim_exclude_ext"`
	SlimExtraFolders *[]string `json:"slim_exclude_extra_folders"  yaml:"slim_exclude_extra_folders"`
	ForbiddenMarkers *[]string `json:"forbidden_marker_substrings" yaml:"forbidden_marker_substrings"`
	PhasesRequired   *bool     `json:"truth_phases_required"       yaml:"truth_phases_required"`
	LedgerFile       *string   `json:"ledger_file"                 yaml:"ledger_file"`
	VersionFile      *string   `json:"version_file"                yaml:"version_file"`
	CoreFolders      *[]string `json:"core_folders"                yaml:"core_folders"`
	TextExtensions   *[]string `json:"text_extensions"             yaml:"text_extensions"`
	HygieneExempt    *[]string `json:"hygiene_exempt"              yaml:"hygiene_exempt"`
}

// Locate returns the policy document path (relative to root) or "" if none
// exists. Two policy documents, or a legacy copy at the repository root, are
// an authority violation.
func Locate(fsys fs.FS, root string) (string, error) {
	var found []string

	for _, rel := range []string{JSONFile, YAMLFile, YMLFile} {
		ok, err := fsys.Exists(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", rel, err)
		}

		if ok {
			found = append(found, rel)
		}
	}

	legacy, err := fsys.Exists(filepath.Join(root, LegacyFile))
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", LegacyFile, err)
	}

	if legacy {
		return "", violation.At(violation.ErrAuthority, LegacyFile, 0,
			"legacy duplicate policy present (authoritative is %s)", JSONFile)
	}

	if len(found) > 1 {
		return "", violation.New(violation.ErrAuthority,
			"multiple policy documents: %s", strings.Join(found, ", "))
	}

	if len(found) == 0 {
		return "", nil
	}

	return found[0], nil
}

// Load locates and parses the policy document under root. A repository with
// no policy document gets [Default].
func Load(fsys fs.FS, root string) (*Policy, error) {
	rel, err := Locate(fsys, root)
	if err != nil {
		return nil, err
	}

	if rel == "" {
		return Default(), nil
	}

	data, err := fsys.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	var p *Policy
	if strings.HasSuffix(rel, ".json") {
		p, err = ParseJSON(data)
	} else {
		p, err = ParseYAML(data)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}

	p.File = rel

	return p, nil
}

// ParseJSON parses a JSONC policy document (comments and trailing commas
// allowed).
func ParseJSON(data []byte) (*Policy, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %w", errInvalid, err)
	}

	var doc document

	err = json.Unmarshal(standardized, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalid, err)
	}

	return fromDocument(doc)
}

// ParseYAML parses a YAML policy document.
func ParseYAML(data []byte) (*Policy, error) {
	var doc document

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid YAML: %w", errInvalid, err)
	}

	return fromDocument(doc)
}

func fromDocument(doc document) (*Policy, error) {
	p := Default()

	setString(&p.ZipRoot, doc.ZipRoot)
	setString(&p.IndexRoot, doc.IndexRoot)
	setString(&p.DraftRoot, doc.DraftRoot)
	setString(&p.LedgerFile, doc.LedgerFile)
	setString(&p.VersionFile, doc.VersionFile)

	setList(&p.ExcludeFolders, doc.ExcludeFolders)
	setList(&p.ExcludeFiles, doc.ExcludeFiles)
	setList(&p.SlimFolders, doc.SlimFolders)
	setList(&p.SlimExt, doc.SlimExt)
	setList(&p.SlimExtraFolders, doc.SlimExtraFolders)
	setList(&p.ForbiddenMarkers, doc.ForbiddenMarkers)
	setList(&p.CoreFolders, doc.CoreFolders)
	setList(&p.TextExtensions, doc.TextExtensions)
	setList(&p.HygieneExempt, doc.HygieneExempt)

	if doc.PhasesRequired != nil {
		p.PhasesRequired = *doc.PhasesRequired
	}

	err := p.validate()
	if err != nil {
		return nil, err
	}

	p.compile()

	return p, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setList(dst *[]string, src *[]string) {
	if src != nil && *src != nil {
		*dst = *src
	}
}

func (p *Policy) validate() error {
	for key, val := range map[string]string{
		"zip_root":      p.ZipRoot,
		"ai_index_root": p.IndexRoot,
		"draft_root":    p.DraftRoot,
	} {
		if val == "" || strings.ContainsAny(val, `/\`) {
			return fmt.Errorf("%w: %s must be a single folder name, got %q", errInvalid, key, val)
		}
	}

	if p.LedgerFile == "" {
		return fmt.Errorf("%w: ledger_file is empty", errInvalid)
	}

	if p.VersionFile == "" {
		return fmt.Errorf("%w: version_file is empty", errInvalid)
	}

	return nil
}
