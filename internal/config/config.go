// Package config loads the truth tool configuration.
//
// The tool config is separate from the repository's policy document. It
// only covers where backups go and how verbosely to log.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Errors returned by [Load].
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrInvalidLogLevel    = errors.New("invalid log level (want debug|info|warn|error)")
)

// FileName is the project config file name.
const FileName = ".truth.json"

// Environment variables consulted by [Load].
const (
	EnvBackupDir = "TRUTH_BACKUP_DIR"
	EnvLogLevel  = "TRUTH_LOG_LEVEL"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	BackupDir string `json:"backup_dir,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`

	// Root is the absolute repository root (from -C or the working directory).
	Root string `json:"-"`

	// BackupDirAbs is BackupDir resolved against Root. Empty means the
	// default next to the repository.
	BackupDirAbs string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks where configuration came from.
type Sources struct {
	Global  string   // global config path if loaded
	Project string   // project or explicit config path if loaded
	Env     []string // environment variables that were applied
}

// Default returns the default configuration.
func Default() Config {
	return Config{LogLevel: "warn"}
}

// Input holds the inputs for [Load].
type Input struct {
	WorkDirOverride   string // -C/--cwd; os.Getwd() when empty
	ConfigPath        string // -c/--config
	BackupDirOverride string // --backup-dir
	Verbose           bool   // -v/--verbose forces debug logging
	Env               map[string]string
}

// Load resolves the configuration with this precedence (highest wins):
//  1. Defaults
//  2. Global config ($XDG_CONFIG_HOME/truth/config.json or ~/.config/truth/config.json)
//  3. Project config (.truth.json in the repository root, if present)
//  4. Explicit config file (-c)
//  5. Environment (TRUTH_BACKUP_DIR, TRUTH_LOG_LEVEL)
//  6. CLI flags
func Load(in Input) (Config, error) {
	workDir := in.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg := Default()

	if p := globalPath(in.Env); p != "" {
		fileCfg, loaded, err := loadFile(p, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fileCfg)
			cfg.Sources.Global = p
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if in.ConfigPath != "" {
		projectPath, mustExist = in.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	fileCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, fileCfg)
		cfg.Sources.Project = projectPath
	}

	if v := in.Env[EnvBackupDir]; v != "" {
		cfg.BackupDir = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvBackupDir)
	}

	if v := in.Env[EnvLogLevel]; v != "" {
		cfg.LogLevel = v
		cfg.Sources.Env = append(cfg.Sources.Env, EnvLogLevel)
	}

	if in.BackupDirOverride != "" {
		cfg.BackupDir = in.BackupDirOverride
	}

	if in.Verbose {
		cfg.LogLevel = "debug"
	}

	_, err = ParseLevel(cfg.LogLevel)
	if err != nil {
		return Config{}, err
	}

	cfg.Root = workDir

	switch {
	case cfg.BackupDir == "":
	case filepath.IsAbs(cfg.BackupDir):
		cfg.BackupDirAbs = cfg.BackupDir
	default:
		cfg.BackupDirAbs = filepath.Join(workDir, cfg.BackupDir)
	}

	return cfg, nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)

	return lvl
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
}

func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "truth", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "truth", "config.json")
	}

	return ""
}

// loadFile loads a config file. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist && errors.Is(err, os.ErrNotExist) {
			return Config{}, false, nil
		}

		if mustExist && errors.Is(err, os.ErrNotExist) {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.BackupDir != "" {
		base.BackupDir = overlay.BackupDir
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

// Format renders the config as key=value lines followed by its sources.
func (c Config) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "root=%s\n", c.Root)

	if c.BackupDirAbs != "" {
		fmt.Fprintf(&b, "backup_dir=%s\n", c.BackupDirAbs)
	} else {
		b.WriteString("backup_dir=(default: <parent>/<project>_backups)\n")
	}

	fmt.Fprintf(&b, "log_level=%s\n", strings.ToLower(c.LogLevel))
	b.WriteString("\n# sources\n")

	if c.Sources.Global == "" && c.Sources.Project == "" && len(c.Sources.Env) == 0 {
		b.WriteString("(defaults only)\n")

		return b.String()
	}

	if c.Sources.Global != "" {
		fmt.Fprintf(&b, "global_config=%s\n", c.Sources.Global)
	}

	if c.Sources.Project != "" {
		fmt.Fprintf(&b, "project_config=%s\n", c.Sources.Project)
	}

	for _, e := range c.Sources.Env {
		fmt.Fprintf(&b, "env=%s\n", e)
	}

	return b.String()
}
