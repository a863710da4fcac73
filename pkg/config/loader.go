package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/pipeline"
)

// Default returns a configuration holding only built-in defaults.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads path (DefaultPath when empty), loads .env from the working
// directory, applies environment overrides and defaults, and validates the
// result. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
	case stderrors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}

	_ = godotenv.Load()
	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Corpus.Dir) == "" {
		cfg.Corpus.Dir = "tarballs"
	}
	if strings.TrimSpace(cfg.Corpus.Pattern) == "" {
		cfg.Corpus.Pattern = "*.tgz"
	}
	if cfg.Corpus.Window == 0 {
		cfg.Corpus.Window = pipeline.DefaultWindow
	}
	if cfg.Corpus.Stride == 0 {
		cfg.Corpus.Stride = pipeline.DefaultStride
	}

	if strings.TrimSpace(cfg.Workspace.Dir) == "" {
		cfg.Workspace.Dir = pipeline.DefaultWorkspace
	}

	if strings.TrimSpace(cfg.NPM.Command) == "" {
		cfg.NPM.Command = "npm"
	}
	if strings.TrimSpace(cfg.NPM.LogLevel) == "" {
		cfg.NPM.LogLevel = "silent"
	}
	if cfg.NPM.Flags == nil {
		cfg.NPM.Flags = []string{"--omit=dev", "--ignore-scripts", "--no-audit"}
	}
	if cfg.NPM.BaseTypes == nil {
		cfg.NPM.BaseTypes = slices.Clone(pipeline.DefaultBaseTypes)
	}
	if cfg.NPM.Timeout == 0 {
		cfg.NPM.Timeout = 10 * time.Minute
	}

	if strings.TrimSpace(cfg.TypeScript.Command) == "" {
		cfg.TypeScript.Command = "tsc"
	}
	if strings.TrimSpace(cfg.TypeScript.TSConfig) == "" {
		cfg.TypeScript.TSConfig = pipeline.DefaultTSConfig
	}
	if cfg.TypeScript.Timeout == 0 {
		cfg.TypeScript.Timeout = 10 * time.Minute
	}

	if strings.TrimSpace(cfg.Registry.URL) == "" {
		cfg.Registry.URL = "https://registry.npmjs.org"
	}
	if strings.TrimSpace(cfg.Registry.Scope) == "" {
		cfg.Registry.Scope = "@types"
	}
	if cfg.Registry.Timeout == 0 {
		cfg.Registry.Timeout = 10 * time.Second
	}
	if cfg.Registry.Retries == 0 {
		cfg.Registry.Retries = 3
	}
	if cfg.Registry.RetryDelay == 0 {
		cfg.Registry.RetryDelay = time.Second
	}
	if cfg.Registry.Burst == 0 {
		cfg.Registry.Burst = 1
	}
	if strings.TrimSpace(cfg.Registry.UserAgent) == "" {
		cfg.Registry.UserAgent = "typecensus"
	}

	if strings.TrimSpace(cfg.Cache.Backend) == "" {
		cfg.Cache.Backend = "file"
	}
	if strings.TrimSpace(cfg.Cache.Dir) == "" {
		cfg.Cache.Dir = defaultCacheDir()
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}

	if strings.TrimSpace(cfg.Report.Output) == "" {
		cfg.Report.Output = filepath.Join("results", "results.csv")
	}
	if strings.TrimSpace(cfg.Report.MongoDatabase) == "" {
		cfg.Report.MongoDatabase = "typecensus"
	}

	if strings.TrimSpace(cfg.Upload.Prefix) == "" {
		cfg.Upload.Prefix = "typecensus"
	}

	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = pipeline.DefaultWorkers
	}
}

// defaultCacheDir follows the XDG convention (~/.cache/typecensus).
func defaultCacheDir() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, "typecensus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "typecensus-cache")
	}
	return filepath.Join(home, ".cache", "typecensus")
}
