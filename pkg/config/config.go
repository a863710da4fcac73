// Package config loads typecensus settings.
//
// Settings come from four layers, later layers winning:
//
//  1. Built-in defaults
//  2. A TOML file (typecensus.toml by default; a missing file is fine)
//  3. Environment variables, including those loaded from a .env file
//  4. Command-line flags, applied by the CLI after [Load]
//
// Environment variables follow TYPECENSUS_<SECTION>_<KEY>, for example
// TYPECENSUS_RUN_WORKERS=4. REDIS_URL and the conventional S3 variables
// (S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET) are honoured too.
package config

import (
	"time"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "typecensus.toml"

// Config is the complete configuration of a run.
type Config struct {
	Corpus     CorpusConfig     `toml:"corpus"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	NPM        NPMConfig        `toml:"npm"`
	TypeScript TypeScriptConfig `toml:"typescript"`
	Registry   RegistryConfig   `toml:"registry"`
	Cache      CacheConfig      `toml:"cache"`
	Report     ReportConfig     `toml:"report"`
	Upload     UploadConfig     `toml:"upload"`
	Run        RunConfig        `toml:"run"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// CorpusConfig selects the archives to analyse. A negative Window selects
// the whole corpus.
type CorpusConfig struct {
	Dir     string `toml:"dir"`
	Pattern string `toml:"pattern"`
	Window  int    `toml:"window"`
	Stride  int    `toml:"stride"`
}

// WorkspaceConfig controls where archives are unpacked.
type WorkspaceConfig struct {
	Dir string `toml:"dir"`
	// Clean removes a package's directory left by an earlier run before
	// extracting into it. A pointer so an explicit false survives defaults.
	Clean *bool `toml:"clean"`
}

// NPMConfig describes the package manager.
type NPMConfig struct {
	Command   string        `toml:"command"`
	LogLevel  string        `toml:"loglevel"`
	Flags     []string      `toml:"flags"`
	BaseTypes []string      `toml:"base_types"`
	Timeout   time.Duration `toml:"timeout"`
}

// TypeScriptConfig describes the type-checker.
type TypeScriptConfig struct {
	Command  string        `toml:"command"`
	Args     []string      `toml:"args"`
	TSConfig string        `toml:"tsconfig"`
	Timeout  time.Duration `toml:"timeout"`
}

// RegistryConfig describes the declaration registry.
type RegistryConfig struct {
	URL        string        `toml:"url"`
	Scope      string        `toml:"scope"`
	Timeout    time.Duration `toml:"timeout"`
	Retries    int           `toml:"retries"`
	RetryDelay time.Duration `toml:"retry_delay"`
	RateLimit  float64       `toml:"rate_limit"`
	Burst      int           `toml:"burst"`
	UserAgent  string        `toml:"user_agent"`
}

// CacheConfig selects the probe cache backend.
type CacheConfig struct {
	Backend    string        `toml:"backend"`
	Dir        string        `toml:"dir"`
	TTL        time.Duration `toml:"ttl"`
	RedisURL   string        `toml:"redis_url"`
	MemorySize int           `toml:"memory_size"`
}

// ReportConfig describes where records go.
type ReportConfig struct {
	Output        string `toml:"output"`
	Incremental   bool   `toml:"incremental"`
	SQLite        string `toml:"sqlite"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// UploadConfig describes the optional object-storage destination.
type UploadConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Enabled reports whether an upload destination is configured.
func (u UploadConfig) Enabled() bool { return u.Bucket != "" }

// RunConfig tunes the driver.
type RunConfig struct {
	Workers int `toml:"workers"`
}

// TelemetryConfig enables metrics and tracing export.
type TelemetryConfig struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
}

// CleanWorkspace reports the effective workspace.clean setting.
func (c *Config) CleanWorkspace() bool {
	return c.Workspace.Clean == nil || *c.Workspace.Clean
}
