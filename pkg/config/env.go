package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to cfg.
// Pattern: TYPECENSUS_[SECTION]_[KEY] (e.g., TYPECENSUS_CORPUS_WINDOW).
// Unparseable values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	// Corpus
	setEnvString(&cfg.Corpus.Dir, "TYPECENSUS_CORPUS_DIR")
	setEnvString(&cfg.Corpus.Pattern, "TYPECENSUS_CORPUS_PATTERN")
	setEnvInt(&cfg.Corpus.Window, "TYPECENSUS_CORPUS_WINDOW")
	setEnvInt(&cfg.Corpus.Stride, "TYPECENSUS_CORPUS_STRIDE")

	// Workspace
	setEnvString(&cfg.Workspace.Dir, "TYPECENSUS_WORKSPACE_DIR")
	if val, ok := os.LookupEnv("TYPECENSUS_WORKSPACE_CLEAN"); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			cfg.Workspace.Clean = &b
		}
	}

	// Tools
	setEnvString(&cfg.NPM.Command, "TYPECENSUS_NPM_COMMAND")
	setEnvString(&cfg.NPM.LogLevel, "TYPECENSUS_NPM_LOGLEVEL")
	setEnvList(&cfg.NPM.BaseTypes, "TYPECENSUS_NPM_BASE_TYPES")
	setEnvDuration(&cfg.NPM.Timeout, "TYPECENSUS_NPM_TIMEOUT")
	setEnvString(&cfg.TypeScript.Command, "TYPECENSUS_TYPESCRIPT_COMMAND")
	setEnvString(&cfg.TypeScript.TSConfig, "TYPECENSUS_TYPESCRIPT_TSCONFIG")
	setEnvDuration(&cfg.TypeScript.Timeout, "TYPECENSUS_TYPESCRIPT_TIMEOUT")

	// Registry
	setEnvString(&cfg.Registry.URL, "TYPECENSUS_REGISTRY_URL")
	setEnvString(&cfg.Registry.Scope, "TYPECENSUS_REGISTRY_SCOPE")
	setEnvDuration(&cfg.Registry.Timeout, "TYPECENSUS_REGISTRY_TIMEOUT")
	setEnvInt(&cfg.Registry.Retries, "TYPECENSUS_REGISTRY_RETRIES")
	setEnvFloat64(&cfg.Registry.RateLimit, "TYPECENSUS_REGISTRY_RATE_LIMIT")
	setEnvInt(&cfg.Registry.Burst, "TYPECENSUS_REGISTRY_BURST")

	// Cache
	setEnvString(&cfg.Cache.Backend, "TYPECENSUS_CACHE_BACKEND")
	setEnvString(&cfg.Cache.Dir, "TYPECENSUS_CACHE_DIR")
	setEnvDuration(&cfg.Cache.TTL, "TYPECENSUS_CACHE_TTL")
	setEnvString(&cfg.Cache.RedisURL, "REDIS_URL")
	setEnvString(&cfg.Cache.RedisURL, "TYPECENSUS_CACHE_REDIS_URL")

	// Report
	setEnvString(&cfg.Report.Output, "TYPECENSUS_REPORT_OUTPUT")
	setEnvBool(&cfg.Report.Incremental, "TYPECENSUS_REPORT_INCREMENTAL")
	setEnvString(&cfg.Report.SQLite, "TYPECENSUS_REPORT_SQLITE")
	setEnvString(&cfg.Report.MongoURI, "TYPECENSUS_REPORT_MONGO_URI")
	setEnvString(&cfg.Report.MongoDatabase, "TYPECENSUS_REPORT_MONGO_DATABASE")

	// Upload
	setEnvString(&cfg.Upload.Endpoint, "S3_ENDPOINT")
	setEnvString(&cfg.Upload.Region, "S3_REGION")
	setEnvString(&cfg.Upload.Bucket, "S3_BUCKET")
	setEnvString(&cfg.Upload.AccessKey, "S3_ACCESS_KEY")
	setEnvString(&cfg.Upload.SecretKey, "S3_SECRET_KEY")
	setEnvBool(&cfg.Upload.UseSSL, "S3_USE_SSL")
	setEnvString(&cfg.Upload.Prefix, "TYPECENSUS_UPLOAD_PREFIX")

	// Run
	setEnvInt(&cfg.Run.Workers, "TYPECENSUS_RUN_WORKERS")

	// Telemetry
	setEnvString(&cfg.Telemetry.MetricsAddr, "TYPECENSUS_TELEMETRY_METRICS_ADDR")
	setEnvString(&cfg.Telemetry.OTLPEndpoint, "TYPECENSUS_TELEMETRY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Telemetry.OTLPInsecure, "TYPECENSUS_TELEMETRY_OTLP_INSECURE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*target = append([]string{}, out...)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*target = i
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*target = f
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}
