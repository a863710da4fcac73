package config

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/matzehuels/typecensus/pkg/cache"
	"github.com/matzehuels/typecensus/pkg/errors"
)

// Validate checks cross-field constraints. It expects defaults to have
// been applied.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateCorpus,
		c.validateTools,
		c.validateRegistry,
		c.validateCache,
		c.validateReport,
		c.validateRun,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, format, args...)
}

func (c *Config) validateCorpus() error {
	if c.Corpus.Stride < 1 {
		return invalid("corpus.stride must be >= 1, got %d", c.Corpus.Stride)
	}
	if _, err := glob.Compile(c.Corpus.Pattern); err != nil {
		return invalid("corpus.pattern %q: %v", c.Corpus.Pattern, err)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.NPM.Timeout < 0 {
		return invalid("npm.timeout must not be negative")
	}
	if c.TypeScript.Timeout < 0 {
		return invalid("typescript.timeout must not be negative")
	}
	for _, pkg := range c.NPM.BaseTypes {
		if err := errors.ValidateNpmPackageName(pkg); err != nil {
			return invalid("npm.base_types: %v", errors.UserMessage(err))
		}
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if err := errors.ValidateURL(c.Registry.URL); err != nil {
		return invalid("registry.url: %s", errors.UserMessage(err))
	}
	if !strings.HasPrefix(c.Registry.Scope, "@") || strings.Contains(c.Registry.Scope, "/") {
		return invalid("registry.scope must look like @scope, got %q", c.Registry.Scope)
	}
	if c.Registry.Retries < 1 {
		return invalid("registry.retries must be >= 1, got %d", c.Registry.Retries)
	}
	if c.Registry.RateLimit < 0 {
		return invalid("registry.rate_limit must not be negative")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch cache.Backend(c.Cache.Backend) {
	case cache.BackendNone, cache.BackendMemory, cache.BackendFile:
	case cache.BackendRedis:
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return invalid("cache.redis_url is required for the redis backend")
		}
	default:
		return invalid("cache.backend must be one of: none, memory, file, redis; got %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return invalid("cache.ttl must not be negative")
	}
	return nil
}

func (c *Config) validateReport() error {
	if strings.TrimSpace(c.Report.Output) == "" {
		return invalid("report.output must not be empty")
	}
	if c.Upload.Enabled() {
		if c.Upload.Endpoint == "" || c.Upload.AccessKey == "" || c.Upload.SecretKey == "" {
			return invalid("upload.bucket is set but endpoint or credentials are missing")
		}
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 1 {
		return invalid("run.workers must be >= 1, got %d", c.Run.Workers)
	}
	return nil
}
