// Package cli implements the typecensus command-line interface.
package cli

import (
	"io"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/typecensus/pkg/buildinfo"
	"github.com/matzehuels/typecensus/pkg/cache"
	"github.com/matzehuels/typecensus/pkg/config"
	"github.com/matzehuels/typecensus/pkg/httputil"
	"github.com/matzehuels/typecensus/pkg/integrations"
	"github.com/matzehuels/typecensus/pkg/integrations/npm"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display and the cache key prefix.
const appName = "typecensus"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Typecensus measures how well npm packages type-check against published declarations",
		Long:         `Typecensus unpacks a corpus of npm tarballs, installs each package with the @types declarations of its dependencies and records what the TypeScript compiler reports, one CSV row per diagnostic.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./"+config.DefaultPath+" if present)")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.probeCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the config selected by --config.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

// =============================================================================
// Locator Factory
// =============================================================================

// newLocator builds the registry locator described by cfg. The returned
// cache must be closed by the caller.
func newLocator(cfg *config.Config, noCache bool) (*npm.TypesLocator, cache.Cache, error) {
	probeCache, err := newCache(cfg, noCache)
	if err != nil {
		return nil, nil, err
	}

	client := integrations.NewClient(integrations.Options{
		Timeout: cfg.Registry.Timeout,
		Retry: httputil.Policy{
			Attempts: cfg.Registry.Retries,
			Delay:    cfg.Registry.RetryDelay,
			MaxDelay: 10 * cfg.Registry.RetryDelay,
		},
		Limiter: httputil.NewLimiter(cfg.Registry.RateLimit, cfg.Registry.Burst),
		Headers: map[string]string{"User-Agent": cfg.Registry.UserAgent + "/" + buildinfo.Version},
	})

	loc := npm.NewTypesLocator(npm.LocatorOptions{
		RegistryURL: cfg.Registry.URL,
		Scope:       cfg.Registry.Scope,
		Client:      client,
		Cache:       probeCache,
		CacheTTL:    cfg.Cache.TTL,
	})
	return loc, probeCache, nil
}

// newCache opens the probe cache. Keys are namespaced by application and
// registry host, so a shared Redis can serve other tools and answers from
// one registry are never reused for a mirror.
func newCache(cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	c, err := cache.Open(cache.Options{
		Backend:    cache.Backend(cfg.Cache.Backend),
		Dir:        cfg.Cache.Dir,
		RedisURL:   cfg.Cache.RedisURL,
		MemorySize: cfg.Cache.MemorySize,
	})
	if err != nil {
		return nil, err
	}
	return cache.WithPrefix(c, appName+":"+registryHost(cfg.Registry.URL)+":"), nil
}

// registryHost returns the host[:port] of a registry URL, or the URL itself
// when it does not parse.
func registryHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// roundDuration trims a duration for display.
func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}
