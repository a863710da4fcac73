package npm

import (
	"context"
	"strings"
	"time"

	"github.com/matzehuels/typecensus/pkg/cache"
	"github.com/matzehuels/typecensus/pkg/integrations"
	"github.com/matzehuels/typecensus/pkg/observability"
)

// DefaultScope is the DefinitelyTyped scope holding declaration packages.
const DefaultScope = "@types"

// DefaultCacheTTL is how long a definitive probe answer is reused.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyType = "types"

// EscapeName maps a dependency name onto the DefinitelyTyped naming scheme:
// the leading "@" of a scoped name is dropped and "/" becomes "__".
//
//	EscapeName("@babel/core") == "babel__core"
//	EscapeName("lodash")      == "lodash"
func EscapeName(name string) string {
	return strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "__")
}

// LocatorOptions configures a [TypesLocator]. Zero values select defaults.
type LocatorOptions struct {
	RegistryURL string               // default integrations.DefaultRegistryURL
	Scope       string               // default DefaultScope
	Client      *integrations.Client // default integrations.NewClient(Options{})
	Cache       cache.Cache          // default no caching
	CacheTTL    time.Duration        // default DefaultCacheTTL
}

// TypesLocator answers whether a dependency has a published declaration
// package. It is safe for concurrent use when its cache is.
type TypesLocator struct {
	base   string
	scope  string
	client *integrations.Client
	cache  cache.Cache
	ttl    time.Duration
}

// NewTypesLocator creates a locator from opts.
func NewTypesLocator(opts LocatorOptions) *TypesLocator {
	l := &TypesLocator{
		base:   strings.TrimRight(opts.RegistryURL, "/"),
		scope:  opts.Scope,
		client: opts.Client,
		cache:  opts.Cache,
		ttl:    opts.CacheTTL,
	}
	if l.base == "" {
		l.base = integrations.DefaultRegistryURL
	}
	if l.scope == "" {
		l.scope = DefaultScope
	}
	if l.client == nil {
		l.client = integrations.NewClient(integrations.Options{})
	}
	if l.cache == nil {
		l.cache = cache.NewNullCache()
	}
	if l.ttl <= 0 {
		l.ttl = DefaultCacheTTL
	}
	return l
}

// TypesPackage returns the canonical declaration package for a dependency,
// e.g. "@types/babel__core" for "@babel/core".
func (l *TypesLocator) TypesPackage(name string) string {
	return l.scope + "/" + EscapeName(name)
}

// Probe is the answer to one availability check.
type Probe struct {
	Package string // canonical declaration package, e.g. "@types/lodash"
	Exists  bool
	Cached  bool   // answered from the probe cache
}

// Exists reports whether TypesPackage(name) is published.
func (l *TypesLocator) Exists(ctx context.Context, name string) (bool, error) {
	p, err := l.Lookup(ctx, name)
	return p.Exists, err
}

// Lookup checks TypesPackage(name) against the registry.
//
// Any 2xx answer means found and every other status means missing. Transport
// failures that survive the client's retries are returned as errors. Only
// 2xx and 404 answers are cached; transient statuses are looked up again
// next time.
func (l *TypesLocator) Lookup(ctx context.Context, name string) (Probe, error) {
	p := Probe{Package: l.TypesPackage(name)}
	hooks := observability.Registry()
	cacheHooks := observability.Cache()

	if data, ok, err := l.cache.Get(ctx, p.Package); err == nil && ok && len(data) == 1 {
		cacheHooks.OnCacheHit(ctx, cacheKeyType)
		p.Exists, p.Cached = data[0] == '1', true
		hooks.OnProbe(ctx, p.Package, p.Exists, true, nil)
		return p, nil
	}
	cacheHooks.OnCacheMiss(ctx, cacheKeyType)

	code, err := l.client.Head(ctx, l.base+"/"+p.Package)
	if err != nil {
		hooks.OnProbe(ctx, p.Package, false, false, err)
		return p, err
	}

	p.Exists = code >= 200 && code < 300
	if p.Exists || code == 404 {
		val := []byte{'0'}
		if p.Exists {
			val[0] = '1'
		}
		if err := l.cache.Set(ctx, p.Package, val, l.ttl); err == nil {
			cacheHooks.OnCacheSet(ctx, cacheKeyType, len(val))
		}
	}
	hooks.OnProbe(ctx, p.Package, p.Exists, false, nil)
	return p, nil
}
