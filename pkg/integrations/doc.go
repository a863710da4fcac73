// Package integrations provides the shared HTTP client for package registry
// lookups.
//
// # Overview
//
// [Client] wraps net/http with the behaviour every registry call needs:
//
//   - Retry with exponential backoff for transport failures, 429 and 5xx
//   - A shared token-bucket [httputil.Limiter]
//   - Default headers (User-Agent, auth tokens for private registries)
//   - Event reporting through [observability.HTTPHooks]
//
// Registry-specific clients live in subpackages; [npm] checks the npm
// registry for published type declaration packages.
//
// # Status handling
//
// [Client.Head] returns the final status code and leaves its interpretation
// to the caller. [Client.Get] maps statuses to errors: 404 wraps
// [ErrNotFound], other failures wrap [ErrNetwork] as a [*StatusError].
//
// [npm]: github.com/matzehuels/typecensus/pkg/integrations/npm
// [httputil.Limiter]: github.com/matzehuels/typecensus/pkg/httputil.Limiter
// [observability.HTTPHooks]: github.com/matzehuels/typecensus/pkg/observability.HTTPHooks
package integrations
