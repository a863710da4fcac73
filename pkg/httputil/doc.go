// Package httputil provides HTTP utilities for registry clients.
//
// # Overview
//
// This package provides infrastructure shared by the registry client:
//
//   - [Retry] and [Policy]: automatic retry with exponential backoff
//   - [Limiter]: a token bucket bounding the request rate to one host
//
// Response caching lives in [github.com/matzehuels/typecensus/pkg/cache].
//
// # Retry
//
// [Retry] re-runs a function for transient failures. Only errors wrapped in
// [RetryableError] are retried; the caller decides what is transient:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Usage:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// # Rate limiting
//
// [Limiter] wraps golang.org/x/time/rate. Workers processing packages in
// parallel share a single limiter so the registry sees a bounded rate no
// matter how many packages are in flight:
//
//	lim := httputil.NewLimiter(20, 5)
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
//
// # Configuration
//
// Default settings:
//
//   - Max attempts: 3
//   - Base backoff: 1 second, capped at 10 seconds
//   - Rate: unlimited unless configured
package httputil
