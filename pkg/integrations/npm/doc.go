// Package npm checks the npm registry for published type declarations.
//
// # Overview
//
// Most JavaScript packages ship without type declarations. The community
// publishes them separately under the DefinitelyTyped scope, named by a
// fixed transform of the original package name:
//
//	lodash       -> @types/lodash
//	@babel/core  -> @types/babel__core
//
// [EscapeName] implements the transform and [TypesLocator.TypesPackage]
// applies the scope.
//
// # Usage
//
//	loc := npm.NewTypesLocator(npm.LocatorOptions{Cache: c})
//	ok, err := loc.Exists(ctx, "@babel/core")
//	if err != nil {
//	    // registry unreachable after retries
//	}
//
// [TypesLocator.Exists] sends one HEAD request per uncached name; it never
// downloads the package document. [TypesLocator.FetchPackage] fetches the
// full document when details such as the latest version are wanted.
//
// # Caching
//
// Definitive answers (2xx and 404) are stored in the configured
// [cache.Cache] for the locator's TTL. Server errors and rate limiting are
// never cached.
//
// [cache.Cache]: github.com/matzehuels/typecensus/pkg/cache.Cache
package npm
