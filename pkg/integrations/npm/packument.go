package npm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/matzehuels/typecensus/pkg/integrations"
)

// PackageInfo summarises the latest published version of a package.
type PackageInfo struct {
	Name        string
	Version     string
	Description string
	License     string
	Deprecated  string
	Versions    int
}

// FetchPackage retrieves registry metadata for a package, typically a
// declaration package returned by [TypesLocator.TypesPackage].
func (l *TypesLocator) FetchPackage(ctx context.Context, pkg string) (*PackageInfo, error) {
	pkg = strings.TrimSpace(pkg)
	var data registryResponse
	if err := l.client.Get(ctx, l.base+"/"+escapePath(pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return nil, err
	}

	latest := data.DistTags.Latest
	v, ok := data.Versions[latest]
	if !ok {
		return nil, fmt.Errorf("version %s not found", latest)
	}

	return &PackageInfo{
		Name:        data.Name,
		Version:     latest,
		Description: v.Description,
		License:     extractField(v.License, "type"),
		Deprecated:  extractField(v.Deprecated, "message"),
		Versions:    len(data.Versions),
	}, nil
}

// escapePath encodes the scope separator the way the registry documents
// for metadata requests (@scope%2Fname).
func escapePath(pkg string) string {
	if strings.HasPrefix(pkg, "@") {
		return "@" + url.PathEscape(pkg[1:])
	}
	return url.PathEscape(pkg)
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type registryResponse struct {
	Name     string                    `json:"name"`
	DistTags distTags                  `json:"dist-tags"`
	Versions map[string]versionDetails `json:"versions"`
}

type distTags struct {
	Latest string `json:"latest"`
}

type versionDetails struct {
	Description string `json:"description"`
	License     any    `json:"license"`
	Deprecated  any    `json:"deprecated"`
}
