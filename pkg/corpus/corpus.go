// Package corpus selects the archives a run will analyse.
//
// A corpus is a flat directory of package tarballs as produced by
// `npm pack` (e.g. "@babel~core-7.28.4.tgz"). [Select] lists the files
// matching a glob pattern, orders them by name and takes a deterministic
// subsample, so two runs over the same directory see the same packages in
// the same order.
package corpus

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/matzehuels/typecensus/pkg/errors"
)

// DefaultPattern matches npm tarballs.
const DefaultPattern = "*.tgz"

// Archive is one packaged tarball in the corpus.
type Archive struct {
	Name string // file name without its archive extension
	Path string // absolute or root-relative path to the file
}

// Options controls which archives [Select] returns.
type Options struct {
	// Pattern is a glob matched against base file names. Empty means DefaultPattern.
	Pattern string
	// Window bounds the sorted listing to its first Window entries. <= 0 is unbounded.
	Window int
	// Stride takes every Stride-th entry of the window. <= 0 is treated as 1.
	Stride int
}

var archiveExts = []string{".tar.gz", ".tgz", ".tar"}

// ArchiveName strips a known archive extension from a file name.
// Unknown extensions are left in place.
func ArchiveName(file string) string {
	base := filepath.Base(file)
	for _, ext := range archiveExts {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// Select lists regular files directly under root whose base name matches
// opts.Pattern, sorted by name, then keeps indices 0, Stride, 2*Stride, ...
// below Window. An empty corpus yields an empty slice and no error.
func Select(root string, opts Options) ([]Archive, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid corpus pattern %q", pattern)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorpus, err, "cannot read corpus directory %s", root)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !g.Match(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return subsample(root, names, opts.Window, opts.Stride), nil
}

func subsample(root string, names []string, window, stride int) []Archive {
	if window > 0 && window < len(names) {
		names = names[:window]
	}
	stride = max(stride, 1)

	out := make([]Archive, 0, (len(names)+stride-1)/stride)
	for i := 0; i < len(names); i += stride {
		out = append(out, Archive{
			Name: ArchiveName(names[i]),
			Path: filepath.Join(root, names[i]),
		})
	}
	return out
}
