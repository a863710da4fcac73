package toolchain

import "strings"

const nodeModulesMarker = "node_modules/"

// Dependency is one resolved package from a dependency listing.
type Dependency struct {
	Path string // installed location as printed by npm
	Name string // package name, e.g. "@babel/core"
}

// ParseListing reads the output of `npm ls --parseable`. The first line is
// the package itself and is dropped; blank lines and lines without a
// node_modules segment are skipped. The name is whatever follows the last
// "node_modules/" marker, so nested installs resolve to the inner package.
func ParseListing(stdout string) []Dependency {
	lines := SplitLines(stdout)
	if len(lines) <= 1 {
		return nil
	}
	var deps []Dependency
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, `\`, "/")
		i := strings.LastIndex(line, nodeModulesMarker)
		if i < 0 {
			continue
		}
		name := strings.TrimRight(line[i+len(nodeModulesMarker):], "/")
		if name == "" {
			continue
		}
		deps = append(deps, Dependency{Path: line, Name: name})
	}
	return deps
}

// SplitLines splits on "\n", "\r\n" and "\r". A trailing terminator does
// not produce an empty final element, and empty input yields no lines.
func SplitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i])
		if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
			i++
		}
		s = s[i+1:]
	}
	return lines
}
