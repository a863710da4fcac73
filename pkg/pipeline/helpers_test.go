package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/integrations/npm"
	"github.com/matzehuels/typecensus/pkg/toolchain"
	"github.com/matzehuels/typecensus/pkg/toolchain/toolchaintest"
)

const (
	cmdInstall = "npm install --omit=dev --ignore-scripts --no-audit"
	cmdList    = "npm ls --all --parseable --omit=dev"
	cmdTSC     = "tsc"
)

func cmdInstallTypes(pkg string) string {
	return "npm install " + pkg + " --omit=dev --ignore-scripts --no-audit"
}

// harness lays out a corpus, a workspace and a tsconfig under one temp dir.
type harness struct {
	corpus    string
	workspace string
	tsconfig  string
	tools     *toolchaintest.Runner

	mu      sync.Mutex
	scripts map[string]map[string]toolchaintest.Response // package -> cmdline -> response
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		corpus:    filepath.Join(root, "tarballs"),
		workspace: filepath.Join(root, "packages"),
		tsconfig:  filepath.Join(root, "tsconfig.json"),
		tools:     toolchaintest.New(),
		scripts:   map[string]map[string]toolchaintest.Response{},
	}
	require.NoError(t, os.MkdirAll(h.corpus, 0755))
	require.NoError(t, os.WriteFile(h.tsconfig, []byte(`{"compilerOptions":{"declaration":true}}`), 0644))
	h.tools.Handler = h.respond
	return h
}

// respond picks the script of the package whose root cmd.Dir is.
func (h *harness) respond(cmd toolchain.Command) (toolchaintest.Response, bool) {
	pkg := filepath.Base(filepath.Dir(cmd.Dir))
	h.mu.Lock()
	defer h.mu.Unlock()
	resp, ok := h.scripts[pkg][cmd.String()]
	return resp, ok
}

// script sets the response of cmdline when run for pkg.
func (h *harness) script(pkg, cmdline string, resp toolchaintest.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scripts[pkg] == nil {
		h.scripts[pkg] = map[string]toolchaintest.Response{}
	}
	h.scripts[pkg][cmdline] = resp
}

// addPackage writes <corpus>/<name>.tgz holding package/package.json.
func (h *harness) addPackage(t *testing.T, name string) corpus.Archive {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/", Typeflag: tar.TypeDir, Mode: 0755}))
	body := []byte(`{"name":"` + name + `","version":"1.0.0"}`)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/package.json", Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(h.corpus, name+".tgz")
	require.NoError(t, os.WriteFile(path, gz.Bytes(), 0644))
	return corpus.Archive{Name: name, Path: path}
}

// root is where a package's stages run.
func (h *harness) root(pkg string) string {
	return filepath.Join(h.workspace, pkg, "package")
}

func (h *harness) processor(loc Locator) *Processor {
	return NewProcessor(ProcessorOptions{
		Runner:    h.tools,
		Locator:   loc,
		Workspace: h.workspace,
		TSConfig:  h.tsconfig,
	})
}

// commandsFor returns the command lines run for pkg, in order.
func (h *harness) commandsFor(pkg string) []string {
	return h.tools.CallsIn(filepath.Join(pkg, "package"))
}

// stubLocator answers probes from a table. Unknown names do not exist.
type stubLocator struct {
	mu     sync.Mutex
	found  map[string]bool
	errs   map[string]error
	probes []string
}

func newStubLocator(found ...string) *stubLocator {
	l := &stubLocator{found: map[string]bool{}, errs: map[string]error{}}
	for _, name := range found {
		l.found[name] = true
	}
	return l
}

func (l *stubLocator) TypesPackage(name string) string {
	return npm.DefaultScope + "/" + npm.EscapeName(name)
}

func (l *stubLocator) Exists(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.probes = append(l.probes, name)
	if err := l.errs[name]; err != nil {
		return false, err
	}
	return l.found[name], nil
}

func (l *stubLocator) probed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.probes...)
}

// listing renders npm ls --parseable output for root and deps.
func listing(root string, deps ...string) string {
	lines := []string{root}
	for _, d := range deps {
		lines = append(lines, filepath.ToSlash(filepath.Join(root, "node_modules", d)))
	}
	return strings.Join(lines, "\n") + "\n"
}
