package toolchain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/typecensus/pkg/toolchain"
	"github.com/matzehuels/typecensus/pkg/toolchain/toolchaintest"
)

func TestNPMInvocations(t *testing.T) {
	r := toolchaintest.New()
	npm := &toolchain.NPM{Runner: r, Timeout: time.Minute}
	ctx := context.Background()

	_, err := npm.Install(ctx, "/w/pkg")
	require.NoError(t, err)
	_, err = npm.List(ctx, "/w/pkg")
	require.NoError(t, err)
	_, err = npm.InstallPackage(ctx, "/w/pkg", "@types/lodash")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npm install --omit=dev --ignore-scripts --no-audit",
		"npm ls --all --parseable --omit=dev",
		"npm install @types/lodash --omit=dev --ignore-scripts --no-audit",
	}, r.CommandLines())

	for _, c := range r.Calls() {
		assert.Equal(t, "/w/pkg", c.Dir)
		assert.Equal(t, []string{"npm_config_loglevel=silent"}, c.Env)
		assert.Equal(t, time.Minute, c.Timeout)
	}
}

func TestNPMOverrides(t *testing.T) {
	r := toolchaintest.New()
	npm := &toolchain.NPM{Runner: r, Command: "pnpm", LogLevel: "error", Flags: []string{"--prod"}}

	_, _ = npm.Install(context.Background(), "/w")
	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pnpm install --prod", calls[0].String())
	assert.Equal(t, []string{"npm_config_loglevel=error"}, calls[0].Env)
}

func TestNPMInstallDoesNotAliasDefaults(t *testing.T) {
	r := toolchaintest.New()
	npm := &toolchain.NPM{Runner: r}
	_, _ = npm.InstallPackage(context.Background(), "/w", "@types/a")
	_, _ = npm.InstallPackage(context.Background(), "/w", "@types/b")
	assert.Equal(t, []string{"--omit=dev", "--ignore-scripts", "--no-audit"}, toolchain.DefaultInstallFlags)
}

func TestTypeScriptCompile(t *testing.T) {
	r := toolchaintest.New().On("tsc", toolchaintest.Response{Stdout: "a.ts(1,1): error TS1\n", Exit: 2})
	tsc := &toolchain.TypeScript{Runner: r}

	res, err := tsc.Compile(context.Background(), "/w/pkg")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.False(t, res.Failed(), "diagnostics on stdout are not a tool failure")

	tsc = &toolchain.TypeScript{Runner: r, Command: "npx", Args: []string{"tsc", "--pretty", "false"}}
	_, _ = tsc.Compile(context.Background(), "/w/pkg")
	assert.Equal(t, "npx tsc --pretty false", r.CommandLines()[1])
}

func TestResultFailed(t *testing.T) {
	var nilResult *toolchain.Result
	assert.False(t, nilResult.Failed())
	assert.False(t, (&toolchain.Result{ExitCode: 1}).Failed())
	assert.True(t, (&toolchain.Result{Stderr: []byte("npm ERR! 404")}).Failed())
}

func TestParseListing(t *testing.T) {
	out := "/w/pkg/package\n" +
		"/w/pkg/package/node_modules/lodash\n" +
		"\n" +
		"/w/pkg/package/node_modules/@babel/core\n" +
		"/w/pkg/package/node_modules/@babel/core/node_modules/semver\r\n" +
		"/somewhere/else\n"

	deps := toolchain.ParseListing(out)
	require.Len(t, deps, 3)
	assert.Equal(t, "lodash", deps[0].Name)
	assert.Equal(t, "@babel/core", deps[1].Name)
	assert.Equal(t, "semver", deps[2].Name)
	assert.Equal(t, "/w/pkg/package/node_modules/@babel/core/node_modules/semver", deps[2].Path)
}

func TestParseListingRootOnly(t *testing.T) {
	assert.Empty(t, toolchain.ParseListing("/w/pkg/package\n"))
	assert.Empty(t, toolchain.ParseListing(""))
}

func TestParseListingWindowsPaths(t *testing.T) {
	deps := toolchain.ParseListing("C:\\w\\pkg\nC:\\w\\pkg\\node_modules\\@types\\node\n")
	require.Len(t, deps, 1)
	assert.Equal(t, "@types/node", deps[0].Name)
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\n", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"a\r\nb\r\n", []string{"a", "b"}},
		{"a\rb", []string{"a", "b"}},
		{"a\n\nb", []string{"a", "", "b"}},
		{"\n", []string{""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolchain.SplitLines(tt.in), "SplitLines(%q)", tt.in)
	}
}
