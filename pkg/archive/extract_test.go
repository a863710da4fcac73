package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/typecensus/pkg/errors"
)

type entry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func file(name, body string) entry { return entry{name: name, body: body, typeflag: tar.TypeReg} }
func dir(name string) entry        { return entry{name: name, typeflag: tar.TypeDir} }

func buildTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: 0644, Size: int64(len(e.body)), Linkname: e.linkname}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0755
			hdr.Size = 0
		}
		if e.typeflag == tar.TypeSymlink {
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pkg-1.0.0.tgz")
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestExtractGzipPackage(t *testing.T) {
	src := writeArchive(t, gzipped(t, buildTar(t,
		dir("package/"),
		file("package/package.json", `{"name":"left-pad"}`),
		file("package/lib/index.js", "module.exports = 1"),
	)))
	dest := filepath.Join(t.TempDir(), "left-pad-1.3.0")

	root, err := Extract(src, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "package"), root)

	data, err := os.ReadFile(filepath.Join(root, "lib", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1", string(data))
}

func TestExtractPlainTarWithoutDirEntries(t *testing.T) {
	src := writeArchive(t, buildTar(t,
		file("./node/package.json", "{}"),
		file("./node/README.md", "hi"),
	))
	dest := t.TempDir()

	root, err := Extract(src, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "node"), root)
	assert.FileExists(t, filepath.Join(root, "README.md"))
}

func TestExtractTopLevelNotPackage(t *testing.T) {
	// @types tarballs use the package name as their top-level directory.
	src := writeArchive(t, gzipped(t, buildTar(t, file("lodash/package.json", "{}"))))
	root, err := Extract(src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "lodash", filepath.Base(root))
}

func TestExtractRejectsMultipleRoots(t *testing.T) {
	src := writeArchive(t, gzipped(t, buildTar(t,
		file("package/package.json", "{}"),
		file("other/package.json", "{}"),
	)))
	_, err := Extract(src, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExtract))
	assert.Contains(t, err.Error(), "found 2")
}

func TestExtractRejectsEmptyArchive(t *testing.T) {
	src := writeArchive(t, gzipped(t, buildTar(t)))
	_, err := Extract(src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 0")
}

func TestExtractRejectsTopLevelFile(t *testing.T) {
	src := writeArchive(t, buildTar(t, file("package.json", "{}")))
	_, err := Extract(src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []string{"../evil.js", "package/../../evil.js", "/etc/evil"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			outer := t.TempDir()
			dest := filepath.Join(outer, "dest")
			src := writeArchive(t, buildTar(t, file(name, "x")))

			_, err := Extract(src, dest)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeExtract))
			assert.NoFileExists(t, filepath.Join(outer, "evil.js"))
		})
	}
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	src := writeArchive(t, buildTar(t,
		file("package/package.json", "{}"),
		entry{name: "package/link", typeflag: tar.TypeSymlink, linkname: "../../outside"},
	))
	_, err := Extract(src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the archive")
}

func TestExtractRejectsSymlinkChain(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "ws", "pkg")
	src := writeArchive(t, buildTar(t,
		dir("package/"),
		entry{name: "package/l1", typeflag: tar.TypeSymlink, linkname: ".."},
		entry{name: "package/l1/l2", typeflag: tar.TypeSymlink, linkname: ".."},
		file("package/l1/l2/evil.txt", "x"),
	))

	_, err := Extract(src, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExtract))
	assert.Contains(t, err.Error(), "crosses symlink")
	assert.NoFileExists(t, filepath.Join(base, "ws", "evil.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "evil.txt"))
}

func TestExtractFileReplacesSymlink(t *testing.T) {
	src := writeArchive(t, buildTar(t,
		file("package/index.js", "original"),
		entry{name: "package/main.js", typeflag: tar.TypeSymlink, linkname: "index.js"},
		file("package/main.js", "replaced"),
	))
	root, err := Extract(src, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	data, err = os.ReadFile(filepath.Join(root, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))
}

func TestExtractSkipsGlobalPaxHeader(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": "git archive"},
	}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/", Typeflag: tar.TypeDir, Mode: 0755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/index.js", Typeflag: tar.TypeReg, Mode: 0644, Size: 1}))
	_, err := tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	dest := t.TempDir()
	root, err := Extract(writeArchive(t, gzipped(t, buf.Bytes())), dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "package"), root)
	assert.FileExists(t, filepath.Join(root, "index.js"))
	assert.NoFileExists(t, filepath.Join(dest, "pax_global_header"))
}

func TestExtractKeepsInternalSymlink(t *testing.T) {
	src := writeArchive(t, buildTar(t,
		file("package/index.js", "x"),
		entry{name: "package/main.js", typeflag: tar.TypeSymlink, linkname: "index.js"},
	))
	root, err := Extract(src, t.TempDir())
	require.NoError(t, err)
	target, err := os.Readlink(filepath.Join(root, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "index.js", target)
}

func TestExtractCorruptGzip(t *testing.T) {
	src := writeArchive(t, []byte{0x1f, 0x8b, 0x00, 0x01, 0x02})
	_, err := Extract(src, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExtract))
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(filepath.Join(t.TempDir(), "nope.tgz"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExtract))
}

func TestExtractReadOnlyFilesBecomeWritable(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/ro.js", Typeflag: tar.TypeReg, Mode: 0444, Size: 1}))
	_, _ = tw.Write([]byte("x"))
	require.NoError(t, tw.Close())

	root, err := ExtractReader(&buf, t.TempDir())
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(root, "ro.js"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0200)
}

func TestCleanEntryName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"package/", "package"},
		{"./package/a.js", "package/a.js"},
		{"./", ""},
		{".", ""},
		{"package//a.js", "package/a.js"},
		{"/abs", "/abs"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanEntryName(tt.in), "cleanEntryName(%q)", tt.in)
	}
}
