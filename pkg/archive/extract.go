// Package archive unpacks package tarballs into a workspace.
//
// npm tarballs are gzip-compressed tar streams holding a single top-level
// directory (conventionally "package/"). [Extract] unpacks one, refuses
// entries that would land outside the destination, and returns the path of
// that single top-level directory, which later stages treat as the package
// root.
package archive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/typecensus/pkg/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Extract unpacks the tarball at src into dest and returns the single
// top-level directory it contains. Compression is detected from the
// stream, so plain .tar files are accepted too. dest is created if needed.
//
// The archive must contain exactly one top-level entry and it must be a
// directory; anything else is an error carrying [errors.ErrCodeExtract].
func Extract(src, dest string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeExtract, err, "open archive")
	}
	defer f.Close()
	return ExtractReader(f, dest)
}

// ExtractReader is [Extract] over an arbitrary stream.
func ExtractReader(r io.Reader, dest string) (string, error) {
	br := bufio.NewReader(r)
	var stream io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeExtract, err, "read gzip header")
		}
		defer zr.Close()
		stream = zr
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", errors.Wrap(errors.ErrCodeExtract, err, "create destination")
	}

	tops := map[string]bool{}
	topIsDir := map[string]bool{}
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeExtract, err, "read tar entry")
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := cleanEntryName(hdr.Name)
		if name == "" {
			continue
		}
		if err := errors.ValidateEntryPath(name); err != nil {
			return "", errors.Wrap(errors.ErrCodeExtract, err, "unsafe entry %q", hdr.Name)
		}

		top, rest, _ := strings.Cut(name, "/")
		tops[top] = true
		if rest != "" || hdr.Typeflag == tar.TypeDir {
			topIsDir[top] = true
		}

		if err := writeEntry(tr, hdr, dest, name); err != nil {
			return "", errors.Wrap(errors.ErrCodeExtract, err, "extract %s", name)
		}
	}

	if len(tops) != 1 {
		return "", errors.New(errors.ErrCodeExtract, "archive must contain exactly one top-level entry, found %d", len(tops))
	}
	var top string
	for t := range tops {
		top = t
	}
	if !topIsDir[top] {
		return "", errors.New(errors.ErrCodeExtract, "top-level entry %q is not a directory", top)
	}
	return filepath.Join(dest, top), nil
}

// cleanEntryName normalises a tar path to slash-separated relative form,
// dropping a leading "./" and trailing slashes.
func cleanEntryName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimRight(name, "/")
	if name == "" || name == "." {
		return ""
	}
	if strings.HasPrefix(name, "/") {
		return name
	}
	return path.Clean(name)
}

func writeEntry(tr *tar.Reader, hdr *tar.Header, dest, name string) error {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if err := checkParents(dest, name); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0755)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		// Owner write is forced so later installs can rewrite package files.
		mode := os.FileMode(hdr.Mode)&0777 | 0600
		if err := removeSymlink(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()

	case tar.TypeSymlink:
		if !withinRoot(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) || filepath.IsAbs(hdr.Linkname) {
			return fmt.Errorf("symlink %s points outside the archive", hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := removeSymlink(target); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)

	default:
		// Hard links, devices and pax metadata carry nothing a package needs.
		return nil
	}
}

// checkParents refuses an entry whose parent path passes through a symlink
// already on disk. Link targets are only checked lexically, so following one
// could leave dest.
func checkParents(dest, name string) error {
	dir := dest
	parts := strings.Split(name, "/")
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path crosses symlink %s", filepath.ToSlash(strings.TrimPrefix(dir, dest+string(filepath.Separator))))
		}
	}
	return nil
}

// removeSymlink deletes target when it is a symlink so the entry replaces
// the link instead of writing through it.
func removeSymlink(target string) error {
	info, err := os.Lstat(target)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(target)
}

func withinRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
