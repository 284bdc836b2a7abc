// Package archive unpacks downloaded source archives.
//
// Supported formats are chosen by file name: .zip, .tar, .tar.gz (.tgz),
// .tar.xz (.txz), .tar.bz2 (.tbz2) and .tar.zst. Every entry name is
// validated before it is joined onto the destination, so an archive cannot
// write outside it.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// Format identifies an archive container and compression.
type Format string

const (
	Zip    Format = "zip"
	Tar    Format = "tar"
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarBz2 Format = "tar.bz2"
	TarZst Format = "tar.zst"
)

var suffixes = []struct {
	ext    string
	format Format
}{
	{".tar.gz", TarGz},
	{".tgz", TarGz},
	{".tar.xz", TarXz},
	{".txz", TarXz},
	{".tar.bz2", TarBz2},
	{".tbz2", TarBz2},
	{".tar.zst", TarZst},
	{".tar", Tar},
	{".zip", Zip},
}

// Detect returns the format of the archive named name.
func Detect(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.format, nil
		}
	}
	return "", errors.New(errors.ErrCodeConfiguration, "unsupported archive format: %s", filepath.Base(name))
}

// Extract unpacks src into dest, creating dest if needed. Extraction stops
// at the first entry once ctx is done.
func Extract(ctx context.Context, src, dest string) error {
	format, err := Detect(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", dest)
	}

	if format == Zip {
		return extractZip(ctx, src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "open %s", src)
	}
	defer f.Close()

	r, closeFn, err := decompress(format, f)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "read %s", filepath.Base(src))
	}
	defer closeFn()

	if err := extractTar(ctx, r, dest); err != nil {
		code := errors.GetCode(err)
		if code == "" {
			code = errors.ErrCodeIO
		}
		return errors.Wrap(code, err, "extract %s", filepath.Base(src))
	}
	return nil
}

func decompress(format Format, r io.Reader) (io.Reader, func(), error) {
	nop := func() {}
	switch format {
	case Tar:
		return r, nop, nil
	case TarGz:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case TarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, nop, nil
	case TarBz2:
		return bzip2.NewReader(r), nop, nil
	case TarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	return nil, nil, errors.New(errors.ErrCodeInternal, "no decompressor for %s", format)
}

// target validates an entry name and returns its path under dest.
func target(dest, name string) (string, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
	name = strings.TrimSuffix(name, "/")
	if err := errors.ValidatePath(name); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "archive entry %q", name)
	}
	return filepath.Join(dest, filepath.FromSlash(path.Clean(name))), nil
}

func extractTar(ctx context.Context, r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "read tar entry")
		}
		if hdr.Name == "./" || hdr.Name == "." {
			continue
		}
		// pax_global_header and similar carry metadata only.
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		p, err := target(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(p, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "create %s", p)
			}
		case tar.TypeReg:
			if err := writeFile(p, tr, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := symlink(dest, p, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			old, err := target(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.Link(old, p); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "link %s", p)
			}
		}
	}
}

func extractZip(ctx context.Context, src, dest string) error {
	// Entry names are checked by target, so an insecure-path report from
	// the reader is not fatal here.
	zr, err := zip.OpenReader(src)
	if err != nil && err != zip.ErrInsecurePath {
		return errors.Wrap(errors.ErrCodeIO, err, "open %s", src)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := target(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "create %s", p)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "open entry %s", f.Name)
		}
		err = writeFile(p, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(p string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", filepath.Dir(p))
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", p)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", p)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", p)
	}
	return nil
}

// symlink creates link at p pointing to linkname, which must resolve
// inside dest.
func symlink(dest, p, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(linkname) {
		resolved = filepath.Join(filepath.Dir(p), linkname)
	}
	rel, err := filepath.Rel(dest, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(linkname) {
		return errors.New(errors.ErrCodeInvalidPath, "symlink %s escapes destination", linkname)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", filepath.Dir(p))
	}
	if err := os.Symlink(linkname, p); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "symlink %s", p)
	}
	return nil
}
