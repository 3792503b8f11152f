// Package archive unpacks the archive formats found at the top level of a
// deflated dataset directory: zip, tar, tar.gz/.tgz, tar.bz2, and bare
// gzip/bzip2 single files.
//
// Everything here is synchronous and blocking. Datasets are pulled one file
// at a time, so there is no call for background archiving.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnknownFormat = errors.New("unknown archive format")

	// ErrUnsafePath marks an archive entry whose name would escape the
	// extraction directory.
	ErrUnsafePath = errors.New("archive entry escapes the extraction directory")
)

// IsArchive reports whether filename carries a recognised archive extension.
func IsArchive(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip", ".tar", ".gz", ".bz2", ".tgz":
		return true
	}
	return false
}

// ExtractionDir returns the name of the directory an archive named filename
// unpacks into: the base name without its extension, with a trailing ".tar"
// component of a compound extension stripped and dots replaced with
// underscores.
//
//	"camspec.tar.gz" -> "camspec"
//	"data.v2.zip"    -> "data_v2"
func ExtractionDir(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if strings.HasSuffix(strings.ToLower(base), ".tar") {
		base = base[:len(base)-len(".tar")]
	}
	return strings.ReplaceAll(base, ".", "_")
}

// Unpack extracts the archive at path into the dest directory, creating it
// when absent. The archive file itself is left in place.
//
// Bare gzip/bzip2 files expand to a single file named after the archive
// without its extension.
func Unpack(path string, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return unzip(path, dest)
	case ".tar":
		return withFile(path, func(fp *os.File) error {
			return untar(fp, dest)
		})
	case ".tgz":
		return untarGz(path, dest)
	case ".gz":
		if strings.HasSuffix(strings.ToLower(base), ".tar") {
			return untarGz(path, dest)
		}
		return expand(path, dest, func(fp io.Reader) (io.Reader, error) {
			return gzip.NewReader(fp)
		})
	case ".bz2":
		if strings.HasSuffix(strings.ToLower(base), ".tar") {
			return withFile(path, func(fp *os.File) error {
				return untar(bzip2.NewReader(fp), dest)
			})
		}
		return expand(path, dest, func(fp io.Reader) (io.Reader, error) {
			return bzip2.NewReader(fp), nil
		})
	}

	return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

func withFile(path string, f func(*os.File) error) error {
	fp, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	return f(fp)
}

func untarGz(path string, dest string) error {
	return withFile(path, func(fp *os.File) error {
		gzin, err := gzip.NewReader(fp)
		if err != nil {
			return err
		}
		defer gzin.Close()
		return untar(gzin, dest)
	})
}

func untar(src io.Reader, dest string) error {
	tarr := tar.NewReader(src)
	for {
		hdr, err := tarr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if hdr.Name == "" {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(hdr.Name)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}

		fullpath := filepath.Join(dest, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
			return err
		}

		if hdr.Typeflag == tar.TypeSymlink {
			if err := os.Symlink(hdr.Linkname, fullpath); err != nil {
				return err
			}
			continue
		}

		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(fullpath, 0755); err != nil {
				return err
			}
			continue
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		if err := writeEntry(fullpath, fs.FileMode(hdr.Mode), tarr); err != nil {
			return err
		}
	}
}

func unzip(path string, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if !filepath.IsLocal(filepath.FromSlash(entry.Name)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, entry.Name)
		}
		fullpath := filepath.Join(dest, entry.Name)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(fullpath, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
			return err
		}

		err := func() error {
			rc, err := entry.Open()
			if err != nil {
				return err
			}
			defer rc.Close()
			return writeEntry(fullpath, entry.Mode(), rc)
		}()
		if err != nil {
			return err
		}
	}

	return nil
}

// expand writes the decompressed content of a bare gzip/bzip2 file into
// dest, named after the archive without its extension.
func expand(path string, dest string, decoder func(io.Reader) (io.Reader, error)) error {
	return withFile(path, func(fp *os.File) error {
		src, err := decoder(fp)
		if err != nil {
			return err
		}
		if closer, ok := src.(io.Closer); ok {
			defer closer.Close()
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return writeEntry(filepath.Join(dest, name), 0644, src)
	})
}

func writeEntry(fullpath string, mode fs.FileMode, src io.Reader) error {
	fp, err := os.OpenFile(fullpath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer fp.Close()

	_, err = io.Copy(fp, src)
	return err
}
