// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package archive implements the format-detecting archive extractor
// collaborator the download engine delegates to (§6).
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var (
	magicZip  = []byte{'P', 'K', 0x03, 0x04}
	magicGzip = []byte{0x1f, 0x8b}
	magicBzip = []byte{'B', 'Z', 'h'}
	magicXz   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Extractor extracts archives to a target directory by sniffing their
// magic bytes. It satisfies dl.Extractor.
type Extractor struct{}

// Extract detects path's archive format and extracts its contents into
// targetDir, creating it if necessary.
func (Extractor) Extract(path, targetDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 262)
	n, _ := io.ReadFull(f, header)
	header = header[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}

	switch {
	case bytes.HasPrefix(header, magicZip):
		return extractZip(path, targetDir)
	case bytes.HasPrefix(header, magicGzip):
		return extractGzipTar(f, targetDir)
	case bytes.HasPrefix(header, magicBzip):
		return extractTar(bzip2.NewReader(f), targetDir)
	case bytes.HasPrefix(header, magicXz):
		return fmt.Errorf("archive: xz extraction is not supported")
	case bytes.HasPrefix(header, magicZstd):
		return extractZstdTar(f, targetDir)
	case looksLikeTar(header):
		return extractTar(f, targetDir)
	default:
		return fmt.Errorf("archive: unrecognized archive format for %s", path)
	}
}

// looksLikeTar checks for the ustar magic at its fixed header offset.
func looksLikeTar(header []byte) bool {
	return len(header) >= 262 && string(header[257:262]) == "ustar"
}

func extractZip(path, targetDir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractZipEntry(f, targetDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, targetDir string) error {
	dst, err := safeJoin(targetDir, f.Name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func extractGzipTar(r io.Reader, targetDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	return extractTar(gz, targetDir)
}

func extractZstdTar(r io.Reader, targetDir string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()
	return extractTar(zr.IOReadCloser(), targetDir)
}

func extractTar(r io.Reader, targetDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		dst, err := safeJoin(targetDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

// safeJoin joins targetDir and name, rejecting entries that would escape
// targetDir via ".." traversal.
func safeJoin(targetDir, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("archive: unsafe entry path %q", name)
	}
	return filepath.Join(targetDir, cleaned), nil
}
