// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// elfMagic is the 4-byte header of ELF executables (§4.4: chmod 0755 on
// completion when the downloaded file starts with this magic).
var elfMagic = []byte{0x7F, 0x45, 0x4C, 0x46}

// Extractor is the archive-extraction collaborator (§6): given a final
// file path and a target directory, it extracts the archive's contents.
// Format detection by magic bytes is the extractor's responsibility.
type Extractor interface {
	Extract(path, targetDir string) error
}

// DownloadOptions configures a single-resource HTTP transfer (§4.4).
type DownloadOptions struct {
	URL        string
	OutputPath string
	Progress   ProgressFunc

	FileMode FileMode
	Prompt   PromptFunc

	ExtractArchive bool
	ExtractDir     string
	Extractor      Extractor
}

// Download fetches a single resource over HTTP with resume, range
// validation, Content-Disposition-aware naming, overwrite policy, and
// optional archive extraction. It returns the final path of the
// downloaded (or skipped) file.
func Download(ctx context.Context, opts DownloadOptions) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.OutputPath == "-" {
		return downloadToStdout(ctx, opts)
	}

	explicitPath := isExplicitFilePath(opts.OutputPath)
	target, err := resolveInitialTarget(opts.URL, opts.OutputPath)
	if err != nil {
		return "", err
	}

	downloaded := localPartSize(target)
	meta := readMeta(target)

	const maxAttempts = 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
		if err != nil {
			return "", fmt.Errorf("%w", err)
		}
		applyRequestHeaders(req)
		applyResumeHeaders(req, downloaded, meta.ETag, meta.LastModified)

		resp, err := SharedClient().Do(req)
		if err != nil {
			return "", &NetworkError{URL: opts.URL, Err: err}
		}

		remoteETag := resp.Header.Get("ETag")
		remoteLastModified := resp.Header.Get("Last-Modified")

		if shouldRestart(resp.StatusCode, meta.ETag, meta.LastModified, remoteETag, remoteLastModified) && attempt == 0 {
			resp.Body.Close()
			removeSidecar(target)
			meta = DownloadMeta{ETag: remoteETag, LastModified: remoteLastModified}
			downloaded = 0
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return "", &ResourceError{Status: resp.StatusCode, URL: opts.URL}
		}

		final := target
		if !explicitPath {
			if name := contentDispositionName(resp.Header.Get("Content-Disposition")); name != "" {
				final = filepath.Join(filepath.Dir(target), name)
			}
		}

		if final != target {
			downloaded = localPartSize(final)
		}

		_, partExists := os.Stat(partPath(final))
		if _, statErr := os.Stat(final); statErr == nil && partExists != nil {
			switch opts.FileMode {
			case SkipExisting:
				resp.Body.Close()
				return final, nil
			case ForceOverwrite:
				_ = os.Remove(final)
			case PromptOverwrite:
				if opts.Prompt == nil || !opts.Prompt(final) {
					resp.Body.Close()
					return final, nil
				}
			}
		}

		shouldTruncate, total := rangeInfo(resp, downloaded)
		emit(opts.Progress, DownloadState{Kind: StatePreparing, TotalBytes: total})

		flags := os.O_CREATE | os.O_WRONLY
		if shouldTruncate || downloaded == 0 {
			flags |= os.O_TRUNC
			downloaded = 0
		} else {
			flags |= os.O_APPEND
		}

		out, err := os.OpenFile(partPath(final), flags, 0o644)
		if err != nil {
			resp.Body.Close()
			return "", &IoError{Path: partPath(final), Err: err}
		}

		if err := writeMeta(final, meta); err != nil {
			out.Close()
			resp.Body.Close()
			return "", &IoError{Path: metaPath(final), Err: err}
		}

		n, copyErr := copyWithProgress(out, resp.Body, &downloaded, opts.Progress)
		out.Close()
		resp.Body.Close()
		_ = n

		if copyErr != nil {
			return "", &ChunkError{URL: opts.URL, Err: copyErr}
		}

		if err := os.Rename(partPath(final), final); err != nil {
			return "", &IoError{Path: final, Err: err}
		}
		removeSidecar(final)

		if err := chmodIfELF(final); err != nil {
			return "", &IoError{Path: final, Err: err}
		}

		if opts.ExtractArchive {
			if err := extractDownload(final, opts); err != nil {
				return "", err
			}
		}

		emit(opts.Progress, DownloadState{Kind: StateComplete, TotalBytes: total, BytesSoFar: downloaded})
		return final, nil
	}

	return "", &ResourceError{Status: http.StatusRequestedRangeNotSatisfiable, URL: opts.URL}
}

// downloadToStdout streams the response body directly to os.Stdout,
// flushing each chunk. No resume state (.part/.part.meta) is ever created.
func downloadToStdout(ctx context.Context, opts DownloadOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return "", err
	}
	applyRequestHeaders(req)

	resp, err := SharedClient().Do(req)
	if err != nil {
		return "", &NetworkError{URL: opts.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ResourceError{Status: resp.StatusCode, URL: opts.URL}
	}

	total := int64(0)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		fmt.Sscan(cl, &total)
	}
	emit(opts.Progress, DownloadState{Kind: StatePreparing, TotalBytes: total})

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return "", &IoError{Path: "-", Err: werr}
			}
			written += int64(n)
			emit(opts.Progress, DownloadState{Kind: StateProgress, BytesSoFar: written, TotalBytes: total})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", &ChunkError{URL: opts.URL, Err: rerr}
		}
	}

	emit(opts.Progress, DownloadState{Kind: StateComplete, TotalBytes: total, BytesSoFar: written})
	return "-", nil
}

// copyWithProgress streams src into dst, advancing *downloaded and emitting
// a Progress event on every chunk.
func copyWithProgress(dst io.Writer, src io.Reader, downloaded *int64, cb ProgressFunc) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			*downloaded += int64(n)
			emit(cb, DownloadState{Kind: StateProgress, BytesSoFar: *downloaded})
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// isExplicitFilePath reports whether outputPath names a concrete file path
// (as opposed to "", a directory, or a trailing-slash destination).
func isExplicitFilePath(outputPath string) bool {
	if outputPath == "" || outputPath == "-" {
		return false
	}
	if strings.HasSuffix(outputPath, "/") {
		return false
	}
	if fi, err := os.Stat(outputPath); err == nil && fi.IsDir() {
		return false
	}
	return true
}

// resolveInitialTarget applies §4.4's path resolution steps 2-4, before the
// response (and any Content-Disposition header) is known.
func resolveInitialTarget(rawURL, outputPath string) (string, error) {
	switch {
	case outputPath == "":
		name, err := filenameFromURL(rawURL)
		if err != nil {
			return "", err
		}
		return name, nil

	case strings.HasSuffix(outputPath, "/"):
		name, err := filenameFromURL(rawURL)
		if err != nil {
			return "", err
		}
		return filepath.Join(outputPath, name), nil

	default:
		if fi, err := os.Stat(outputPath); err == nil && fi.IsDir() {
			name, ferr := filenameFromURL(rawURL)
			if ferr != nil {
				return "", ferr
			}
			return filepath.Join(outputPath, name), nil
		}
		return outputPath, nil
	}
}

// filenameFromURL derives a filename from the URL path's last segment,
// falling back to a BLAKE3 hex digest of the URL bytes.
func filenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err == nil {
		base := filepath.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			if unescaped, uerr := url.PathUnescape(base); uerr == nil {
				return unescaped, nil
			}
			return base, nil
		}
	}

	sum := blake3.Sum256([]byte(rawURL))
	return fmt.Sprintf("%x", sum[:]), nil
}

// contentDispositionName extracts the filename parameter from a
// Content-Disposition header, or "" if absent/malformed.
func contentDispositionName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// chmodIfELF sets mode 0755 on path if its first bytes are the ELF magic.
func chmodIfELF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, len(elfMagic))
	n, _ := io.ReadFull(f, buf)
	if n == len(elfMagic) && string(buf) == string(elfMagic) {
		return os.Chmod(path, 0o755)
	}
	return nil
}

// extractDownload delegates to the configured Extractor, choosing
// ExtractDir when set, else the parent directory of the absolute final
// path (or "." when that can't be resolved).
func extractDownload(final string, opts DownloadOptions) error {
	if opts.Extractor == nil {
		return nil
	}

	dir := opts.ExtractDir
	if dir == "" {
		abs, err := filepath.Abs(final)
		if err != nil {
			dir = "."
		} else {
			dir = filepath.Dir(abs)
		}
	}

	if err := opts.Extractor.Extract(final, dir); err != nil {
		return &IoError{Path: final, Err: err}
	}
	return nil
}
