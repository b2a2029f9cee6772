// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "f.bin")

	if got := readMeta(final); got != (DownloadMeta{}) {
		t.Fatalf("expected zero value for absent sidecar, got %+v", got)
	}

	want := DownloadMeta{ETag: `"abc"`, LastModified: "Wed, 01 Jan 2025 00:00:00 GMT"}
	if err := writeMeta(final, want); err != nil {
		t.Fatal(err)
	}
	if got := readMeta(final); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	removeSidecar(final)
	if _, err := os.Stat(metaPath(final)); err == nil {
		t.Fatal("expected metadata sidecar to be removed")
	}
}

func TestReadMetaCorruptSidecarIsZeroValue(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(metaPath(final), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readMeta(final); got != (DownloadMeta{}) {
		t.Fatalf("expected zero value for corrupt sidecar, got %+v", got)
	}
}

func TestLocalPartSize(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "f.bin")
	if got := localPartSize(final); got != 0 {
		t.Fatalf("expected 0 for absent part file, got %d", got)
	}
	if err := os.WriteFile(partPath(final), make([]byte, 42), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := localPartSize(final); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestShouldRestart(t *testing.T) {
	cases := []struct {
		name                                      string
		status                                    int
		localETag, localLM, remoteETag, remoteLM string
		want                                      bool
	}{
		{"416 always restarts", http.StatusRequestedRangeNotSatisfiable, "x", "", "y", "", true},
		{"etag mismatch restarts", http.StatusPartialContent, `"a"`, "", `"b"`, "", true},
		{"etag match does not restart", http.StatusPartialContent, `"a"`, "", `"a"`, "", false},
		{"last-modified mismatch restarts", http.StatusPartialContent, "", "Mon", "", "Tue", true},
		{"no identity info does not restart", http.StatusPartialContent, "", "", "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := shouldRestart(c.status, c.localETag, c.localLM, c.remoteETag, c.remoteLM)
			if got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestApplyResumeHeaders(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	applyResumeHeaders(req, 0, "", "")
	if req.Header.Get("Range") != "" {
		t.Fatal("expected no Range header when downloaded == 0")
	}

	req, _ = http.NewRequest(http.MethodGet, "http://example.com", nil)
	applyResumeHeaders(req, 600, `"etag"`, "")
	if got := req.Header.Get("Range"); got != "bytes=600-" {
		t.Fatalf("got Range %q", got)
	}
	if got := req.Header.Get("If-Range"); got != `"etag"` {
		t.Fatalf("got If-Range %q", got)
	}
}

func TestParseContentRange(t *testing.T) {
	start, end, total, ok := parseContentRange("bytes 600-1023/1024")
	if !ok || start != 600 || end != 1023 || total != 1024 {
		t.Fatalf("got (%d,%d,%d,%v)", start, end, total, ok)
	}

	if _, _, _, ok := parseContentRange("garbage"); ok {
		t.Fatal("expected ok=false for unparseable header")
	}

	start, _, total, ok = parseContentRange("bytes 0-999/*")
	if !ok || start != 0 || total != 0 {
		t.Fatalf("got start=%d total=%d ok=%v", start, total, ok)
	}
}

func TestRangeInfoNoTruncateOnMatchingOffset(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Range", "bytes 600-1023/1024")
	truncate, total := rangeInfo(resp, 600)
	if truncate || total != 1024 {
		t.Fatalf("got truncate=%v total=%d", truncate, total)
	}
}

func TestRangeInfoTruncatesOnMismatchedOffset(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Range", "bytes 0-1023/1024")
	truncate, total := rangeInfo(resp, 600)
	if !truncate || total != 1024 {
		t.Fatalf("got truncate=%v total=%d", truncate, total)
	}
}

func TestRangeInfoFallsBackToContentLength(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Length", "2048")
	truncate, total := rangeInfo(resp, 0)
	if truncate || total != 2048 {
		t.Fatalf("got truncate=%v total=%d", truncate, total)
	}
}
