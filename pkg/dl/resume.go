// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// partPath and metaPath derive the sidecar paths used by a resumable
// download of the final path p (§3 invariants, §4.2 part-path mapping).
func partPath(p string) string { return p + ".part" }
func metaPath(p string) string { return p + ".part.meta" }

// readMeta loads the sidecar metadata for a final path. A corrupt or
// absent sidecar is treated as empty metadata; it never errors.
func readMeta(p string) DownloadMeta {
	b, err := os.ReadFile(metaPath(p))
	if err != nil {
		return DownloadMeta{}
	}
	var m DownloadMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return DownloadMeta{}
	}
	return m
}

// writeMeta persists the sidecar metadata for a final path.
func writeMeta(p string, m DownloadMeta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath(p), b, 0o644)
}

// removeSidecar deletes both the part file and its metadata, ignoring
// not-exist errors.
func removeSidecar(p string) {
	_ = os.Remove(partPath(p))
	_ = os.Remove(metaPath(p))
}

// localPartSize returns the current size of the part file, or 0 if absent.
func localPartSize(p string) int64 {
	fi, err := os.Stat(partPath(p))
	if err != nil {
		return 0
	}
	return fi.Size()
}

// shouldRestart implements §4.2's restart decision: discard a partial
// download when the server can't resume at the requested range, or when
// it reports the resource identity changed.
func shouldRestart(status int, localETag, localLastModified, remoteETag, remoteLastModified string) bool {
	if status == http.StatusRequestedRangeNotSatisfiable {
		return true
	}
	if localETag != "" && remoteETag != "" && localETag != remoteETag {
		return true
	}
	if localLastModified != "" && remoteLastModified != "" && localLastModified != remoteLastModified {
		return true
	}
	return false
}

// applyResumeHeaders sets Range/If-Range on req for a partial download of
// size downloaded bytes, using whichever of etag/lastModified is available.
func applyResumeHeaders(req *http.Request, downloaded int64, etag, lastModified string) {
	if downloaded <= 0 {
		return
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
	switch {
	case etag != "":
		req.Header.Set("If-Range", etag)
	case lastModified != "":
		req.Header.Set("If-Range", lastModified)
	}
}

// rangeInfo reports what a response's Content-Range/Content-Length headers
// imply about how to continue a transfer: whether the local part must be
// truncated, and the total byte size (0 if unknown).
func rangeInfo(resp *http.Response, localSize int64) (shouldTruncate bool, total int64) {
	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				total = n
			}
		}
		return false, total
	}

	start, _, size, ok := parseContentRange(cr)
	if !ok {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				total = n
			}
		}
		return false, total
	}

	return start != localSize, size
}

// parseContentRange parses "bytes <start>-<end>/<total>".
func parseContentRange(h string) (start, end, total int64, ok bool) {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "bytes ")
	parts := strings.SplitN(h, "/", 2)
	if len(parts) != 2 {
		return 0, 0, 0, false
	}
	rangePart, totalPart := parts[0], parts[1]

	se := strings.SplitN(rangePart, "-", 2)
	if len(se) != 2 {
		return 0, 0, 0, false
	}

	var err error
	start, err = strconv.ParseInt(se[0], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	end, err = strconv.ParseInt(se[1], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	if totalPart == "*" {
		return start, end, 0, true
	}
	total, err = strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	return start, end, total, true
}
