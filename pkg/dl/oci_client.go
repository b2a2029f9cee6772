// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// anonymousBearer is the synthetic "Authorization: Bearer QQ==" header
// (base64 of "A") accepted by public GHCR blobs (§4.5).
var anonymousBearer = "Bearer " + base64.StdEncoding.EncodeToString([]byte("A"))

// ociAcceptHeader spans the Docker v2 and OCI manifest/index/artifact media
// types (§4.5, §6 wire protocols).
var ociAcceptHeader = strings.Join([]string{
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	ocispec.MediaTypeArtifactManifest,
}, ", ")

// ociRequest builds a GET request against the OCI registry API with the
// standard Accept and anonymous-bearer headers applied.
func ociRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	applyRequestHeaders(req)
	req.Header.Set("Accept", ociAcceptHeader)
	req.Header.Set("Authorization", anonymousBearer)
	return req, nil
}

// FetchManifest retrieves and parses the manifest for package@tag from the
// given API base (§4.5: GET {api}/{package}/manifests/{tag}).
func FetchManifest(ctx context.Context, api, pkg, tag string) (OciManifest, error) {
	manifestURL := fmt.Sprintf("%s/%s/manifests/%s", strings.TrimSuffix(api, "/"), pkg, tag)

	req, err := ociRequest(ctx, manifestURL)
	if err != nil {
		return OciManifest{}, err
	}

	resp, err := SharedClient().Do(req)
	if err != nil {
		return OciManifest{}, &NetworkError{URL: manifestURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OciManifest{}, &ResourceError{Status: resp.StatusCode, URL: manifestURL}
	}

	var raw ocispec.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return OciManifest{}, &InvalidResponse{URL: manifestURL, Err: err}
	}

	m := OciManifest{
		MediaType: raw.MediaType,
		Config:    ociLayerFromDescriptor(raw.Config),
	}
	for _, l := range raw.Layers {
		m.Layers = append(m.Layers, ociLayerFromDescriptor(l))
	}
	return m, nil
}

// LayerCallback receives (delta_bytes, total_bytes_hint) during a blob
// pull, per §4.5's differences from the file downloader's callback shape.
type LayerCallback func(deltaBytes, totalBytesHint int64)

// PullLayerOptions configures a single blob pull.
type PullLayerOptions struct {
	API            string
	Package        string
	FileMode       FileMode
	Prompt         PromptFunc
	SuppressPrompt bool // progress-bar runs intentionally suppress prompting (§4.5)
}

// PullLayer replicates §4.4's resume algorithm against the blob endpoint
// GET {api}/{package}/blobs/{digest}, writing to outputPath.
func PullLayer(ctx context.Context, layer OciLayer, outputPath string, opts PullLayerOptions, cb LayerCallback) error {
	blobURL := fmt.Sprintf("%s/%s/blobs/%s", strings.TrimSuffix(opts.API, "/"), opts.Package, layer.Digest)

	downloaded := localPartSize(outputPath)
	meta := readMeta(outputPath)

	const maxAttempts = 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := ociRequest(ctx, blobURL)
		if err != nil {
			return err
		}
		applyResumeHeaders(req, downloaded, meta.ETag, meta.LastModified)

		resp, err := SharedClient().Do(req)
		if err != nil {
			return &NetworkError{URL: blobURL, Err: err}
		}

		remoteETag := resp.Header.Get("ETag")
		remoteLastModified := resp.Header.Get("Last-Modified")

		if shouldRestart(resp.StatusCode, meta.ETag, meta.LastModified, remoteETag, remoteLastModified) && attempt == 0 {
			resp.Body.Close()
			removeSidecar(outputPath)
			meta = DownloadMeta{ETag: remoteETag, LastModified: remoteLastModified}
			downloaded = 0
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return &ResourceError{Status: resp.StatusCode, URL: blobURL}
		}

		if _, statErr := os.Stat(outputPath); statErr == nil {
			if _, partErr := os.Stat(partPath(outputPath)); partErr != nil {
				switch opts.FileMode {
				case SkipExisting:
					resp.Body.Close()
					return nil
				case ForceOverwrite:
					_ = os.Remove(outputPath)
				case PromptOverwrite:
					if !opts.SuppressPrompt && opts.Prompt != nil && !opts.Prompt(outputPath) {
						resp.Body.Close()
						return nil
					}
					_ = os.Remove(outputPath)
				}
			}
		}

		shouldTruncate, total := rangeInfo(resp, downloaded)
		if cb != nil {
			cb(0, total)
		}

		flags := os.O_CREATE | os.O_WRONLY
		if shouldTruncate || downloaded == 0 {
			flags |= os.O_TRUNC
			downloaded = 0
		} else {
			flags |= os.O_APPEND
		}

		out, err := os.OpenFile(partPath(outputPath), flags, 0o644)
		if err != nil {
			resp.Body.Close()
			return &IoError{Path: partPath(outputPath), Err: err}
		}

		if err := writeMeta(outputPath, meta); err != nil {
			out.Close()
			resp.Body.Close()
			return &IoError{Path: metaPath(outputPath), Err: err}
		}

		copyErr := copyLayerChunks(out, resp.Body, &downloaded, cb)
		out.Close()
		resp.Body.Close()

		if copyErr != nil {
			return &ChunkError{URL: blobURL, Err: copyErr}
		}

		if err := os.Rename(partPath(outputPath), outputPath); err != nil {
			return &IoError{Path: outputPath, Err: err}
		}
		removeSidecar(outputPath)

		return chmodIfELF(outputPath)
	}

	return &ResourceError{Status: http.StatusRequestedRangeNotSatisfiable, URL: blobURL}
}

// copyLayerChunks streams src into dst, emitting (chunk_len, 0) for every
// read chunk per §4.5.
func copyLayerChunks(dst *os.File, src io.Reader, downloaded *int64, cb LayerCallback) error {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			*downloaded += int64(n)
			if cb != nil {
				cb(int64(n), 0)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
