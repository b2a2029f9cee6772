// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Reference identifies an OCI artifact as package[:tag|@sha256:digest].
//
// Host prefix "ghcr.io/" is stripped during parsing; a Tag starting with
// "sha256:" marks a blob-address reference rather than a manifest reference.
type Reference struct {
	Package string
	Tag     string
}

// IsBlobReference reports whether the reference addresses a single blob by
// digest rather than a manifest by tag.
func (r Reference) IsBlobReference() bool {
	return strings.HasPrefix(r.Tag, "sha256:")
}

// ParseReference parses "[host/]path@sha256:DIGEST", "[host/]path:TAG" or
// "[host/]path" (tag defaults to "latest").
func ParseReference(s string) (Reference, error) {
	s = strings.TrimPrefix(s, "oci://")
	s = strings.TrimPrefix(s, "ghcr.io/")

	if idx := strings.Index(s, "@"); idx != -1 {
		pkg, dig := s[:idx], s[idx+1:]
		if pkg == "" || dig == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidURL, s)
		}
		if _, err := digest.Parse(dig); err != nil {
			return Reference{}, fmt.Errorf("%w: %q: %v", ErrInvalidURL, s, err)
		}
		return Reference{Package: pkg, Tag: dig}, nil
	}

	// A colon can appear both as a port separator (host:port/path) and as
	// the tag separator (path:tag); only the last colon after the last
	// slash is a tag separator.
	lastSlash := strings.LastIndex(s, "/")
	lastColon := strings.LastIndex(s, ":")
	if lastColon > lastSlash {
		pkg, tag := s[:lastColon], s[lastColon+1:]
		if pkg == "" || tag == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidURL, s)
		}
		return Reference{Package: pkg, Tag: tag}, nil
	}

	if s == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrInvalidURL)
	}
	return Reference{Package: s, Tag: "latest"}, nil
}

// OciLayer describes one layer of an OCI manifest. It is a thin view over
// ocispec.Descriptor, per SPEC_FULL's domain-stack decision to reuse the
// opencontainers image-spec types instead of hand-rolled ones.
type OciLayer struct {
	MediaType   string
	Digest      string
	Size        int64
	Annotations map[string]string
}

// Title returns the layer's org.opencontainers.image.title annotation, or
// "" when absent.
func (l OciLayer) Title() string {
	if l.Annotations == nil {
		return ""
	}
	return l.Annotations[ocispec.AnnotationTitle]
}

func ociLayerFromDescriptor(d ocispec.Descriptor) OciLayer {
	return OciLayer{
		MediaType:   d.MediaType,
		Digest:      d.Digest.String(),
		Size:        d.Size,
		Annotations: d.Annotations,
	}
}

// OciManifest is the parsed manifest document for an OCI artifact.
type OciManifest struct {
	MediaType string
	Config    OciLayer
	Layers    []OciLayer
}

// DownloadMeta is the sidecar persisted next to a partial download.
type DownloadMeta struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// FileMode controls overwrite behavior for a download whose target already
// exists.
type FileMode int

const (
	// PromptOverwrite asks the caller-supplied prompt function.
	PromptOverwrite FileMode = iota
	// SkipExisting leaves an existing target file untouched.
	SkipExisting
	// ForceOverwrite removes an existing target file before downloading.
	ForceOverwrite
)

// NewFileMode derives a FileMode from the (skip, force) boolean pair that
// the CLI surface exposes. skip wins over force when both are set; neither
// set means Prompt.
func NewFileMode(skip, force bool) FileMode {
	switch {
	case skip:
		return SkipExisting
	case force:
		return ForceOverwrite
	default:
		return PromptOverwrite
	}
}

// DownloadStateKind enumerates the phases a downloader reports via its
// progress callback.
type DownloadStateKind int

const (
	StatePreparing DownloadStateKind = iota
	StateProgress
	StateComplete
	StateError
	StateAborted
	StateRecovered
)

// DownloadState is the callback payload every downloader emits at
// well-defined phases (§3). Callers must assume concurrent invocation (the
// OCI downloader fans out across layers) and must not block or panic.
type DownloadState struct {
	Kind       DownloadStateKind
	TotalBytes int64
	BytesSoFar int64
	Err        error
}

// ProgressFunc receives DownloadState events. Implementations must be
// non-blocking and safe for concurrent invocation.
type ProgressFunc func(DownloadState)

func emit(cb ProgressFunc, s DownloadState) {
	if cb != nil {
		cb(s)
	}
}

// PromptFunc asks the caller whether an existing target should be
// overwritten. Returning false skips the download.
type PromptFunc func(target string) bool

// PlatformDownloadOptions configures a release-platform download (§3).
type PlatformDownloadOptions struct {
	OutputPath string
	Progress   ProgressFunc
	Tag        string

	Regexes         []string
	Globs           []string
	MatchKeywords   []string
	ExcludeKeywords []string
	ExactCase       bool

	ExtractArchive bool
	ExtractDir     string

	FileMode FileMode
	Prompt   PromptFunc
}

// DefaultGhcrAPI is the default OCI registry API base.
const DefaultGhcrAPI = "https://ghcr.io/v2"

// OciDownloadOptions configures an OCI artifact download (§3).
type OciDownloadOptions struct {
	PlatformDownloadOptions
	URL         string
	Concurrency int
	API         string
}

func (o OciDownloadOptions) apiBase() string {
	if o.API == "" {
		return DefaultGhcrAPI
	}
	return o.API
}

func (o OciDownloadOptions) concurrency() int {
	if o.Concurrency <= 0 {
		return 1
	}
	return o.Concurrency
}
