// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"net/url"
	"regexp"
	"strings"
)

// URLKind classifies an input string per §4.8.
type URLKind int

const (
	KindDirectURL URLKind = iota
	KindOci
	KindGitHub
	KindGitLab
)

// ClassifiedURL is the result of classifying an input string.
type ClassifiedURL struct {
	Kind    URLKind
	Project string // "owner/repo" for GitHub/GitLab
	Tag     string // optional tag, "" when unspecified
	Raw     string
}

var (
	githubPattern = regexp.MustCompile(`(?i)(?:https?://)?github(?:\.com)?[:/]([^/@]+/[^/@]+)(?:@([^/\s]+(?:/[^/\s]*)*)?)?`)
	gitlabPattern = regexp.MustCompile(`(?i)(?:https?://)?gitlab(?:\.com)?[:/]([^/@]+(?:/[^/@]+)*?)(?:@([^/\s]+(?:/[^/\s]*)*)?)?$`)
)

// ClassifyURL routes an input string per §4.8. It is total: it always
// returns a classification or an ErrInvalidInput-wrapped error, never
// panics.
func ClassifyURL(s string) (ClassifiedURL, error) {
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "ghcr.io") || strings.HasPrefix(trimmed, "oci://ghcr.io") {
		return ClassifiedURL{Kind: KindOci, Raw: trimmed}, nil
	}

	if m := githubPattern.FindStringSubmatch(trimmed); m != nil {
		project := m[1]
		tag := ""
		if len(m) > 2 && m[2] != "" {
			if decoded, err := url.QueryUnescape(m[2]); err == nil {
				tag = decoded
			} else {
				tag = m[2]
			}
		}
		return ClassifiedURL{Kind: KindGitHub, Project: project, Tag: tag, Raw: trimmed}, nil
	}

	if m := gitlabPattern.FindStringSubmatch(trimmed); m != nil {
		project := m[1]
		if strings.HasPrefix(project, "api") || strings.Contains(project, "/-/") {
			// API/browsing URLs, not project refs: fall through to DirectUrl.
		} else {
			tag := ""
			if len(m) > 2 && m[2] != "" {
				if decoded, err := url.QueryUnescape(m[2]); err == nil {
					tag = decoded
				} else {
					tag = m[2]
				}
			}
			return ClassifiedURL{Kind: KindGitLab, Project: project, Tag: tag, Raw: trimmed}, nil
		}
	}

	if trimmed == "" {
		return ClassifiedURL{}, ErrInvalidInput
	}
	if _, err := url.Parse(trimmed); err != nil {
		return ClassifiedURL{}, ErrInvalidInput
	}

	return ClassifiedURL{Kind: KindDirectURL, Raw: trimmed}, nil
}
