// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
)

// ReleasePlatform is the closed capability set a source-forge release API
// must supply (§4.7, §9 design note: a tagged-variant-style closed set,
// realized here as an interface with one implementation per platform).
type ReleasePlatform interface {
	Name() string
	APIBasePrimary() string
	APIBasePkgforge() string
	TokenEnvVar() string
	FormatProjectPath(project string) (owner, repo string, err error)
	FormatAPIPath(project string, tag string) (path string, err error)
}

// Release is a normalized release document, enough of it to select a
// release and filter its assets.
type Release struct {
	TagName    string         `json:"tag_name"`
	Prerelease bool           `json:"prerelease"`
	Assets     []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is a single downloadable file attached to a release.
type ReleaseAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

// DownloadURL returns the asset's download URL.
func (a ReleaseAsset) DownloadURL() string { return a.URL }

// isFallbackStatus reports the mirror statuses that trigger a primary retry
// (§4.7: 401, 403, 429, 5xx).
func isFallbackStatus(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return status >= 500 && status < 600
	}
}

// FetchReleases calls the platform's mirror API first, falling back to the
// primary (with bearer auth from the platform's token env var) on a
// fallback-eligible status (§4.7).
func FetchReleases(ctx context.Context, platform ReleasePlatform, project, tag string) ([]Release, error) {
	path, err := platform.FormatAPIPath(project, tag)
	if err != nil {
		return nil, err
	}

	mirrorURL := platform.APIBasePkgforge() + path
	releases, status, err := fetchReleaseList(ctx, mirrorURL, "")
	if err != nil {
		return nil, err
	}
	if !isFallbackStatus(status) {
		if status < 200 || status >= 300 {
			return nil, &ResourceError{Status: status, URL: mirrorURL}
		}
		return releases, nil
	}

	primaryURL := platform.APIBasePrimary() + path
	token := os.Getenv(platform.TokenEnvVar())
	releases, status, err = fetchReleaseList(ctx, primaryURL, token)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &ResourceError{Status: status, URL: primaryURL}
	}
	return releases, nil
}

// fetchReleaseList performs the GET and normalizes a single-object or
// array JSON body into a list of releases.
func fetchReleaseList(ctx context.Context, url, token string) ([]Release, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	applyRequestHeaders(req)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := SharedClient().Do(req)
	if err != nil {
		return nil, 0, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, nil
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, resp.StatusCode, &InvalidResponse{URL: url, Err: err}
	}

	var list []Release
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, resp.StatusCode, nil
	}

	var single Release
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, resp.StatusCode, &InvalidResponse{URL: url, Err: err}
	}
	return []Release{single}, resp.StatusCode, nil
}

// SelectRelease implements §4.7's selection rule: exact tag match when tag
// is supplied, else the first non-prerelease (falling back to the first
// release in the list).
func SelectRelease(releases []Release, tag string) (Release, error) {
	if tag != "" {
		for _, r := range releases {
			if r.TagName == tag {
				return r, nil
			}
		}
		return Release{}, &NoReleaseError{Tag: tag}
	}

	for _, r := range releases {
		if !r.Prerelease {
			return r, nil
		}
	}
	if len(releases) > 0 {
		return releases[0], nil
	}
	return Release{}, &NoReleaseError{}
}

// FilterAssets applies the pattern matcher to a release's assets (§4.7).
func FilterAssets(release Release, opts PlatformDownloadOptions) ([]ReleaseAsset, error) {
	matcher := NewMatcher(opts.Regexes, opts.Globs, opts.MatchKeywords, opts.ExcludeKeywords, opts.ExactCase)

	var matched []ReleaseAsset
	for _, a := range release.Assets {
		if matcher.Match(a.Name) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		names := make([]string, len(release.Assets))
		for i, a := range release.Assets {
			names[i] = a.Name
		}
		return nil, &NoMatchingAssetsError{Available: names}
	}
	return matched, nil
}

// DownloadFromPlatform fetches releases, selects one, filters its assets,
// and delegates each matched asset to the file downloader (§4.7).
func DownloadFromPlatform(ctx context.Context, platform ReleasePlatform, project string, opts PlatformDownloadOptions, extractor Extractor) ([]string, error) {
	if _, _, err := platform.FormatProjectPath(project); err != nil {
		return nil, err
	}

	releases, err := FetchReleases(ctx, platform, project, opts.Tag)
	if err != nil {
		return nil, err
	}

	release, err := SelectRelease(releases, opts.Tag)
	if err != nil {
		return nil, err
	}

	assets, err := FilterAssets(release, opts)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, asset := range assets {
		final, err := Download(ctx, DownloadOptions{
			URL:            asset.DownloadURL(),
			OutputPath:     opts.OutputPath,
			Progress:       opts.Progress,
			FileMode:       opts.FileMode,
			Prompt:         opts.Prompt,
			ExtractArchive: opts.ExtractArchive,
			ExtractDir:     opts.ExtractDir,
			Extractor:      extractor,
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, final)
	}
	return paths, nil
}
