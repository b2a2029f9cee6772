// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// fakePlatform is a minimal ReleasePlatform pointed at two httptest servers,
// used to exercise FetchReleases' mirror-then-primary fallback without
// depending on github.com/gitlab.com.
type fakePlatform struct {
	mirror, primary string
}

func (p fakePlatform) Name() string            { return "fake" }
func (p fakePlatform) APIBasePrimary() string   { return p.primary }
func (p fakePlatform) APIBasePkgforge() string  { return p.mirror }
func (p fakePlatform) TokenEnvVar() string      { return "FAKE_TOKEN" }
func (p fakePlatform) FormatProjectPath(project string) (string, string, error) {
	return "owner", project, nil
}
func (p fakePlatform) FormatAPIPath(project, tag string) (string, error) {
	return "/releases/" + project, nil
}

func TestFetchReleasesUsesMirrorWhenHealthy(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"tag_name":"v1.0.0","assets":[{"name":"a.bin","browser_download_url":"http://x/a.bin"}]}]`)
	}))
	defer mirror.Close()
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("primary should not be hit when the mirror succeeds")
	}))
	defer primary.Close()

	releases, err := FetchReleases(context.Background(), fakePlatform{mirror: mirror.URL, primary: primary.URL}, "repo", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].TagName != "v1.0.0" {
		t.Fatalf("got %+v", releases)
	}
}

func TestFetchReleasesMirrorTransportErrorSurfacesImmediately(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("primary should not be hit on a mirror transport error: it must surface immediately")
	}))
	defer primary.Close()

	// A mirror URL with no listener produces a connection-refused transport
	// error, not an HTTP status, so it must propagate rather than being
	// treated like a fallback-eligible status.
	_, err := FetchReleases(context.Background(), fakePlatform{mirror: "http://127.0.0.1:1", primary: primary.URL}, "repo", "")
	if err == nil {
		t.Fatal("expected a transport error from the unreachable mirror")
	}
	var netErr *NetworkError
	if ne, ok := err.(*NetworkError); ok {
		netErr = ne
	}
	if netErr == nil {
		t.Fatalf("got %T: %v, want *NetworkError", err, err)
	}
}

func TestFetchReleasesFallsBackToPrimaryOn5xx(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer mirror.Close()
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" && got != "Bearer " {
			// token only set if FAKE_TOKEN env var is set; absent here.
		}
		fmt.Fprint(w, `{"tag_name":"v2.0.0","assets":[]}`)
	}))
	defer primary.Close()

	releases, err := FetchReleases(context.Background(), fakePlatform{mirror: mirror.URL, primary: primary.URL}, "repo", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].TagName != "v2.0.0" {
		t.Fatalf("got %+v", releases)
	}
}

func TestFetchReleasesPrimaryFailureSurfacesError(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer mirror.Close()
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	_, err := FetchReleases(context.Background(), fakePlatform{mirror: mirror.URL, primary: primary.URL}, "repo", "")
	if err == nil {
		t.Fatal("expected an error when both mirror and primary fail")
	}
}

func TestSelectReleaseExactTag(t *testing.T) {
	releases := []Release{{TagName: "v1.0.0"}, {TagName: "v2.0.0"}}
	r, err := SelectRelease(releases, "v2.0.0")
	if err != nil || r.TagName != "v2.0.0" {
		t.Fatalf("got (%+v, %v)", r, err)
	}

	_, err = SelectRelease(releases, "v9.9.9")
	if err == nil {
		t.Fatal("expected NoReleaseError for an unknown tag")
	}
}

func TestSelectReleaseSkipsPrereleaseWhenNoTagGiven(t *testing.T) {
	releases := []Release{{TagName: "v2.0.0-rc1", Prerelease: true}, {TagName: "v1.0.0"}}
	r, err := SelectRelease(releases, "")
	if err != nil || r.TagName != "v1.0.0" {
		t.Fatalf("got (%+v, %v)", r, err)
	}
}

func TestSelectReleaseFallsBackToFirstWhenAllPrerelease(t *testing.T) {
	releases := []Release{{TagName: "v2.0.0-rc1", Prerelease: true}}
	r, err := SelectRelease(releases, "")
	if err != nil || r.TagName != "v2.0.0-rc1" {
		t.Fatalf("got (%+v, %v)", r, err)
	}
}

func TestFilterAssets(t *testing.T) {
	release := Release{Assets: []ReleaseAsset{
		{Name: "app-linux-amd64.tar.gz"},
		{Name: "app-darwin-amd64.tar.gz"},
	}}
	assets, err := FilterAssets(release, PlatformDownloadOptions{MatchKeywords: []string{"linux"}})
	if err != nil || len(assets) != 1 || assets[0].Name != "app-linux-amd64.tar.gz" {
		t.Fatalf("got (%+v, %v)", assets, err)
	}
}

func TestFilterAssetsNoMatchReturnsAvailable(t *testing.T) {
	release := Release{Assets: []ReleaseAsset{{Name: "app-darwin-amd64.tar.gz"}}}
	_, err := FilterAssets(release, PlatformDownloadOptions{MatchKeywords: []string{"linux"}})
	var nma *NoMatchingAssetsError
	if err == nil {
		t.Fatal("expected NoMatchingAssetsError")
	}
	if na, ok := err.(*NoMatchingAssetsError); ok {
		nma = na
	}
	if nma == nil || len(nma.Available) != 1 {
		t.Fatalf("got %T: %v", err, err)
	}
}

func TestDownloadFromPlatformEndToEnd(t *testing.T) {
	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "3")
		w.Write([]byte("abc"))
	}))
	defer assetSrv.Close()

	releaseSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"tag_name":"v1.0.0","assets":[{"name":"app-linux.bin","browser_download_url":"%s/app-linux.bin"}]}]`, assetSrv.URL)
	}))
	defer releaseSrv.Close()

	dir := t.TempDir()
	paths, err := DownloadFromPlatform(context.Background(), fakePlatform{mirror: releaseSrv.URL, primary: releaseSrv.URL}, "owner/repo", PlatformDownloadOptions{
		OutputPath:    dir + "/",
		MatchKeywords: []string{"linux"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %+v", paths)
	}
	data, err := os.ReadFile(filepath.Join(dir, "app-linux.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Fatalf("got %q", data)
	}
}

func TestDownloadFromPlatformInvalidProjectRejected(t *testing.T) {
	_, err := DownloadFromPlatform(context.Background(), GitHub, "", PlatformDownloadOptions{}, nil)
	if err == nil {
		t.Fatal("expected an error for an empty project")
	}
}
