// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import "testing"

func TestGitHubFormatProjectPath(t *testing.T) {
	owner, repo, err := GitHub.FormatProjectPath("owner/repo")
	if err != nil || owner != "owner" || repo != "repo" {
		t.Fatalf("got (%q,%q,%v)", owner, repo, err)
	}

	if _, _, err := GitHub.FormatProjectPath("no-slash"); err == nil {
		t.Fatal("expected an error for a project with no slash")
	}
}

func TestGitHubFormatAPIPath(t *testing.T) {
	path, err := GitHub.FormatAPIPath("owner/repo", "")
	if err != nil || path != "/repos/owner/repo/releases?per_page=100" {
		t.Fatalf("got (%q,%v)", path, err)
	}

	path, err = GitHub.FormatAPIPath("owner/repo", "v1.0.0")
	if err != nil || path != "/repos/owner/repo/releases/tags/v1.0.0?per_page=100" {
		t.Fatalf("got (%q,%v)", path, err)
	}
}
