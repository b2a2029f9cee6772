// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import "testing"

func TestGitLabFormatProjectPathOwnerRepo(t *testing.T) {
	owner, repo, err := GitLab.FormatProjectPath("owner/repo")
	if err != nil || owner != "owner" || repo != "repo" {
		t.Fatalf("got (%q,%q,%v)", owner, repo, err)
	}
}

func TestGitLabFormatProjectPathNumericID(t *testing.T) {
	owner, repo, err := GitLab.FormatProjectPath("123456")
	if err != nil || owner != "" || repo != "123456" {
		t.Fatalf("got (%q,%q,%v)", owner, repo, err)
	}
}

func TestGitLabFormatAPIPathNumericID(t *testing.T) {
	path, err := GitLab.FormatAPIPath("123456", "")
	if err != nil || path != "/api/v4/projects/123456/releases" {
		t.Fatalf("got (%q,%v)", path, err)
	}
}

func TestGitLabFormatAPIPathOwnerRepoIsPathEscaped(t *testing.T) {
	path, err := GitLab.FormatAPIPath("owner/repo", "")
	if err != nil || path != "/api/v4/projects/owner%2Frepo/releases" {
		t.Fatalf("got (%q,%v)", path, err)
	}
}
