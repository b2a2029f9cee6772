// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// gitlabPlatform implements ReleasePlatform for GitLab-style release APIs
// (§4.7).
//
// Open question (§9, decided per SPEC_FULL): GitLab's API has no per-tag
// release endpoint, so tag selection happens client-side after fetching
// the full release list, unlike GitHub's dedicated tags/{tag} path.
type gitlabPlatform struct{}

// GitLab is the ReleasePlatform descriptor for gitlab.com.
var GitLab ReleasePlatform = gitlabPlatform{}

func (gitlabPlatform) Name() string            { return "gitlab" }
func (gitlabPlatform) APIBasePrimary() string  { return "https://gitlab.com" }
func (gitlabPlatform) APIBasePkgforge() string { return "https://api.gl.pkgforge.dev" }
func (gitlabPlatform) TokenEnvVar() string     { return "GITLAB_TOKEN" }

func (gitlabPlatform) FormatProjectPath(project string) (owner, repo string, err error) {
	if project == "" {
		return "", "", fmt.Errorf("%w: empty project", ErrInvalidInput)
	}
	// A numeric project ID has no owner/repo split; callers use the raw
	// project string directly in FormatAPIPath.
	if _, err := strconv.ParseInt(project, 10, 64); err == nil {
		return "", project, nil
	}
	parts := strings.SplitN(project, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q (expected owner/repo or numeric id)", ErrInvalidInput, project)
	}
	return parts[0], parts[1], nil
}

func (gitlabPlatform) FormatAPIPath(project string, _ string) (string, error) {
	if project == "" {
		return "", fmt.Errorf("%w: empty project", ErrInvalidInput)
	}
	id := project
	if _, err := strconv.ParseInt(project, 10, 64); err != nil {
		id = url.PathEscape(project) // "/" -> "%2F"
	}
	return fmt.Sprintf("/api/v4/projects/%s/releases", id), nil
}
