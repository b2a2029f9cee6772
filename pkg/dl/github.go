// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"fmt"
	"strings"
)

// githubPlatform implements ReleasePlatform for GitHub-style release APIs
// (§4.7).
type githubPlatform struct{}

// GitHub is the ReleasePlatform descriptor for github.com.
var GitHub ReleasePlatform = githubPlatform{}

func (githubPlatform) Name() string            { return "github" }
func (githubPlatform) APIBasePrimary() string  { return "https://api.github.com" }
func (githubPlatform) APIBasePkgforge() string { return "https://api.gh.pkgforge.dev" }
func (githubPlatform) TokenEnvVar() string     { return "GITHUB_TOKEN" }

func (githubPlatform) FormatProjectPath(project string) (owner, repo string, err error) {
	parts := strings.SplitN(project, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q (expected owner/repo)", ErrInvalidInput, project)
	}
	return parts[0], parts[1], nil
}

func (githubPlatform) FormatAPIPath(project string, tag string) (string, error) {
	owner, repo, err := githubPlatform{}.FormatProjectPath(project)
	if err != nil {
		return "", err
	}
	if tag == "" {
		return fmt.Sprintf("/repos/%s/%s/releases?per_page=100", owner, repo), nil
	}
	return fmt.Sprintf("/repos/%s/%s/releases/tags/%s?per_page=100", owner, repo, tag), nil
}
