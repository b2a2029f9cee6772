// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher filters names by a combination of regexes, globs, and keyword
// inclusion/exclusion lists (§4.1).
//
// A name passes iff every regex matches, every glob matches, every
// inclusion keyword matches, and no exclusion keyword part matches.
type Matcher struct {
	regexes   []*regexp.Regexp
	globs     []glob.Glob
	match     [][]string // each entry is the comma-split parts of one keyword
	exclude   [][]string
	exactCase bool
}

// NewMatcher compiles a Matcher from the raw option strings. Malformed
// regexes/globs are dropped silently, matching the teacher's
// createMatcher tolerance for bad patterns.
func NewMatcher(regexes, globs, matchKeywords, excludeKeywords []string, exactCase bool) *Matcher {
	m := &Matcher{exactCase: exactCase}

	for _, r := range regexes {
		if re, err := regexp.Compile(r); err == nil {
			m.regexes = append(m.regexes, re)
		}
	}
	for _, g := range globs {
		if compiled, err := glob.Compile(g); err == nil {
			m.globs = append(m.globs, compiled)
		}
	}
	for _, kw := range matchKeywords {
		if parts := splitKeyword(kw); len(parts) > 0 {
			m.match = append(m.match, parts)
		}
	}
	for _, kw := range excludeKeywords {
		if parts := splitKeyword(kw); len(parts) > 0 {
			m.exclude = append(m.exclude, parts)
		}
	}

	return m
}

// splitKeyword splits a comma-separated keyword into its non-empty parts.
func splitKeyword(kw string) []string {
	var parts []string
	for _, p := range strings.Split(kw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (m *Matcher) fold(s string) string {
	if m.exactCase {
		return s
	}
	return strings.ToLower(s)
}

// Match reports whether name passes every configured filter.
func (m *Matcher) Match(name string) bool {
	for _, re := range m.regexes {
		if !re.MatchString(name) {
			return false
		}
	}
	for _, g := range m.globs {
		if !g.Match(name) {
			return false
		}
	}

	folded := m.fold(name)

	for _, parts := range m.match {
		if !allPartsMatch(folded, parts, m.exactCase) {
			return false
		}
	}
	for _, parts := range m.exclude {
		if anyPartMatches(folded, parts, m.exactCase) {
			return false
		}
	}

	return true
}

func allPartsMatch(folded string, parts []string, exactCase bool) bool {
	for _, p := range parts {
		if !strings.Contains(folded, foldPart(p, exactCase)) {
			return false
		}
	}
	return true
}

func anyPartMatches(folded string, parts []string, exactCase bool) bool {
	for _, p := range parts {
		if strings.Contains(folded, foldPart(p, exactCase)) {
			return true
		}
	}
	return false
}

func foldPart(p string, exactCase bool) string {
	if exactCase {
		return p
	}
	return strings.ToLower(p)
}
