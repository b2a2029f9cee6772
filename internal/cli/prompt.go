// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkgforge/soar-dl/pkg/dl"
)

// promptFunc returns the overwrite-confirmation collaborator passed to the
// engine (SUPPLEMENTED FEATURES: interactive prompt grounded on the
// original Rust download_manager.rs, plus the -y/--yes auto-confirm).
func promptFunc(autoYes bool) dl.PromptFunc {
	if autoYes {
		return func(string) bool { return true }
	}
	return func(target string) bool {
		fmt.Fprintf(os.Stderr, "%s already exists. Overwrite? [y/N] ", target)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
