// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/pkgforge/soar-dl/internal/cli"
)

var version = "0.1.0"

func main() {
	if err := cli.Execute(version); err != nil {
		// cli.Execute has already printed the error.
		os.Exit(1)
	}
}
