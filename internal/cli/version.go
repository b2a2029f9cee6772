// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/pkgforge/soar-dl/pkg/dl"
)

// BuildInfo holds version/build info plus the download engine's current
// defaults, since those (not just the Go toolchain) are what a user
// reporting a bug against a specific source actually needs to paste.
type BuildInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
	Commit    string
	BuildTime string

	// DefaultGhcrAPI and DefaultUserAgent surface the engine's built-in
	// defaults (pkg/dl) so a bug report doesn't need to also paste flags.
	DefaultGhcrAPI   string
	DefaultUserAgent string
	Sources          []string
}

// GetBuildInfo returns the current build information.
func GetBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Commit:    "unknown",
		BuildTime: "unknown",

		DefaultGhcrAPI:   dl.DefaultGhcrAPI,
		DefaultUserAgent: dl.DefaultUserAgent,
		Sources:          []string{"http(s) urls", "github releases", "gitlab releases", "oci registries"},
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) >= 7 {
					info.Commit = setting.Value[:7]
				} else {
					info.Commit = setting.Value
				}
			case "vcs.time":
				info.BuildTime = setting.Value
			}
		}
	}

	return info
}

func newVersionCmd(version string) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version, build, and engine default information",
		Run: func(cmd *cobra.Command, args []string) {
			info := GetBuildInfo(version)

			if short {
				fmt.Println(info.Version)
				return
			}

			fmt.Printf("soar-dl %s\n", info.Version)
			fmt.Printf("  Go:          %s\n", info.GoVersion)
			fmt.Printf("  OS/Arch:     %s/%s\n", info.OS, info.Arch)
			fmt.Printf("  Commit:      %s\n", info.Commit)
			fmt.Printf("  Built:       %s\n", info.BuildTime)
			fmt.Printf("  Sources:     %v\n", info.Sources)
			fmt.Printf("  GHCR API:    %s\n", info.DefaultGhcrAPI)
			fmt.Printf("  User-Agent:  %s\n", info.DefaultUserAgent)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
