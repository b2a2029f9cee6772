// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the soar-dl command-line front end.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkgforge/soar-dl/pkg/dl"
)

// RootOpts holds global CLI options shared by every source kind (§6).
type RootOpts struct {
	Proxy     string
	UserAgent string
	Headers   []string
	Quiet     bool
	Yes       bool
}

// Execute runs the CLI with the given version string and returns any
// error encountered; main maps a non-nil return to exit code 1.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := newRootCmd(ctx, ro, version)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newRootCmd(ctx context.Context, ro *RootOpts, version string) *cobra.Command {
	src := &sourceOpts{}

	root := &cobra.Command{
		Use:   "soar-dl [URL ...]",
		Short: "Download release artifacts from URLs, GitHub/GitLab releases, or OCI registries",
		Long: `soar-dl fetches artifacts from three source classes:

  - arbitrary HTTP(S) URLs
  - GitHub/GitLab release APIs (--github, --gitlab, or bare github.com/gitlab.com URLs)
  - OCI container registries (--ghcr, or bare ghcr.io/oci:// URLs)

Resumable transfers are available across all three. Pattern-based filtering
applies to release assets and OCI layers; archive extraction applies to
direct-URL and release downloads, not to OCI layer pulls.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(ctx, ro, src, args)
		},
	}

	root.PersistentFlags().StringVar(&ro.Proxy, "proxy", "", "HTTP(S) proxy URL for all requests")
	root.PersistentFlags().StringVarP(&ro.UserAgent, "user-agent", "A", dl.DefaultUserAgent, "User-Agent header sent with every request")
	root.PersistentFlags().StringArrayVarP(&ro.Headers, "header", "H", nil, "Extra request header as 'Key: Value' (repeatable)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Suppress progress bars; print one result line per source and the final failure summary")
	root.PersistentFlags().BoolVarP(&ro.Yes, "yes", "y", false, "Assume yes to overwrite prompts (non-interactive mode)")

	bindSourceFlags(root, src)

	root.AddCommand(newVersionCmd(version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

// signalContext cancels when the user hits Ctrl-C or the process receives
// SIGTERM, letting in-flight transfers close their sidecar files cleanly.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
