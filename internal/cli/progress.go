// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/pkgforge/soar-dl/pkg/dl"
)

// progressReporter drives one cheggaaa/pb bar per source, fed from the
// engine's dl.ProgressFunc callback. The bar is created lazily on the
// first Preparing/Progress event, since total size isn't known until
// then (and the OCI blob-reference path never sends Preparing until the
// blob response's headers arrive).
type progressReporter struct {
	label string
	quiet bool

	mu  sync.Mutex
	bar *pb.ProgressBar
}

func newProgressReporter(label string, quiet bool) *progressReporter {
	return &progressReporter{label: label, quiet: quiet}
}

func (p *progressReporter) report(s dl.DownloadState) {
	if p.quiet {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch s.Kind {
	case dl.StatePreparing:
		if p.bar == nil {
			p.bar = pb.New64(s.TotalBytes)
			p.bar.Set(pb.Bytes, true)
			p.bar.SetTemplateString(`{{ "` + p.label + `" }} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
			p.bar.Start()
		} else {
			p.bar.SetTotal(s.TotalBytes)
		}
	case dl.StateProgress:
		if p.bar == nil {
			p.bar = pb.New64(s.TotalBytes)
			p.bar.Set(pb.Bytes, true)
			p.bar.SetTemplateString(`{{ "` + p.label + `" }} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
			p.bar.Start()
		}
		p.bar.SetCurrent(s.BytesSoFar)
	case dl.StateRecovered:
		if p.bar != nil {
			p.bar.SetCurrent(s.BytesSoFar)
		}
	}
}

// finish stops the bar (if one was ever started) and prints a one-line
// result when running quiet or when the source failed outright.
func (p *progressReporter) finish(err error) {
	p.mu.Lock()
	bar := p.bar
	p.mu.Unlock()

	if bar != nil {
		bar.Finish()
	}

	switch {
	case err != nil:
		fmt.Printf("%s: failed: %v\n", p.label, err)
	case p.quiet:
		fmt.Printf("%s: done\n", p.label)
	}
}
