package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/bale/internal/stats"
)

// plainPresenter writes one line per pipeline stage to stdout, and
// periodic progress to stderr. Archived entries are listed only when
// verbose.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	dstRoot string
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case ScanComplete:
		fmt.Fprintf(p.w, "found %s files  %s\n", FormatCount(ev.Total), FormatBytes(ev.TotalSize))
	case FileArchived:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case FileSkipped:
		msg := "skipped"
		if ev.Error != nil {
			msg = "skipped: " + ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s\n", ev.Path, msg)
	case EncodeComplete:
		fmt.Fprintf(p.w, "archive: %s  %s  %s\n", StripRoot(p.dstRoot, ev.Path), ev.Detail, FormatBytes(ev.Size))
	case DigestComplete:
		fmt.Fprintf(p.w, "digest: %s\n", ev.Detail)
	case EncryptComplete:
		fmt.Fprintf(p.w, "encrypted: %s  %s\n", StripRoot(p.dstRoot, ev.Path), ev.Detail)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s (%s)\n", StripRoot(p.dstRoot, ev.Path), ev.Detail)
	case VerifyOK, StateSaved, ScanStarted:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	p.stats.Tick()
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesArchived) / float64(snap.BytesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
			pct,
			FormatBytes(snap.BytesArchived), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesArchived), FormatCount(snap.FilesTotal),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: scanning, %s files found\n", FormatCount(snap.FilesScanned))
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
