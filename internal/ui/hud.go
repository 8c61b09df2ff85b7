package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bamsammich/bale/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

const (
	feedThreshFPS    = 200.0 // above this, archived entries are not listed
	feedReserve      = 16    // columns kept for the marker and size column
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

// hudPresenter provides a TTY display with a scrolling feed of pipeline
// stages and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   *stats.Collector
	dstRoot string
	verbose bool
	width   int

	hudDrawn    bool
	lastHUDDraw time.Time
}

func (p *hudPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer, then switch to 1s.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw while a single large file is being encoded.
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileArchived:
		if p.verbose && p.stats.RollingFilesPerSec(2) < feedThreshFPS {
			p.feed("✓  %s  %10s", styledPath(p.fit(ev.Path)), FormatBytes(ev.Size))
		}
	case FileSkipped:
		p.feed("–  %s  %sskipped%s", styledPath(p.fit(ev.Path)), ansiDim, ansiReset)
	case EncodeComplete:
		p.feed("■  %s  %s  %s", StripRoot(p.dstRoot, ev.Path), ev.Detail, FormatBytes(ev.Size))
	case DigestComplete:
		p.feed("#  %s%s%s", ansiDim, ev.Detail, ansiReset)
	case EncryptComplete:
		p.feed("⚿  encrypted with %s", ev.Detail)
	case VerifyStarted:
		p.feed("%sverifying checksums...%s", ansiDim, ansiReset)
	case VerifyFailed:
		p.feed("✗  %s  %s MISMATCH", StripRoot(p.dstRoot, ev.Path), ev.Detail)
	}
}

// fit shortens an entry path so its feed line stays on one row.
func (p *hudPresenter) fit(path string) string {
	return ShortenPath(path, p.width-feedReserve)
}

// feed prints a line above the HUD.
func (p *hudPresenter) feed(format string, args ...any) {
	p.clearHUD()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesArchived) / float64(snap.BytesTotal)
	}

	// Line 1: speed + byte totals + archive size so far.
	fmt.Fprintf(p.w, "       %s   %s / %s   archive %s\n",
		FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesArchived), FormatBytes(snap.BytesTotal),
		FormatBytes(snap.ArchiveBytes))

	// Line 2: progress bar + files + eta.
	fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s files   eta %s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(snap.FilesArchived), FormatCount(snap.FilesTotal),
		FormatETA(p.stats.ETA()))

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up two lines and clear to end of screen.
	fmt.Fprint(p.w, "\033[2A\033[J")
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed and the
// filename in normal weight.
func styledPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}
