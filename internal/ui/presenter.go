package ui

import (
	"io"

	"github.com/bamsammich/bale/internal/stats"
)

// Presenter turns the pipeline's event stream into terminal output.
type Presenter interface {
	// Run consumes events until the channel closes.
	Run(events <-chan Event) error
	// Summary returns the completion line, or "" when nothing should be
	// printed.
	Summary() string
}

// Config selects and configures a Presenter.
type Config struct {
	Writer     io.Writer // line output
	ErrWriter  io.Writer // the terminal, for the HUD
	Stats      *stats.Collector
	DstRoot    string // stripped from displayed archive paths
	IsTTY      bool
	Width      int // terminal columns; <= 0 means fallbackWidth
	Quiet      bool
	Verbose    bool // list every archived entry
	NoProgress bool
}

// NewPresenter picks quiet output, plain lines, or the live HUD.
//
//nolint:ireturn // callers only need the Presenter methods
func NewPresenter(cfg Config) Presenter {
	switch {
	case cfg.Quiet:
		return quietPresenter{}
	case cfg.IsTTY && !cfg.NoProgress:
		width := cfg.Width
		if width <= 0 {
			width = fallbackWidth
		}
		return &hudPresenter{
			w:       cfg.ErrWriter,
			stats:   cfg.Stats,
			dstRoot: cfg.DstRoot,
			verbose: cfg.Verbose,
			width:   width,
		}
	default:
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			dstRoot: cfg.DstRoot,
			verbose: cfg.Verbose,
		}
	}
}
