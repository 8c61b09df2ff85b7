package ui

import (
	"fmt"

	"github.com/bamsammich/bale/internal/stats"
)

// CompletionSummary renders the line printed after a backup, e.g.
//
//	done ✓  files 1,204  size 2.1 GiB  archive 812 MiB (38.6%)  avg 641 MiB/s  time 3m 17s  skipped 0
//
// The mark is "!" when any entry was skipped.
func CompletionSummary(snap stats.Snapshot) string {
	var avgSpeed float64
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		avgSpeed = float64(snap.BytesArchived) / secs
	}

	mark := "✓"
	if snap.FilesSkipped > 0 {
		mark = "!"
	}

	return fmt.Sprintf("done %s  files %s  size %s  archive %s (%s)  avg %s  time %s  skipped %d",
		mark,
		FormatCount(snap.FilesArchived),
		FormatBytes(snap.BytesArchived),
		FormatBytes(snap.ArchiveBytes),
		FormatRatio(snap.Ratio()),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
		snap.FilesSkipped,
	)
}
