package ui

import "github.com/bamsammich/bale/internal/event"

// Event is the engine event consumed by presenters.
type Event = event.Event

// Event types the presenters switch on.
const (
	ScanStarted     = event.ScanStarted
	ScanComplete    = event.ScanComplete
	FileSkipped     = event.FileSkipped
	FileArchived    = event.FileArchived
	EncodeComplete  = event.EncodeComplete
	DigestComplete  = event.DigestComplete
	EncryptComplete = event.EncryptComplete
	StateSaved      = event.StateSaved
	VerifyStarted   = event.VerifyStarted
	VerifyOK        = event.VerifyOK
	VerifyFailed    = event.VerifyFailed
)
