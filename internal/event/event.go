package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileSkipped
	FileArchived
	EncodeComplete
	DigestComplete
	EncryptComplete
	StateSaved
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:     "ScanStarted",
	ScanComplete:    "ScanComplete",
	FileSkipped:     "FileSkipped",
	FileArchived:    "FileArchived",
	EncodeComplete:  "EncodeComplete",
	DigestComplete:  "DigestComplete",
	EncryptComplete: "EncryptComplete",
	StateSaved:      "StateSaved",
	VerifyStarted:   "VerifyStarted",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the pipeline.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // entry name, archive path, or state path
	Size      int64  // file size or bytes written
	Total     int64  // total files (ScanComplete)
	TotalSize int64  // total bytes (ScanComplete)
	Detail    string // algorithm, envelope, or reference name
	Error     error
	WorkerID  int
}

// Emit sends e on ch, stamping it with the current time. A nil channel
// drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	ch <- e
}
