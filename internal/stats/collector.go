package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks archive run statistics using lock-free atomic counters.
// A nil *Collector is valid and discards all updates.
type Collector struct {
	filesScanned  atomic.Int64
	filesArchived atomic.Int64
	filesSkipped  atomic.Int64
	bytesArchived atomic.Int64
	archiveBytes  atomic.Int64
	bytesTotal    atomic.Int64
	filesTotal    atomic.Int64
	startTime     time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	filesPerSec [ringSize]int64 // files delta per second
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records scan totals (called once when scan completes).
func (c *Collector) SetTotals(files, bytes int64) {
	if c == nil {
		return
	}
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned  int64
	FilesArchived int64
	FilesSkipped  int64
	BytesArchived int64 // uncompressed input bytes
	ArchiveBytes  int64 // final on-disk archive size
	BytesTotal    int64
	FilesTotal    int64
	Elapsed       time.Duration
}

func (c *Collector) AddFilesScanned(n int64) {
	if c != nil {
		c.filesScanned.Add(n)
	}
}

func (c *Collector) AddFilesArchived(n int64) {
	if c != nil {
		c.filesArchived.Add(n)
	}
}

func (c *Collector) AddFilesSkipped(n int64) {
	if c != nil {
		c.filesSkipped.Add(n)
	}
}

func (c *Collector) AddBytesArchived(n int64) {
	if c != nil {
		c.bytesArchived.Add(n)
	}
}

func (c *Collector) SetArchiveBytes(n int64) {
	if c != nil {
		c.archiveBytes.Store(n)
	}
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		FilesScanned:  c.filesScanned.Load(),
		FilesArchived: c.filesArchived.Load(),
		FilesSkipped:  c.filesSkipped.Load(),
		BytesArchived: c.bytesArchived.Load(),
		ArchiveBytes:  c.archiveBytes.Load(),
		BytesTotal:    c.bytesTotal.Load(),
		FilesTotal:    c.filesTotal.Load(),
		Elapsed:       c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	if c == nil {
		return
	}
	currentBytes := c.bytesArchived.Load()
	currentFiles := c.filesArchived.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	bytesDelta := currentBytes - c.lastBytes
	filesDelta := currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.throughput[c.ringIdx] = bytesDelta
	c.filesPerSec[c.ringIdx] = filesDelta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesArchived.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}

// Ratio returns archive size over input size, or 0 when nothing was read.
func (s Snapshot) Ratio() float64 {
	if s.BytesArchived == 0 {
		return 0
	}
	return float64(s.ArchiveBytes) / float64(s.BytesArchived)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d archived=%d skipped=%d bytes=%d archive=%d",
		s.FilesScanned, s.FilesArchived, s.FilesSkipped,
		s.BytesArchived, s.ArchiveBytes,
	)
}
