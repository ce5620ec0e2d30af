// Package policy decides when closed session files reach the mirror.
//
// A session hands every closed file (chunk, summary, capture) to a Policy.
// The policy uploads it through an Uploader now, later, or from a
// background worker. Files are never dropped: whatever is still pending
// is uploaded by Flush, which the session calls before writing its record.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/tlist/log"
)

// Policy names accepted by New.
const (
	NameStrict    = "strict"
	NameBuffered  = "buffered"
	NameStreaming = "streaming"
)

// DefaultQueueSize bounds the streaming queue when Config.MaxPending is 0.
const DefaultQueueSize = 16

// Uploader copies one local file to the mirror. *lode.Mirror implements it.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Policy schedules mirror uploads.
type Policy interface {
	// Upload hands over a closed file. Depending on the policy the
	// upload happens before Upload returns or later.
	Upload(ctx context.Context, path string) error

	// Flush uploads everything pending and returns the upload failures
	// seen since the previous Flush.
	Flush(ctx context.Context) error

	// Close stops background work. Pending files are not uploaded;
	// call Flush first.
	Close() error

	// Stats returns a consistent snapshot of the counters.
	Stats() Stats
}

// Stats counts files through a policy.
type Stats struct {
	// Total is the number of files handed to Upload.
	Total int64
	// Uploaded is the number of successful uploads.
	Uploaded int64
	// Failed is the number of failed uploads.
	Failed int64
	// Pending is the number of files accepted but not yet uploaded.
	Pending int64
	// FlushCount is the number of Flush calls.
	FlushCount int64
}

// Config selects and tunes a policy.
type Config struct {
	// Name is strict, buffered or streaming. Empty means strict.
	Name string
	// MaxPending is the buffered flush threshold or the streaming queue
	// size. Zero means flush only on Flush (buffered) or
	// DefaultQueueSize (streaming).
	MaxPending int
	// Logger receives upload failures from the streaming worker.
	Logger *log.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Name {
	case "", NameStrict, NameBuffered, NameStreaming:
	default:
		return fmt.Errorf("unknown mirror policy %q (must be strict, buffered or streaming)", c.Name)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("max pending must be >= 0, got %d", c.MaxPending)
	}
	return nil
}

// New creates the policy named in cfg around u.
func New(u Uploader, cfg Config) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	switch cfg.Name {
	case NameBuffered:
		return NewBuffered(u, cfg.MaxPending), nil
	case NameStreaming:
		return NewStreaming(u, cfg.MaxPending, cfg.Logger), nil
	default:
		return NewStrict(u), nil
	}
}

// statsRecorder guards a Stats value.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) accepted() {
	r.mu.Lock()
	r.stats.Total++
	r.stats.Pending++
	r.mu.Unlock()
}

func (r *statsRecorder) done(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Pending--
	if err != nil {
		r.stats.Failed++
	} else {
		r.stats.Uploaded++
	}
}

func (r *statsRecorder) flushed() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
