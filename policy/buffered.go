package policy

import (
	"context"
	"errors"
	"sync"
)

// Buffered holds files until Flush, or until maxPending files are
// waiting. Uploads happen in the order the files were handed over.
//
// A failed upload is not retried; the local file remains and the failure
// is returned by the Flush that attempted it.
type Buffered struct {
	up         Uploader
	maxPending int

	mu      sync.Mutex // guards pending
	pending []string
	// flushMu serializes uploads so threshold and final flushes keep order.
	flushMu sync.Mutex
	errs    []error // guarded by flushMu

	stats statsRecorder
}

// NewBuffered creates a buffered policy. maxPending 0 defers every upload
// to Flush.
func NewBuffered(u Uploader, maxPending int) *Buffered {
	return &Buffered{up: u, maxPending: maxPending}
}

// Upload queues path and flushes when the threshold is reached. A
// threshold flush reports its failures on the next Flush.
func (p *Buffered) Upload(ctx context.Context, path string) error {
	p.stats.accepted()

	p.mu.Lock()
	p.pending = append(p.pending, path)
	full := p.maxPending > 0 && len(p.pending) >= p.maxPending
	p.mu.Unlock()

	if full {
		p.flushMu.Lock()
		p.uploadPending(ctx)
		p.flushMu.Unlock()
	}
	return nil
}

// Flush uploads every pending file.
func (p *Buffered) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.uploadPending(ctx)
	p.stats.flushed()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}

// uploadPending drains the buffer. Caller holds flushMu.
func (p *Buffered) uploadPending(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, path := range batch {
		err := p.up.Upload(ctx, path)
		p.stats.done(err)
		if err != nil {
			p.errs = append(p.errs, err)
		}
	}
}

// Close drops nothing; pending files stay until Flush.
func (p *Buffered) Close() error { return nil }

// Stats implements Policy.
func (p *Buffered) Stats() Stats { return p.stats.snapshot() }
