package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/tlist/log"
)

// ErrClosed is returned by Upload after Close.
var ErrClosed = errors.New("mirror policy closed")

// Streaming uploads from a background worker so the acquisition loop
// never waits on the store. The queue is bounded: when it is full, Upload
// blocks until the worker takes the next file. Files are uploaded in
// order, one at a time.
//
// Flush must not run concurrently with Upload.
type Streaming struct {
	up     Uploader
	logger *log.Logger

	queue      chan string
	ctx        context.Context
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
	workerDone chan struct{}

	mu     sync.Mutex // guards errs and closed
	errs   []error
	closed bool

	stats statsRecorder
}

// NewStreaming starts a streaming policy with a queue of queueSize files
// (DefaultQueueSize when 0).
func NewStreaming(u Uploader, queueSize int, logger *log.Logger) *Streaming {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Streaming{
		up:         u,
		logger:     logger,
		queue:      make(chan string, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Streaming) run() {
	defer close(p.workerDone)
	for path := range p.queue {
		err := p.up.Upload(p.ctx, path)
		p.stats.done(err)
		if err != nil {
			p.logger.Warn("mirror upload failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
		p.inflight.Done()
	}
}

// Upload queues path for the worker.
func (p *Streaming) Upload(ctx context.Context, path string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	p.stats.accepted()

	select {
	case p.queue <- path:
		return nil
	case <-ctx.Done():
		p.stats.done(ctx.Err())
		p.inflight.Done()
		return ctx.Err()
	}
}

// Flush waits until the worker has uploaded every queued file.
func (p *Streaming) Flush(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.stats.flushed()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}

// Close cancels the upload in progress and stops the worker. Queued
// files are abandoned. Close is idempotent.
func (p *Streaming) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.inflight.Wait()
	close(p.queue)
	<-p.workerDone
	return nil
}

// Stats implements Policy.
func (p *Streaming) Stats() Stats { return p.stats.snapshot() }
