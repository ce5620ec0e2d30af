package policy

import "context"

// Strict uploads every file before Upload returns. The session waits on
// the mirror at each rotation.
type Strict struct {
	up    Uploader
	stats statsRecorder
}

// NewStrict creates a strict policy.
func NewStrict(u Uploader) *Strict {
	return &Strict{up: u}
}

// Upload uploads path and returns the upload error.
func (p *Strict) Upload(ctx context.Context, path string) error {
	p.stats.accepted()
	err := p.up.Upload(ctx, path)
	p.stats.done(err)
	return err
}

// Flush is a no-op; nothing is pending.
func (p *Strict) Flush(context.Context) error {
	p.stats.flushed()
	return nil
}

// Close is a no-op.
func (p *Strict) Close() error { return nil }

// Stats implements Policy.
func (p *Strict) Stats() Stats { return p.stats.snapshot() }
