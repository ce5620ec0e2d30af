package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/types"
)

// Replay is an instrument that plays back a capture. Each Status call
// advances to the next recorded poll and returns its status; the
// following ListBuffer returns that poll's buffer. After the last poll the
// input reports idle and buffers are empty.
//
// Control and configuration calls are accepted and ignored. HV and
// identity reads come from the capture header.
type Replay struct {
	mu     sync.Mutex
	rd     *Reader
	closer io.Closer
	header Header

	current  *Poll
	pending  bool
	done     bool
	timeBase float64
	polls    int
}

// Open opens the capture file at path for replay.
func Open(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReplay(f)
	if err != nil {
		iox.DiscardClose(f)
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReplay replays the capture stream r.
func NewReplay(r io.Reader) (*Replay, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Replay{rd: rd, header: rd.Header()}, nil
}

// Header returns the capture header.
func (r *Replay) Header() Header { return r.header }

// Polls returns the number of recorded polls played so far.
func (r *Replay) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

// Status implements device.Instrument.
func (r *Replay) Status(_ context.Context) (types.StatusBits, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return 0, nil
	}
	p, err := r.rd.Next()
	if errors.Is(err, io.EOF) {
		r.done = true
		r.current = nil
		return 0, nil
	}
	if err != nil {
		return 0, device.Wrap("status", err)
	}
	r.polls++
	r.current = p
	r.pending = true
	if p.Buffer != nil && p.Buffer.TimeBaseNs > 0 {
		r.timeBase = p.Buffer.TimeBaseNs
	}
	return p.Status, nil
}

// ListBuffer implements device.Instrument.
func (r *Replay) ListBuffer(_ context.Context) (*types.ListBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending || r.current == nil || r.current.Buffer == nil {
		return &types.ListBuffer{TimeBaseNs: r.timeBase}, nil
	}
	r.pending = false
	return r.current.Buffer, nil
}

// ApplyAcquisitionConfig implements device.Instrument.
func (r *Replay) ApplyAcquisitionConfig(context.Context, types.AcquisitionConfig) error {
	return nil
}

// Control implements device.Instrument.
func (r *Replay) Control(context.Context, types.Command) error { return nil }

// SetVoltage implements device.Instrument.
func (r *Replay) SetVoltage(context.Context, float64) error { return nil }

// SetVoltageEnabled implements device.Instrument.
func (r *Replay) SetVoltageEnabled(context.Context, bool) error { return nil }

// Ramping implements device.Instrument.
func (r *Replay) Ramping(context.Context) (bool, error) { return false, nil }

// Voltage implements device.Instrument.
func (r *Replay) Voltage(context.Context) (float64, error) { return r.header.Voltage, nil }

// VoltageEnabled implements device.Instrument.
func (r *Replay) VoltageEnabled(context.Context) (bool, error) { return true, nil }

// Calibration implements device.Instrument.
func (r *Replay) Calibration(context.Context) (types.Calibration, error) {
	return r.header.Calibration, nil
}

// MachineName implements device.Instrument.
func (r *Replay) MachineName(context.Context) (string, error) {
	return r.header.MachineName, nil
}

// Close implements device.Instrument.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

var _ device.Instrument = (*Replay)(nil)
