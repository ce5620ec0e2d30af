package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/types"
)

// Frame type discriminants.
const (
	TypeHeader = "header"
	TypePoll   = "poll"
)

// Header describes the session a capture was recorded from.
type Header struct {
	Type        string                  `msgpack:"type"`
	Version     string                  `msgpack:"version"`
	SessionID   string                  `msgpack:"session_id"`
	Detector    string                  `msgpack:"detector"`
	MachineName string                  `msgpack:"machine_name"`
	StartedAt   time.Time               `msgpack:"started_at"`
	Acquisition types.AcquisitionConfig `msgpack:"acquisition"`
	Calibration types.Calibration       `msgpack:"calibration"`
	Voltage     float64                 `msgpack:"voltage"`
}

// Poll is one iteration of the acquisition loop: the status read and the
// buffer fetched after it.
type Poll struct {
	Seq        uint64
	Status     types.StatusBits
	CapturedAt time.Time
	Buffer     *types.ListBuffer
}

// pollFrame is the wire form of a Poll. Events are packed as
// Time<<16 | Aux to keep frames compact.
type pollFrame struct {
	Type           string    `msgpack:"type"`
	Seq            uint64    `msgpack:"seq"`
	Status         uint32    `msgpack:"status"`
	CapturedAt     time.Time `msgpack:"captured_at"`
	Events         []uint32  `msgpack:"events"`
	TimeBaseNs     float64   `msgpack:"time_base_ns"`
	StartTime      time.Time `msgpack:"start_time"`
	LiveTimeMicros uint64    `msgpack:"live_time_us"`
	RealTimeMicros uint64    `msgpack:"real_time_us"`
	Flags          uint32    `msgpack:"flags"`
}

func toPollFrame(p *Poll) pollFrame {
	f := pollFrame{
		Type:       TypePoll,
		Seq:        p.Seq,
		Status:     uint32(p.Status),
		CapturedAt: p.CapturedAt,
	}
	if b := p.Buffer; b != nil {
		f.Events = make([]uint32, len(b.Events))
		for i, ev := range b.Events {
			f.Events[i] = uint32(ev.Time)<<16 | uint32(ev.Aux)
		}
		f.TimeBaseNs = b.TimeBaseNs
		f.StartTime = b.StartTime
		f.LiveTimeMicros = b.LiveTimeMicros
		f.RealTimeMicros = b.RealTimeMicros
		f.Flags = b.Flags
	}
	return f
}

func (f *pollFrame) toPoll() *Poll {
	buf := &types.ListBuffer{
		Events:         make([]types.RawEvent, len(f.Events)),
		TimeBaseNs:     f.TimeBaseNs,
		StartTime:      f.StartTime,
		LiveTimeMicros: f.LiveTimeMicros,
		RealTimeMicros: f.RealTimeMicros,
		Flags:          f.Flags,
	}
	for i, v := range f.Events {
		buf.Events[i] = types.RawEvent{Time: uint16(v >> 16), Aux: uint16(v)}
	}
	return &Poll{
		Seq:        f.Seq,
		Status:     types.StatusBits(f.Status),
		CapturedAt: f.CapturedAt,
		Buffer:     buf,
	}
}

// Recorder appends frames to a capture file. Every frame is flushed as
// it is written.
type Recorder struct {
	f    *os.File
	w    *bufio.Writer
	path string
	seq  uint64
}

// Create creates the capture file at path and writes its header. It fails
// with *archive.ExistsError if the file is already present.
func Create(path string, h Header) (*Recorder, error) {
	f, err := archive.CreateExclusive(path)
	if err != nil {
		return nil, err
	}
	r := &Recorder{f: f, w: bufio.NewWriter(f), path: path}

	h.Type = TypeHeader
	if h.Version == "" {
		h.Version = types.Version
	}
	if err := r.write(h); err != nil {
		iox.DiscardClose(f)
		return nil, err
	}
	return r, nil
}

// Path returns the capture file path.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) write(v any) error {
	if r.f == nil {
		return errors.New("capture: write to closed recorder")
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("capture: encode frame: %w", err)
	}
	if err := writeFrame(r.w, payload); err != nil {
		return lode.WrapWriteError(err, r.path)
	}
	return lode.WrapWriteError(r.w.Flush(), r.path)
}

// WritePoll records one poll. Seq is assigned by the recorder.
func (r *Recorder) WritePoll(status types.StatusBits, buf *types.ListBuffer, capturedAt time.Time) error {
	r.seq++
	return r.write(toPollFrame(&Poll{
		Seq:        r.seq,
		Status:     status,
		CapturedAt: capturedAt,
		Buffer:     buf,
	}))
}

// Close flushes and closes the file. Calling Close again is a no-op.
func (r *Recorder) Close() error {
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f = nil
	if err := r.w.Flush(); err != nil {
		iox.DiscardClose(f)
		return lode.WrapWriteError(err, r.path)
	}
	return lode.WrapWriteError(f.Close(), r.path)
}

// Reader reads a capture stream.
type Reader struct {
	r      io.Reader
	header *Header
}

// NewReader reads and validates the header frame of r.
func NewReader(r io.Reader) (*Reader, error) {
	payload, err := readFrame(r)
	if err != nil {
		if err == io.EOF {
			return nil, &FrameError{Kind: FrameErrorPartial, Msg: "empty capture"}
		}
		return nil, err
	}
	var h Header
	if err := msgpack.Unmarshal(payload, &h); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode header", Err: err}
	}
	if h.Type != TypeHeader {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("first frame has type %q, want %q", h.Type, TypeHeader)}
	}
	return &Reader{r: r, header: &h}, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header { return *r.header }

// Next returns the next poll, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Poll, error) {
	payload, err := readFrame(r.r)
	if err != nil {
		return nil, err
	}
	var f pollFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode poll", Err: err}
	}
	if f.Type != TypePoll {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unexpected frame type %q", f.Type)}
	}
	return f.toPoll(), nil
}
