package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/capture"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/decode"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/log"
	"github.com/pithecene-io/tlist/metrics"
	"github.com/pithecene-io/tlist/types"
)

// Result represents the result of a session.
type Result struct {
	SessionID string
	// State is StateComplete or StateFailed.
	State State
	// Summary is the summary file path. Empty if the session failed
	// before creating it.
	Summary string
	// Capture is the raw capture path, if capturing.
	Capture string
	// Chunks lists the closed archive files, in order.
	Chunks      []archive.ChunkRecord
	TotalEvents uint64
	// TimeBaseNs is the latched tick length.
	TimeBaseNs float64
	// Stopped is set when the session was interrupted and drained early.
	Stopped   bool
	Anomalies []decode.Anomaly
	StartedAt time.Time
	Duration  time.Duration
	// Err is the terminal error of a failed session.
	Err     error
	Metrics metrics.Snapshot
}

// Session runs one acquisition. A Session is used by a single goroutine
// and runs once.
type Session struct {
	cfg   Config
	inst  device.Instrument
	clock clock.Clock
	log   *log.Logger
	m     *metrics.Collector

	state         State
	ran           bool
	started       bool
	stopped       bool
	finished      bool
	headerWritten bool
	startedAt     time.Time

	decoder     decode.State
	timeBase    float64
	machineName string
	cal         types.Calibration
	voltage     float64
	anomalies   []decode.Anomaly

	writer   *archive.Writer
	summary  *archive.SummaryFile
	recorder *capture.Recorder
}

// New creates a session. Returns a *Error of KindConfig if cfg is invalid.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{State: StateIdle, Kind: KindConfig, Err: err}
	}
	cfg = cfg.withDefaults()
	return &Session{
		cfg:   cfg,
		inst:  cfg.Instrument,
		clock: cfg.Clock,
		log:   cfg.Logger,
		m:     cfg.Collector,
	}, nil
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Run executes the session end-to-end.
//
// Execution flow:
//  1. Idle: check and create output files, stop any running acquisition
//  2. Ramping (HV control only): set and enable HV, wait for the ramp
//  3. Acquiring: configure, clear, start, poll until the input goes idle
//  4. Draining: process the final buffer
//  5. Complete: close files, mirror them, write the session record
//
// On failure the files are closed (the summary records the failure) and
// the returned error is a *Error. The Result is returned in both cases.
// Cancelling ctx stops the acquisition; the session then drains and
// completes with Result.Stopped set.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.ran {
		return nil, errors.New("session: Run called twice")
	}
	s.ran = true
	s.startedAt = s.clock.Now()
	if s.cfg.Naming.Start.IsZero() {
		s.cfg.Naming.Start = s.startedAt
	}
	s.m.IncSessionStarted()

	s.log.Info("starting session", map[string]any{
		"preset":       string(s.cfg.Preset),
		"preset_value": s.cfg.PresetValue,
		"chunk_size":   s.cfg.ChunkSize,
		"dir":          s.cfg.Naming.DateDir(),
	})

	err := s.run(ctx)
	if err != nil {
		err = s.fail(ctx, err)
	}
	return s.finish(ctx, err), err
}

func (s *Session) run(ctx context.Context) error {
	if err := s.idle(ctx); err != nil {
		return err
	}
	if s.cfg.ControlHV {
		s.transition(StateRamping)
		if err := s.ramp(ctx); err != nil {
			return err
		}
	} else {
		on, err := s.inst.VoltageEnabled(ctx)
		if err != nil {
			return err
		}
		if !on {
			return ErrHVOff
		}
	}
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	return s.complete(ctx)
}

// idle prepares the instrument and creates the output files. Nothing is
// created or modified if any output file already exists.
func (s *Session) idle(ctx context.Context) error {
	name, err := s.inst.MachineName(ctx)
	if err != nil {
		return err
	}
	s.machineName = name
	s.log.Info("connected to instrument", map[string]any{"machine_name": name})

	n := s.cfg.Naming
	paths := []string{n.SummaryPath(), n.ChunkPath(1)}
	if s.cfg.Capture {
		paths = append(paths, n.CapturePath())
	}
	if err := archive.Preflight(paths...); err != nil {
		return err
	}

	if err := s.inst.Control(ctx, types.CommandStop); err != nil {
		return err
	}
	if err := s.inst.Control(ctx, types.CommandAbort); err != nil {
		return err
	}

	if s.summary, err = archive.CreateSummary(n.SummaryPath()); err != nil {
		return err
	}
	if s.writer, err = archive.Open(n, s.cfg.Archive); err != nil {
		return err
	}

	s.cal, err = s.inst.Calibration(ctx)
	return err
}

func (s *Session) writeHeader() error {
	s.headerWritten = true
	return s.summary.WriteHeader(archive.SummaryHeader{
		Note1:       s.cfg.Note1,
		Note2:       s.cfg.Note2,
		Detector:    s.cfg.Detector,
		Serial:      s.cfg.Serial,
		Voltage:     s.voltage,
		Calibration: s.cal,
	})
}

func (s *Session) ramp(ctx context.Context) error {
	if err := s.inst.SetVoltage(ctx, s.cfg.Voltage); err != nil {
		return err
	}
	if err := s.inst.SetVoltageEnabled(ctx, true); err != nil {
		return err
	}

	deadline := s.clock.Now().Add(s.cfg.RampTimeout)
	for {
		ramping, err := s.inst.Ramping(ctx)
		if err != nil {
			return err
		}
		if !ramping {
			return nil
		}
		s.log.Warn("HVPS is ramping", map[string]any{"voltage": s.cfg.Voltage})
		if !s.clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %v", ErrRampTimeout, s.cfg.RampTimeout)
		}
		if err := s.wait(ctx, s.cfg.RampInterval); err != nil {
			return err
		}
	}
}

// begin writes the summary header, opens the capture and starts the
// acquisition.
func (s *Session) begin(ctx context.Context) error {
	volts, err := s.inst.Voltage(ctx)
	if err != nil {
		return err
	}
	s.voltage = volts

	if err := s.writeHeader(); err != nil {
		return err
	}

	acq := types.AcquisitionConfig{
		Mode:         types.ModeTlist,
		Preset:       s.cfg.Preset,
		PresetValue:  s.cfg.PresetValue,
		ExternalSync: false,
		MemoryGroup:  s.cfg.MemoryGroup,
	}

	if s.cfg.Capture {
		s.recorder, err = capture.Create(s.cfg.Naming.CapturePath(), capture.Header{
			SessionID:   s.cfg.SessionID,
			Detector:    s.cfg.Detector,
			MachineName: s.machineName,
			StartedAt:   s.startedAt,
			Acquisition: acq,
			Calibration: s.cal,
			Voltage:     volts,
		})
		if err != nil {
			return err
		}
	}

	if err := s.inst.ApplyAcquisitionConfig(ctx, acq); err != nil {
		return err
	}
	if err := s.inst.Control(ctx, types.CommandClear); err != nil {
		return err
	}
	s.decoder.Clear()

	s.transition(StateAcquiring)
	if err := s.inst.Control(ctx, types.CommandStart); err != nil {
		return err
	}
	s.started = true
	s.log.Info("acquisition started", map[string]any{
		"voltage":      volts,
		"cal_offset":   s.cal.Offset,
		"cal_slope":    s.cal.Slope,
		"memory_group": s.cfg.MemoryGroup,
	})
	return nil
}

// acquire polls the instrument until it stops acquiring, then drains the
// final buffer.
func (s *Session) acquire(ctx context.Context) error {
	var deadline time.Time
	if s.cfg.MaxDuration > 0 {
		deadline = s.clock.Now().Add(s.cfg.MaxDuration)
	}

	for {
		if ctx.Err() != nil {
			return s.interrupt(ctx)
		}

		status, err := s.inst.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupt(ctx)
			}
			return err
		}
		s.m.IncPoll()

		if !status.Acquiring() {
			s.transition(StateDraining)
			return s.processBuffer(ctx, status)
		}
		if err := s.processBuffer(ctx, status); err != nil {
			return err
		}

		if !deadline.IsZero() && !s.clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %v", ErrAcquireTimeout, s.cfg.MaxDuration)
		}

		select {
		case <-ctx.Done():
		case <-s.clock.After(s.cfg.PollInterval):
		}
	}
}

// interrupt stops the acquisition after cancellation and drains one
// final buffer.
func (s *Session) interrupt(ctx context.Context) error {
	s.stopped = true
	s.log.Info("acquisition interrupted, stopping", nil)

	ctx = context.WithoutCancel(ctx)
	if err := s.inst.Control(ctx, types.CommandStop); err != nil {
		return err
	}
	if err := s.inst.Control(ctx, types.CommandAbort); err != nil {
		return err
	}
	s.transition(StateDraining)
	return s.processBuffer(ctx, 0)
}

func (s *Session) processBuffer(ctx context.Context, status types.StatusBits) error {
	buf, err := s.inst.ListBuffer(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	if s.recorder != nil {
		if err := s.recorder.WritePoll(status, buf, now); err != nil {
			s.m.IncCaptureFailure()
			s.log.Warn("capture write failed, capture disabled", map[string]any{
				"path":  s.recorder.Path(),
				"error": err.Error(),
			})
			_ = s.recorder.Close()
			s.recorder = nil
		} else {
			s.m.IncCaptureFrame()
		}
	}

	if err := s.latchTimeBase(buf); err != nil {
		return err
	}

	res, st := decode.Decode(buf.Events, s.decoder, s.timeBase, now)
	s.decoder = st
	for _, a := range res.Anomalies {
		s.log.Warn("decode anomaly", map[string]any{
			"kind":     string(a.Kind),
			"index":    a.Index,
			"raw_time": a.Raw.Time,
			"raw_aux":  a.Raw.Aux,
			"previous": a.Previous,
			"current":  a.Current,
		})
		s.m.IncAnomaly(string(a.Kind))
	}
	s.anomalies = append(s.anomalies, res.Anomalies...)

	n, err := s.writer.Write(res.Events)
	if err != nil {
		return err
	}
	s.m.AddBuffer(len(buf.Events), res.Markers, n)
	s.logBuffer(buf, res)

	rec, rotated, err := s.writer.MaybeRotate(s.cfg.ChunkSize)
	if rotated {
		if err := s.summary.AppendChunk(rec); err != nil {
			return err
		}
		s.m.IncChunkRotated()
		s.log.Info("chunk rotated", map[string]any{"path": rec.Path, "events": rec.Events})
		s.mirror(ctx, rec.Path)
	}
	return err
}

// latchTimeBase fixes the session time base from the first buffer that
// reports one. Later changes are reported and ignored.
func (s *Session) latchTimeBase(buf *types.ListBuffer) error {
	switch {
	case buf.TimeBaseNs <= 0:
		if s.timeBase == 0 && len(buf.Events) > 0 {
			return ErrNoTimeBase
		}
	case s.timeBase == 0:
		s.timeBase = buf.TimeBaseNs
		s.log.Info("time base latched", map[string]any{"time_base_ns": s.timeBase})
	case buf.TimeBaseNs != s.timeBase:
		s.log.Warn("time base changed mid-session, keeping latched value", map[string]any{
			"latched_ns":  s.timeBase,
			"reported_ns": buf.TimeBaseNs,
		})
	}
	return nil
}

func (s *Session) logBuffer(buf *types.ListBuffer, res decode.Result) {
	if !s.log.Enabled(zapcore.DebugLevel) {
		return
	}
	fields := map[string]any{
		"start_time": buf.StartTime,
		"flags":      buf.Flags,
		"events":     res.Consumed,
		"markers":    res.Markers,
	}
	if s.cfg.Preset == types.PresetLive {
		fields["live_time_s"] = float64(buf.LiveTimeMicros) / 1e6
	} else {
		fields["real_time_s"] = float64(buf.RealTimeMicros) / 1e6
	}
	s.log.Debug("buffer processed", fields)
}

func (s *Session) complete(ctx context.Context) error {
	rec, err := s.writer.Close()
	if err != nil {
		return err
	}
	if err := s.summary.AppendChunk(rec); err != nil {
		return err
	}
	s.finished = true
	if err := s.summary.Finish(s.writer.Total(), nil); err != nil {
		return err
	}
	if err := s.summary.Close(); err != nil {
		return err
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			return err
		}
	}
	s.transition(StateComplete)

	s.mirror(ctx, rec.Path)
	s.mirror(ctx, s.summary.Path())
	if s.recorder != nil {
		s.mirror(ctx, s.recorder.Path())
	}
	return nil
}

// fail closes everything that is open, records the failure in the
// summary and returns the terminal error.
func (s *Session) fail(ctx context.Context, err error) error {
	serr := &Error{State: s.state, Kind: classify(err), Err: err}
	if serr.Kind == KindDevice {
		s.m.IncDeviceError()
	}
	ctx = context.WithoutCancel(ctx)

	if s.started {
		if stopErr := s.inst.Control(ctx, types.CommandStop); stopErr != nil {
			s.log.Warn("stop after failure failed", map[string]any{"error": stopErr.Error()})
		}
	}
	if s.summary != nil && !s.headerWritten {
		if herr := s.writeHeader(); herr != nil {
			s.log.Warn("writing summary header failed", map[string]any{"error": herr.Error()})
		}
	}
	if s.writer != nil {
		rec, cerr := s.writer.Close()
		if cerr != nil {
			s.log.Warn("closing archive failed", map[string]any{"error": cerr.Error()})
		}
		if rec.Path != "" && s.summary != nil && !s.finished {
			if aerr := s.summary.AppendChunk(rec); aerr != nil {
				s.log.Warn("recording chunk in summary failed", map[string]any{"error": aerr.Error()})
			}
		}
	}
	if s.recorder != nil {
		if cerr := s.recorder.Close(); cerr != nil {
			s.log.Warn("closing capture failed", map[string]any{"error": cerr.Error()})
		}
	}
	if s.summary != nil {
		if !s.finished {
			s.finished = true
			var total uint64
			if s.writer != nil {
				total = s.writer.Total()
			}
			if ferr := s.summary.Finish(total, err); ferr != nil {
				s.log.Warn("recording failure in summary failed", map[string]any{"error": ferr.Error()})
			}
		}
		if cerr := s.summary.Close(); cerr != nil {
			s.log.Warn("closing summary failed", map[string]any{"error": cerr.Error()})
		}
	}

	s.transition(StateFailed)
	s.log.Error("session failed", map[string]any{
		"state": serr.State.String(),
		"kind":  string(serr.Kind),
		"error": err.Error(),
	})
	return serr
}

// mirror uploads a closed file. Failures are warnings: the local file
// stays authoritative.
func (s *Session) mirror(ctx context.Context, path string) {
	if s.cfg.Mirror == nil || path == "" {
		return
	}
	if err := s.cfg.Mirror.Upload(context.WithoutCancel(ctx), path); err != nil {
		s.log.Warn("mirror upload failed", map[string]any{"path": path, "error": err.Error()})
	}
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

func (s *Session) transition(to State) {
	if !CanTransition(s.state, to) {
		panic(fmt.Sprintf("session: illegal transition %s -> %s", s.state, to))
	}
	s.log.Debug("state transition", map[string]any{"from": s.state.String(), "to": to.String()})
	s.state = to
}

// finish builds the result and writes the session record.
func (s *Session) finish(ctx context.Context, err error) *Result {
	completed := s.clock.Now()
	res := &Result{
		SessionID:  s.cfg.SessionID,
		State:      s.state,
		Stopped:    s.stopped,
		Anomalies:  s.anomalies,
		TimeBaseNs: s.timeBase,
		StartedAt:  s.startedAt,
		Duration:   completed.Sub(s.startedAt),
		Err:        err,
	}
	if s.summary != nil {
		res.Summary = s.summary.Path()
	}
	if s.recorder != nil {
		res.Capture = s.recorder.Path()
	}
	if s.writer != nil {
		res.Chunks = s.writer.Chunks()
		res.TotalEvents = s.writer.Total()
	}

	if f, ok := s.cfg.Mirror.(Flusher); ok {
		if ferr := f.Flush(context.WithoutCancel(ctx)); ferr != nil {
			s.log.Warn("mirror flush failed", map[string]any{"error": ferr.Error()})
		}
	}

	switch {
	case err != nil:
		s.m.IncSessionFailed()
	case s.stopped:
		s.m.IncSessionStopped()
	default:
		s.m.IncSessionCompleted()
	}
	res.Metrics = s.m.Snapshot()

	if err == nil {
		s.log.Info("session complete", map[string]any{
			"total_events": res.TotalEvents,
			"chunks":       len(res.Chunks),
			"stopped":      res.Stopped,
			"anomalies":    len(res.Anomalies),
			"duration_ms":  res.Duration.Milliseconds(),
		})
	}

	if s.cfg.Records != nil {
		if werr := s.cfg.Records.WriteSession(context.WithoutCancel(ctx), s.record(res, completed)); werr != nil {
			s.log.Warn("writing session record failed", map[string]any{"error": werr.Error()})
		}
	}
	return res
}

func (s *Session) record(res *Result, completed time.Time) lode.SessionRecord {
	rec := lode.SessionRecord{
		Version:     types.Version,
		SessionID:   res.SessionID,
		Detector:    s.cfg.Detector,
		Day:         lode.DeriveDay(res.StartedAt),
		State:       res.State.String(),
		Stopped:     res.Stopped,
		StartedAt:   res.StartedAt,
		CompletedAt: completed,
		Preset:      string(s.cfg.Preset),
		PresetValue: s.cfg.PresetValue,
		TimeBaseNs:  res.TimeBaseNs,
		TotalEvents: res.TotalEvents,
		SummaryPath: res.Summary,
		Metrics:     res.Metrics,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	for _, c := range res.Chunks {
		rec.Files = append(rec.Files, lode.ChunkEntry{Path: c.Path, Index: c.Index, Events: c.Events})
	}
	return rec
}
