// Package metrics provides per-session acquisition metrics.
//
// The Collector accumulates counters during a single acquisition session.
// It is a leaf package with no internal dependencies; anomaly kinds are
// recorded as plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the session counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsStopped   int64 `json:"sessions_stopped"`
	SessionsFailed    int64 `json:"sessions_failed"`

	// Poll loop
	Polls        int64 `json:"polls"`
	Buffers      int64 `json:"buffers"`
	DeviceErrors int64 `json:"device_errors"`

	// Decode
	RawEvents        int64            `json:"raw_events"`
	RolloverMarkers  int64            `json:"rollover_markers"`
	Anomalies        int64            `json:"anomalies"`
	AnomaliesByKind  map[string]int64 `json:"anomalies_by_kind,omitempty"`
	CaptureFrames    int64            `json:"capture_frames"`
	CaptureFailures  int64            `json:"capture_failures"`

	// Archive
	EventsArchived int64 `json:"events_archived"`
	ChunksRotated  int64 `json:"chunks_rotated"`

	// Mirror / storage
	MirrorWriteSuccess int64 `json:"mirror_write_success"`
	MirrorWriteFailure int64 `json:"mirror_write_failure"`

	// Dimensions (informational, set at construction)
	DeviceBackend  string `json:"device_backend"`
	Detector       string `json:"detector"`
	StorageBackend string `json:"storage_backend"`
	SessionID      string `json:"session_id"`
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsStopped   int64
	sessionsFailed    int64

	polls        int64
	buffers      int64
	deviceErrors int64

	rawEvents       int64
	rolloverMarkers int64
	anomalies       int64
	anomaliesByKind map[string]int64
	captureFrames   int64
	captureFailures int64

	eventsArchived int64
	chunksRotated  int64

	mirrorWriteSuccess int64
	mirrorWriteFailure int64

	deviceBackend  string
	detector       string
	storageBackend string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when mirroring is disabled.
func NewCollector(deviceBackend, detector, storageBackend, sessionID string) *Collector {
	return &Collector{
		anomaliesByKind: make(map[string]int64),
		deviceBackend:   deviceBackend,
		detector:        detector,
		storageBackend:  storageBackend,
		sessionID:       sessionID,
	}
}

// add applies fn under the lock. No-op on a nil receiver.
func (c *Collector) add(fn func(c *Collector)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(c)
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() { c.add(func(c *Collector) { c.sessionsStarted++ }) }

// IncSessionCompleted records a session that reached Complete.
func (c *Collector) IncSessionCompleted() { c.add(func(c *Collector) { c.sessionsCompleted++ }) }

// IncSessionStopped records a session completed after a stop request.
func (c *Collector) IncSessionStopped() { c.add(func(c *Collector) { c.sessionsStopped++ }) }

// IncSessionFailed records a session that reached Failed.
func (c *Collector) IncSessionFailed() { c.add(func(c *Collector) { c.sessionsFailed++ }) }

// --- Poll loop ---

// IncPoll records one status poll.
func (c *Collector) IncPoll() { c.add(func(c *Collector) { c.polls++ }) }

// IncDeviceError records a failed device call.
func (c *Collector) IncDeviceError() { c.add(func(c *Collector) { c.deviceErrors++ }) }

// AddBuffer records one fetched buffer: its raw record count, the number
// of rollover markers in it and the number of events archived from it.
func (c *Collector) AddBuffer(raw, markers, archived int) {
	c.add(func(c *Collector) {
		c.buffers++
		c.rawEvents += int64(raw)
		c.rolloverMarkers += int64(markers)
		c.eventsArchived += int64(archived)
	})
}

// IncAnomaly records one decode anomaly of the given kind.
func (c *Collector) IncAnomaly(kind string) {
	c.add(func(c *Collector) {
		c.anomalies++
		c.anomaliesByKind[kind]++
	})
}

// IncCaptureFrame records a raw buffer written to the capture file.
func (c *Collector) IncCaptureFrame() { c.add(func(c *Collector) { c.captureFrames++ }) }

// IncCaptureFailure records a failed capture write.
func (c *Collector) IncCaptureFailure() { c.add(func(c *Collector) { c.captureFailures++ }) }

// --- Archive ---

// IncChunkRotated records a chunk rotation.
func (c *Collector) IncChunkRotated() { c.add(func(c *Collector) { c.chunksRotated++ }) }

// --- Mirror ---
// Mirror counters are per file, not per event.

// IncMirrorWriteSuccess records a file mirrored to storage.
func (c *Collector) IncMirrorWriteSuccess() { c.add(func(c *Collector) { c.mirrorWriteSuccess++ }) }

// IncMirrorWriteFailure records a failed mirror write.
func (c *Collector) IncMirrorWriteFailure() { c.add(func(c *Collector) { c.mirrorWriteFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.anomaliesByKind))
	for k, v := range c.anomaliesByKind {
		byKind[k] = v
	}

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsStopped:   c.sessionsStopped,
		SessionsFailed:    c.sessionsFailed,

		Polls:        c.polls,
		Buffers:      c.buffers,
		DeviceErrors: c.deviceErrors,

		RawEvents:       c.rawEvents,
		RolloverMarkers: c.rolloverMarkers,
		Anomalies:       c.anomalies,
		AnomaliesByKind: byKind,
		CaptureFrames:   c.captureFrames,
		CaptureFailures: c.captureFailures,

		EventsArchived: c.eventsArchived,
		ChunksRotated:  c.chunksRotated,

		MirrorWriteSuccess: c.mirrorWriteSuccess,
		MirrorWriteFailure: c.mirrorWriteFailure,

		DeviceBackend:  c.deviceBackend,
		Detector:       c.detector,
		StorageBackend: c.storageBackend,
		SessionID:      c.sessionID,
	}
}
