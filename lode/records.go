package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/tlist/metrics"
)

// RecordKindSession is the record_kind discriminator of session records.
const RecordKindSession = "session"

// ChunkEntry is one archive file listed in a session record.
type ChunkEntry struct {
	Path   string `json:"path"`
	Index  uint32 `json:"index"`
	Events uint64 `json:"events"`
}

// SessionRecord is the stored summary of one acquisition session.
type SessionRecord struct {
	RecordKind  string           `json:"record_kind"`
	Version     string           `json:"version"`
	SessionID   string           `json:"session_id"`
	Detector    string           `json:"detector"`
	Day         string           `json:"day"`
	State       string           `json:"state"`
	Stopped     bool             `json:"stopped"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Preset      string           `json:"preset"`
	PresetValue float64          `json:"preset_value"`
	TimeBaseNs  float64          `json:"time_base_ns"`
	TotalEvents uint64           `json:"total_events"`
	SummaryPath string           `json:"summary_path"`
	Files       []ChunkEntry     `json:"files"`
	Metrics     metrics.Snapshot `json:"metrics"`
}

// toMap converts the record into the map form Lode's Hive layout needs.
// The JSON round trip keeps field names identical to the struct tags.
func (r SessionRecord) toMap() (map[string]any, error) {
	r.RecordKind = RecordKindSession
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	return m, nil
}

// SessionRecordFromMap decodes a record read back from the dataset.
func SessionRecordFromMap(m map[string]any) (*SessionRecord, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
