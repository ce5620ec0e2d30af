// Package types defines core domain types for the tlist runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// Raw event bit layout. These values are fixed by the instrument firmware.
const (
	// RolloverBit marks a rollover record in RawEvent.Time.
	RolloverBit uint16 = 0x8000
	// TimeMask selects the 15-bit time field of RawEvent.Time.
	TimeMask uint16 = 0x7FFF
	// TimeBits is the width of the time field.
	TimeBits = 15
	// HighShift is the bit position of RawEvent.Aux within the extended clock
	// when the record is a rollover marker (clock bits 30-45).
	HighShift = 30
)

// RawEvent is one list-mode record as delivered by the instrument.
//
// When the rollover bit of Time is clear, Time carries the low 15 bits of
// the clock and Aux is the event (channel) number. When it is set, Time
// carries clock bits 15-29 and Aux carries clock bits 30-45.
type RawEvent struct {
	Time uint16 `msgpack:"t" json:"time"`
	Aux  uint16 `msgpack:"a" json:"aux"`
}

// IsRollover reports whether the record is a rollover marker.
func (e RawEvent) IsRollover() bool {
	return e.Time&RolloverBit != 0
}

// NormalizedEvent is a decoded event with a reconstructed timestamp.
type NormalizedEvent struct {
	// TimestampMicros is the reconstructed event time in microseconds
	// since the acquisition clear.
	TimestampMicros float64
	// Channel is the event number reported by the instrument.
	Channel uint16
	// Captured is the host wall-clock time at which the buffer was decoded.
	Captured time.Time
}

// ListBuffer is one batch of list-mode data fetched from the instrument.
type ListBuffer struct {
	Events []RawEvent `msgpack:"events"`
	// TimeBaseNs is the number of nanoseconds per clock tick.
	TimeBaseNs float64 `msgpack:"time_base_ns"`
	// StartTime is the acquisition start time reported by the instrument.
	StartTime time.Time `msgpack:"start_time"`
	// LiveTimeMicros is the elapsed live time in microseconds.
	LiveTimeMicros uint64 `msgpack:"live_time_us"`
	// RealTimeMicros is the elapsed real time in microseconds.
	RealTimeMicros uint64 `msgpack:"real_time_us"`
	// Flags are the buffer flags, passed through verbatim.
	Flags uint32 `msgpack:"flags"`
}
