// Package decode reconstructs wide event timestamps from the instrument's
// packed list-mode records.
//
// The instrument transmits a 15-bit clock field per event. Whenever the
// upper clock bits change it emits a rollover marker carrying clock bits
// 15-45 instead of an event. A State carries those upper bits between
// batches; Decode folds one batch into it.
package decode

// State is the per-session rollover accumulator.
//
// A State is owned by exactly one session and must not be shared or used
// concurrently. The zero value is a cleared state.
type State struct {
	// Accumulator holds clock bits 15-45 from the most recent rollover marker.
	Accumulator uint64
	// AccumulatedTicks is the running sum of the low 15-bit time fields of
	// all decoded events since the last clear.
	AccumulatedTicks uint64

	lastTick uint64
	emitted  bool
}

// Clear zeroes the state. It is called once at session start, before any
// batch is decoded, and on explicit clear requests.
func (s *State) Clear() {
	*s = State{}
}

// LastTick returns the most recent reconstructed tick and whether any event
// has been decoded since the last clear.
func (s State) LastTick() (uint64, bool) {
	return s.lastTick, s.emitted
}
