package decode

import (
	"fmt"
	"time"

	"github.com/pithecene-io/tlist/types"
)

// AnomalyKind classifies an unexpected bit pattern seen while decoding.
type AnomalyKind string

const (
	// AnomalyClockRegression is reported when a rollover marker moves the
	// accumulator backwards. The upper clock bits should only grow within a
	// session, so this usually means a high-order event arrived out of band.
	AnomalyClockRegression AnomalyKind = "clock_regression"
	// AnomalyTickRegression is reported when a normal event reconstructs to a
	// tick earlier than the previous event.
	AnomalyTickRegression AnomalyKind = "tick_regression"
)

// Anomaly describes one suspicious record. Anomalies never change decoding;
// the record is processed like any other.
type Anomaly struct {
	Kind AnomalyKind
	// Index is the position of the record within its batch.
	Index int
	Raw   types.RawEvent
	// Previous and Current are accumulator values for clock regressions and
	// tick values for tick regressions.
	Previous uint64
	Current  uint64
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s at %d (time=%#04x aux=%#04x): %#x -> %#x",
		a.Kind, a.Index, a.Raw.Time, a.Raw.Aux, a.Previous, a.Current)
}

// Result is the outcome of decoding one batch.
type Result struct {
	// Events holds one NormalizedEvent per non-rollover record, in order.
	Events []types.NormalizedEvent
	// Consumed is the number of records that produced an event, i.e. the
	// batch length minus Markers. It is the count archived and tallied.
	Consumed int
	// Markers is the number of rollover markers in the batch.
	Markers int
	// Anomalies lists suspicious records. Nil when none were seen.
	Anomalies []Anomaly
}

// Decode folds batch into st in arrival order and returns the decoded
// events together with the updated state.
//
// Each normal record yields tick = Accumulator | (Time & 0x7FFF), scaled
// to microseconds with timeBaseNs. Each rollover marker replaces the
// accumulator with Aux<<30 | (Time&0x7FFF)<<15 and yields nothing.
// Consecutive markers are legal; the last one wins.
//
// Decode performs no I/O and never fails. An empty batch returns an empty
// result and st unchanged.
func Decode(batch []types.RawEvent, st State, timeBaseNs float64, captured time.Time) (Result, State) {
	var res Result
	if len(batch) == 0 {
		return res, st
	}

	res.Events = make([]types.NormalizedEvent, 0, len(batch))
	for i, raw := range batch {
		low := uint64(raw.Time & types.TimeMask)

		if raw.IsRollover() {
			next := uint64(raw.Aux)<<types.HighShift | low<<types.TimeBits
			if next < st.Accumulator {
				res.Anomalies = append(res.Anomalies, Anomaly{
					Kind:     AnomalyClockRegression,
					Index:    i,
					Raw:      raw,
					Previous: st.Accumulator,
					Current:  next,
				})
			}
			st.Accumulator = next
			res.Markers++
			continue
		}

		tick := st.Accumulator | low
		if st.emitted && tick < st.lastTick {
			res.Anomalies = append(res.Anomalies, Anomaly{
				Kind:     AnomalyTickRegression,
				Index:    i,
				Raw:      raw,
				Previous: st.lastTick,
				Current:  tick,
			})
		}
		st.lastTick = tick
		st.emitted = true
		st.AccumulatedTicks += low

		res.Events = append(res.Events, types.NormalizedEvent{
			TimestampMicros: TicksToMicros(tick, timeBaseNs),
			Channel:         raw.Aux,
			Captured:        captured,
		})
	}
	res.Consumed = len(batch) - res.Markers

	return res, st
}
