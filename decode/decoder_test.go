package decode

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/pithecene-io/tlist/types"
)

const testTimeBase = 100.0 // ns per tick

func TestDecode_NoMarkers(t *testing.T) {
	batch := []types.RawEvent{
		{Time: 0x0001, Aux: 3},
		{Time: 0x0010, Aux: 4},
		{Time: 0x7FFF, Aux: 5},
	}

	res, st := Decode(batch, State{}, testTimeBase, time.Time{})

	if res.Consumed != len(batch) {
		t.Fatalf("Consumed = %d, want %d", res.Consumed, len(batch))
	}
	if res.Markers != 0 {
		t.Errorf("Markers = %d, want 0", res.Markers)
	}
	if len(res.Events) != len(batch) {
		t.Fatalf("len(Events) = %d, want %d", len(res.Events), len(batch))
	}
	for i, raw := range batch {
		wantTick := uint64(raw.Time & 0x7FFF)
		want := TicksToMicros(wantTick, testTimeBase)
		if res.Events[i].TimestampMicros != want {
			t.Errorf("Events[%d].TimestampMicros = %v, want %v", i, res.Events[i].TimestampMicros, want)
		}
		if res.Events[i].Channel != raw.Aux {
			t.Errorf("Events[%d].Channel = %d, want %d", i, res.Events[i].Channel, raw.Aux)
		}
	}
	if st.AccumulatedTicks != 0x0001+0x0010+0x7FFF {
		t.Errorf("AccumulatedTicks = %#x, want %#x", st.AccumulatedTicks, 0x0001+0x0010+0x7FFF)
	}
}

func TestDecode_RolloverMarker(t *testing.T) {
	batch := []types.RawEvent{
		{Time: 0x8005, Aux: 0},
		{Time: 0x0003, Aux: 7},
	}

	res, st := Decode(batch, State{}, 1000, time.Time{})

	if st.Accumulator != 0x28000 {
		t.Errorf("Accumulator = %#x, want 0x28000", st.Accumulator)
	}
	if len(res.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(res.Events))
	}
	if res.Consumed != 1 {
		t.Errorf("Consumed = %d, want 1", res.Consumed)
	}
	if res.Markers != 1 {
		t.Errorf("Markers = %d, want 1", res.Markers)
	}
	// time-base of 1000 ns makes microseconds equal ticks.
	if got := res.Events[0].TimestampMicros; got != float64(0x28003) {
		t.Errorf("TimestampMicros = %v, want %v", got, float64(0x28003))
	}
	if res.Events[0].Channel != 7 {
		t.Errorf("Channel = %d, want 7", res.Events[0].Channel)
	}
	if tick, ok := st.LastTick(); !ok || tick != 0x28003 {
		t.Errorf("LastTick() = (%#x, %v), want (0x28003, true)", tick, ok)
	}
}

func TestDecode_HighBitsFromAux(t *testing.T) {
	batch := []types.RawEvent{
		{Time: 0x8000 | 0x0002, Aux: 0x0003},
		{Time: 0x0009, Aux: 1},
	}

	_, st := Decode(batch, State{}, testTimeBase, time.Time{})

	want := uint64(3)<<30 | uint64(2)<<15
	if st.Accumulator != want {
		t.Errorf("Accumulator = %#x, want %#x", st.Accumulator, want)
	}
}

func TestDecode_ConsecutiveMarkersLastWins(t *testing.T) {
	batch := []types.RawEvent{
		{Time: 0x8001, Aux: 0},
		{Time: 0x8002, Aux: 0},
		{Time: 0x8003, Aux: 0},
		{Time: 0x0004, Aux: 9},
	}

	res, st := Decode(batch, State{}, 1000, time.Time{})

	if res.Markers != 3 {
		t.Errorf("Markers = %d, want 3", res.Markers)
	}
	if res.Consumed != 1 {
		t.Errorf("Consumed = %d, want 1", res.Consumed)
	}
	if st.Accumulator != 3<<15 {
		t.Errorf("Accumulator = %#x, want %#x", st.Accumulator, 3<<15)
	}
	if got := res.Events[0].TimestampMicros; got != float64(3<<15|4) {
		t.Errorf("TimestampMicros = %v, want %v", got, float64(3<<15|4))
	}
}

func TestDecode_EmptyBatch(t *testing.T) {
	in := State{Accumulator: 0x8000, AccumulatedTicks: 12}

	res, st := Decode(nil, in, testTimeBase, time.Time{})

	if len(res.Events) != 0 || res.Consumed != 0 || res.Markers != 0 {
		t.Errorf("Decode(nil) = %+v, want empty result", res)
	}
	if st != in {
		t.Errorf("state changed on empty batch: %+v -> %+v", in, st)
	}
}

func TestDecode_StateCarriesAcrossBatches(t *testing.T) {
	var st State

	_, st = Decode([]types.RawEvent{{Time: 0x8001, Aux: 0}}, st, 1000, time.Time{})
	res, _ := Decode([]types.RawEvent{{Time: 0x0002, Aux: 1}}, st, 1000, time.Time{})

	if len(res.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(res.Events))
	}
	if got := res.Events[0].TimestampMicros; got != float64(1<<15|2) {
		t.Errorf("TimestampMicros = %v, want %v", got, float64(1<<15|2))
	}
}

func TestDecode_CapturedTimestamp(t *testing.T) {
	captured := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	res, _ := Decode([]types.RawEvent{{Time: 1, Aux: 1}}, State{}, testTimeBase, captured)

	if !res.Events[0].Captured.Equal(captured) {
		t.Errorf("Captured = %v, want %v", res.Events[0].Captured, captured)
	}
}

func TestState_Clear(t *testing.T) {
	st := State{Accumulator: 0x28000, AccumulatedTicks: 99}
	_, st = Decode([]types.RawEvent{{Time: 3, Aux: 1}}, st, testTimeBase, time.Time{})

	st.Clear()

	if st != (State{}) {
		t.Errorf("Clear() left %+v", st)
	}
	if _, ok := st.LastTick(); ok {
		t.Error("LastTick() reports an event after Clear()")
	}
}

func TestDecode_Anomalies(t *testing.T) {
	tests := []struct {
		name  string
		batch []types.RawEvent
		want  []AnomalyKind
	}{
		{
			name: "clean",
			batch: []types.RawEvent{
				{Time: 0x0001, Aux: 1},
				{Time: 0x8001, Aux: 0},
				{Time: 0x0000, Aux: 1},
			},
			want: nil,
		},
		{
			name: "accumulator moves backwards",
			batch: []types.RawEvent{
				{Time: 0x8004, Aux: 0},
				{Time: 0x0001, Aux: 1},
				{Time: 0x8002, Aux: 0},
				{Time: 0x0001, Aux: 1},
			},
			want: []AnomalyKind{AnomalyClockRegression, AnomalyTickRegression},
		},
		{
			name: "high-order marker followed by reset",
			batch: []types.RawEvent{
				{Time: 0x8000, Aux: 0x0001},
				{Time: 0x8000, Aux: 0x0000},
			},
			want: []AnomalyKind{AnomalyClockRegression},
		},
		{
			name: "tick goes backwards without marker",
			batch: []types.RawEvent{
				{Time: 0x0100, Aux: 1},
				{Time: 0x0010, Aux: 2},
			},
			want: []AnomalyKind{AnomalyTickRegression},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := Decode(tt.batch, State{}, testTimeBase, time.Time{})

			var got []AnomalyKind
			for _, a := range res.Anomalies {
				got = append(got, a.Kind)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("anomalies = %v, want %v", got, tt.want)
			}
			// Anomalies never suppress events.
			if res.Consumed+res.Markers != len(tt.batch) {
				t.Errorf("Consumed+Markers = %d, want %d", res.Consumed+res.Markers, len(tt.batch))
			}
		})
	}
}

func TestDecode_AnomalyDetail(t *testing.T) {
	batch := []types.RawEvent{
		{Time: 0x8004, Aux: 0},
		{Time: 0x8002, Aux: 0},
	}

	res, _ := Decode(batch, State{}, testTimeBase, time.Time{})

	if len(res.Anomalies) != 1 {
		t.Fatalf("len(Anomalies) = %d, want 1", len(res.Anomalies))
	}
	a := res.Anomalies[0]
	if a.Index != 1 {
		t.Errorf("Index = %d, want 1", a.Index)
	}
	if a.Raw != batch[1] {
		t.Errorf("Raw = %+v, want %+v", a.Raw, batch[1])
	}
	if a.Previous != 4<<15 || a.Current != 2<<15 {
		t.Errorf("Previous/Current = %#x/%#x, want %#x/%#x", a.Previous, a.Current, 4<<15, 2<<15)
	}
	if a.String() == "" {
		t.Error("String() is empty")
	}
}

func TestDecode_Idempotent(t *testing.T) {
	batches := randomBatches(t, rand.New(rand.NewSource(7)), 5, 200)

	run := func() []types.NormalizedEvent {
		var (
			st  State
			out []types.NormalizedEvent
		)
		st.Clear()
		for _, b := range batches {
			var res Result
			res, st = Decode(b, st, testTimeBase, time.Now())
			out = append(out, res.Events...)
		}
		return out
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("event counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TimestampMicros != second[i].TimestampMicros || first[i].Channel != second[i].Channel {
			t.Fatalf("event %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestDecode_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	batches := randomBatches(t, rng, 8, 500)

	var (
		st   State
		prev float64
		acc  uint64
	)
	for bi, b := range batches {
		var res Result
		res, st = Decode(b, st, testTimeBase, time.Time{})
		if len(res.Anomalies) != 0 {
			t.Fatalf("batch %d: unexpected anomalies %v", bi, res.Anomalies)
		}
		for i, ev := range res.Events {
			if ev.TimestampMicros < prev {
				t.Fatalf("batch %d event %d: timestamp %v < previous %v", bi, i, ev.TimestampMicros, prev)
			}
			prev = ev.TimestampMicros
		}
		if st.AccumulatedTicks < acc {
			t.Fatalf("batch %d: AccumulatedTicks decreased %d -> %d", bi, acc, st.AccumulatedTicks)
		}
		acc = st.AccumulatedTicks
	}
}

func TestDecode_OneToOne(t *testing.T) {
	batches := randomBatches(t, rand.New(rand.NewSource(3)), 4, 300)

	var st State
	for _, b := range batches {
		markers := 0
		for _, raw := range b {
			if raw.IsRollover() {
				markers++
			}
		}
		var res Result
		res, st = Decode(b, st, testTimeBase, time.Time{})
		if res.Markers != markers {
			t.Errorf("Markers = %d, want %d", res.Markers, markers)
		}
		if len(res.Events) != len(b)-markers || res.Consumed != len(b)-markers {
			t.Errorf("Events/Consumed = %d/%d, want %d", len(res.Events), res.Consumed, len(b)-markers)
		}
	}
}

// randomBatches builds n batches of encoded events with strictly growing
// ticks that cross many rollover boundaries.
func randomBatches(t *testing.T, rng *rand.Rand, n, size int) [][]types.RawEvent {
	t.Helper()

	var (
		enc  Encoder
		tick uint64
		out  = make([][]types.RawEvent, 0, n)
	)
	for range n {
		var (
			batch []types.RawEvent
			err   error
		)
		for range size {
			tick += uint64(rng.Intn(20000))
			batch, err = enc.Append(batch, tick, uint16(rng.Intn(8)))
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		out = append(out, batch)
	}
	return out
}
