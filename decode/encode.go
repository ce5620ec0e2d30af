package decode

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/tlist/types"
)

// MaxTick is the largest tick representable by the packed encoding.
const MaxTick = 1<<46 - 1

// ErrTickRange is returned when a tick does not fit the packed encoding.
var ErrTickRange = errors.New("tick exceeds 46-bit clock")

// Encoder packs wide ticks into list-mode records, emitting a rollover
// marker whenever the upper clock bits change. It is the inverse of Decode
// and keeps its upper bits across calls, like the instrument does across
// buffers.
type Encoder struct {
	high uint64
}

// Append encodes one event onto dst.
func (e *Encoder) Append(dst []types.RawEvent, tick uint64, channel uint16) ([]types.RawEvent, error) {
	if tick > MaxTick {
		return dst, fmt.Errorf("%w: %d", ErrTickRange, tick)
	}
	high := tick &^ uint64(types.TimeMask)
	if high != e.high {
		dst = append(dst, types.RawEvent{
			Time: types.RolloverBit | uint16(tick>>types.TimeBits)&types.TimeMask,
			Aux:  uint16(tick >> types.HighShift),
		})
		e.high = high
	}
	return append(dst, types.RawEvent{
		Time: uint16(tick) & types.TimeMask,
		Aux:  channel,
	}), nil
}

// Reset returns the encoder to a cleared clock.
func (e *Encoder) Reset() {
	e.high = 0
}

// Encode packs ticks and channels, pairwise, into a record stream that
// decodes back to the same ticks from a cleared State.
func Encode(ticks []uint64, channels []uint16) ([]types.RawEvent, error) {
	if len(ticks) != len(channels) {
		return nil, fmt.Errorf("encode: %d ticks but %d channels", len(ticks), len(channels))
	}
	var (
		enc Encoder
		out = make([]types.RawEvent, 0, len(ticks))
		err error
	)
	for i, tick := range ticks {
		if out, err = enc.Append(out, tick, channels[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
