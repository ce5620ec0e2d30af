package decode

// TicksToMicros converts a clock tick count to microseconds using the
// session time-base in nanoseconds per tick.
func TicksToMicros(tick uint64, timeBaseNs float64) float64 {
	return float64(tick) * (timeBaseNs / 1000.0)
}
