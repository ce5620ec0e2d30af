package types

import "strings"

// StatusBits is the input status bitmask reported by the instrument.
type StatusBits uint32

// Status bits consumed by the poll loop. Other bits are passed through.
const (
	StatusBusy    StatusBits = 0x00000001
	StatusWaiting StatusBits = 0x00000004
)

// Acquiring reports whether the instrument still has data to deliver.
func (s StatusBits) Acquiring() bool {
	return s&StatusBusy != 0 || s&StatusWaiting != 0
}

// Command is a control command sent to the instrument.
type Command string

// Control commands.
const (
	CommandStop  Command = "stop"
	CommandAbort Command = "abort"
	CommandClear Command = "clear"
	CommandStart Command = "start"
)

// InputMode is the acquisition mode of an input.
type InputMode int

// Input modes. Only time-stamped list mode is used by tlist.
const (
	ModeList  InputMode = 4
	ModeTlist InputMode = 5
)

// PresetType selects the stopping condition of an acquisition.
type PresetType string

// Preset types.
const (
	PresetLive PresetType = "Live"
	PresetReal PresetType = "Real"
)

// ParsePresetType parses a preset type name, case-insensitively.
func ParsePresetType(s string) (PresetType, bool) {
	switch strings.ToLower(s) {
	case "live":
		return PresetLive, true
	case "real":
		return PresetReal, true
	default:
		return "", false
	}
}

// AcquisitionConfig holds the acquisition parameters applied before start.
type AcquisitionConfig struct {
	Mode         InputMode
	Preset       PresetType
	PresetValue  float64 // seconds
	ExternalSync bool
	MemoryGroup  int
}

// Calibration is the energy calibration read back from the instrument.
type Calibration struct {
	Offset float64 `json:"offset" yaml:"offset"`
	Slope  float64 `json:"slope" yaml:"slope"`
}
