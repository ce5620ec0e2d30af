package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestRawEvent_IsRollover(t *testing.T) {
	tests := []struct {
		name string
		ev   RawEvent
		want bool
	}{
		{"zero", RawEvent{}, false},
		{"max time", RawEvent{Time: 0x7FFF, Aux: 3}, false},
		{"flag only", RawEvent{Time: 0x8000}, true},
		{"flag with bits", RawEvent{Time: 0x8005, Aux: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.IsRollover(); got != tt.want {
				t.Errorf("IsRollover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusBits_Acquiring(t *testing.T) {
	tests := []struct {
		status StatusBits
		want   bool
	}{
		{0, false},
		{StatusBusy, true},
		{StatusWaiting, true},
		{StatusBusy | StatusWaiting, true},
		{0x100, false},
	}

	for _, tt := range tests {
		if got := tt.status.Acquiring(); got != tt.want {
			t.Errorf("StatusBits(%#x).Acquiring() = %v, want %v", uint32(tt.status), got, tt.want)
		}
	}
}

func TestParsePresetType(t *testing.T) {
	tests := []struct {
		in     string
		want   PresetType
		wantOK bool
	}{
		{"Live", PresetLive, true},
		{"real", PresetReal, true},
		{"REAL", PresetReal, true},
		{"wall", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePresetType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePresetType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
