package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/lode"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRamping, "ramping"},
		{StateAcquiring, "acquiring"},
		{StateDraining, "draining"},
		{StateComplete, "complete"},
		{StateFailed, "failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateIdle, StateRamping},
		{StateIdle, StateAcquiring},
		{StateRamping, StateAcquiring},
		{StateAcquiring, StateDraining},
		{StateDraining, StateComplete},
	}
	for _, tt := range legal {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("%v -> %v should be legal", tt.from, tt.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateIdle, StateDraining},
		{StateAcquiring, StateComplete},
		{StateRamping, StateIdle},
		{StateComplete, StateFailed},
		{StateFailed, StateIdle},
	}
	for _, tt := range illegal {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("%v -> %v should be illegal", tt.from, tt.to)
		}
	}

	for _, s := range []State{StateIdle, StateRamping, StateAcquiring, StateDraining} {
		if !CanTransition(s, StateFailed) {
			t.Errorf("%v cannot fail", s)
		}
		if s.Terminal() {
			t.Errorf("%v reported terminal", s)
		}
	}
}

func TestTransition_IllegalPanics(t *testing.T) {
	s := &Session{}
	defer func() {
		if recover() == nil {
			t.Error("expected panic on illegal transition")
		}
	}()
	s.transition(StateComplete)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"exists", &archive.ExistsError{Path: "x"}, KindExistingOutput},
		{"device", device.Wrap("status", errors.New("reset")), KindDevice},
		{"no time base", ErrNoTimeBase, KindDevice},
		{"hv off", ErrHVOff, KindHVOff},
		{"ramp", fmt.Errorf("%w after 1s", ErrRampTimeout), KindTimeout},
		{"acquire", ErrAcquireTimeout, KindTimeout},
		{"storage", lode.NewStorageError(lode.ErrDiskFull, "write", "/x", errors.New("no space")), KindStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitCodeSuccess},
		{&Error{Kind: KindDevice, Err: errors.New("x")}, ExitCodeDevice},
		{&Error{Kind: KindHVOff, Err: ErrHVOff}, ExitCodeDevice},
		{&Error{Kind: KindConfig, Err: errors.New("x")}, ExitCodeConfig},
		{&Error{Kind: KindExistingOutput, Err: errors.New("x")}, ExitCodeExistingOutput},
		{&Error{Kind: KindStorage, Err: errors.New("x")}, ExitCodeStorage},
		{&Error{Kind: KindTimeout, Err: ErrRampTimeout}, ExitCodeTimeout},
		{fmt.Errorf("wrapped: %w", &Error{Kind: KindTimeout, Err: ErrRampTimeout}), ExitCodeTimeout},
		{errors.New("plain"), ExitCodeDevice},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{State: StateAcquiring, Kind: KindDevice, Err: errors.New("reset")}
	want := "session failed while acquiring (device): reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap does not expose the cause")
	}
}
