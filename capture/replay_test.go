package capture

import (
	"path/filepath"
	"testing"

	"github.com/pithecene-io/tlist/types"
)

func writeCapture(t *testing.T, polls ...types.StatusBits) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.tlraw")
	rec, err := Create(path, testHeader())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, st := range polls {
		if err := rec.WritePoll(st, testBuffer(), testStart); err != nil {
			t.Fatalf("WritePoll: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestReplay_PlaysPolls(t *testing.T) {
	ctx := t.Context()
	r, err := Open(writeCapture(t, types.StatusBusy, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	st, err := r.Status(ctx)
	if err != nil || st != types.StatusBusy {
		t.Fatalf("Status = %d, %v", st, err)
	}
	buf, err := r.ListBuffer(ctx)
	if err != nil {
		t.Fatalf("ListBuffer: %v", err)
	}
	if len(buf.Events) != 3 {
		t.Errorf("events = %d, want 3", len(buf.Events))
	}

	// A second fetch for the same poll is empty.
	buf, err = r.ListBuffer(ctx)
	if err != nil || len(buf.Events) != 0 {
		t.Errorf("repeat ListBuffer = %d events, %v", len(buf.Events), err)
	}
	if buf.TimeBaseNs != 100 {
		t.Errorf("TimeBaseNs = %v, want 100", buf.TimeBaseNs)
	}

	st, _ = r.Status(ctx)
	if st != 0 {
		t.Errorf("second Status = %d, want 0", st)
	}
	buf, _ = r.ListBuffer(ctx)
	if len(buf.Events) != 3 {
		t.Errorf("final events = %d, want 3", len(buf.Events))
	}

	// Past the end the input stays idle.
	for range 2 {
		st, err = r.Status(ctx)
		if err != nil || st != 0 {
			t.Errorf("Status after end = %d, %v", st, err)
		}
		buf, err = r.ListBuffer(ctx)
		if err != nil || len(buf.Events) != 0 {
			t.Errorf("ListBuffer after end = %d events, %v", len(buf.Events), err)
		}
	}
	if r.Polls() != 2 {
		t.Errorf("Polls = %d, want 2", r.Polls())
	}
}

func TestReplay_HeaderBackedReads(t *testing.T) {
	ctx := t.Context()
	r, err := Open(writeCapture(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if name, _ := r.MachineName(ctx); name != "lynx-01" {
		t.Errorf("MachineName = %q", name)
	}
	if v, _ := r.Voltage(ctx); v != 650 {
		t.Errorf("Voltage = %v", v)
	}
	if on, _ := r.VoltageEnabled(ctx); !on {
		t.Error("VoltageEnabled = false")
	}
	if ramping, _ := r.Ramping(ctx); ramping {
		t.Error("Ramping = true")
	}
	cal, _ := r.Calibration(ctx)
	if cal.Offset != 0.5 || cal.Slope != 1.25 {
		t.Errorf("Calibration = %+v", cal)
	}
	if err := r.Control(ctx, types.CommandStart); err != nil {
		t.Errorf("Control: %v", err)
	}
}

func TestReplay_CloseIdempotent(t *testing.T) {
	r, err := Open(writeCapture(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.tlraw")); err == nil {
		t.Error("expected error for missing capture")
	}
}
