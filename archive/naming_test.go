package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testStart = time.Date(2026, 10, 16, 9, 5, 33, 0, time.UTC)

func TestNaming_Paths(t *testing.T) {
	n := Naming{Dir: "/data", Prefix: "run a", Suffix: "csv", Start: testStart}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"date dir", n.DateDir(), "/data/20261016"},
		{"chunk 1", n.ChunkPath(1), "/data/20261016/run_a_20261016_0905_1.csv"},
		{"chunk 12", n.ChunkPath(12), "/data/20261016/run_a_20261016_0905_12.csv"},
		{"summary", n.SummaryPath(), "/data/20261016/logInfo_run_a_20261016_0905.txt"},
		{"capture", n.CapturePath(), "/data/20261016/run_a_20261016_0905.tlraw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, filepath.FromSlash(tt.want))
			}
		})
	}
}

func TestNaming_Deterministic(t *testing.T) {
	a := Naming{Dir: "d", Prefix: "p", Suffix: "txt", Start: testStart}
	b := a

	if a.ChunkPath(3) != b.ChunkPath(3) || a.SummaryPath() != b.SummaryPath() {
		t.Error("identical inputs produced different names")
	}
}

func TestNaming_EmptySuffix(t *testing.T) {
	n := Naming{Dir: "d", Prefix: "p", Start: testStart}
	if got := filepath.Base(n.ChunkPath(1)); got != "p_20261016_0905_1" {
		t.Errorf("ChunkPath(1) base = %q", got)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"plain":       "plain",
		"two words":   "two_words",
		" padded  ":   "padded",
		"a b c":       "a_b_c",
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists.csv")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Preflight(filepath.Join(dir, "a"), filepath.Join(dir, "sub", "b")); err != nil {
		t.Errorf("Preflight(fresh) = %v", err)
	}

	err := Preflight(filepath.Join(dir, "a"), existing)
	var ee *ExistsError
	if !errors.As(err, &ee) || ee.Path != existing {
		t.Fatalf("Preflight(existing) = %v, want *ExistsError for %s", err, existing)
	}
	if !errors.Is(err, ErrExists) {
		t.Error("errors.Is(err, ErrExists) = false")
	}
}
