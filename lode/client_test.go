package lode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/tlist/metrics"
)

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr   error
	PutCalls int
	PutPaths []string
}

func (s *FailingStore) Put(_ context.Context, path string, _ io.Reader) error {
	s.PutCalls++
	s.PutPaths = append(s.PutPaths, path)
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read datasets share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(sessionID string) Config {
	return Config{
		Detector:  "HPGe-1",
		Day:       "2026-10-16",
		SessionID: sessionID,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", testConfig("s-1"), false},
		{"missing detector", Config{Day: "d", SessionID: "s"}, true},
		{"missing day", Config{Detector: "x", SessionID: "s"}, true},
		{"missing session", Config{Detector: "x", Day: "d"}, true},
		{"slash in detector", Config{Detector: "a/b", Day: "d", SessionID: "s"}, true},
		{"dotdot session", Config{Detector: "a", Day: "d", SessionID: ".."}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_PutFile(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewClientWithFactory(testConfig("s-1"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewClientWithFactory failed: %v", err)
	}

	if err := client.PutFile(t.Context(), "run_20261016_0930_1.csv", "text/csv", []byte("timestamp_us,channel\n")); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	want := "datasets/sessions/partitions/day=2026-10-16/detector=HPGe-1/session_id=s-1/files/run_20261016_0930_1.csv"
	if got := client.FilePath("run_20261016_0930_1.csv"); got != want {
		t.Errorf("FilePath = %q, want %q", got, want)
	}

	rc, err := store.Get(t.Context(), want)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", want, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "timestamp_us,channel\n" {
		t.Errorf("stored data = %q", data)
	}
}

func TestClient_PutFile_RejectsBadNames(t *testing.T) {
	client, err := NewClientWithFactory(testConfig("s-1"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "../x.csv", "a/b.csv", `a\b.csv`} {
		if err := client.PutFile(t.Context(), name, "", nil); err == nil {
			t.Errorf("PutFile(%q) succeeded, want error", name)
		}
	}
}

func TestClient_PutFile_StoreFailure(t *testing.T) {
	store := &FailingStore{PutErr: &os.PathError{Op: "write", Path: "x", Err: syscall.ENOSPC}}
	client, err := NewClientWithFactory(testConfig("s-1"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	err = client.PutFile(t.Context(), "a.csv", "text/csv", []byte("x"))

	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("PutFile error = %v, want ErrDiskFull", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "write" {
		t.Errorf("expected write StorageError, got %#v", err)
	}
	if store.PutCalls != 1 {
		t.Errorf("PutCalls = %d, want 1", store.PutCalls)
	}
}

func TestClient_PutFile_FactoryFailure(t *testing.T) {
	factoryCalls := 0
	factory := func() (lode.Store, error) {
		factoryCalls++
		return nil, errors.New("permission denied")
	}
	client, err := NewClientWithFactory(testConfig("s-1"), factory)
	if err != nil {
		// Dataset construction may already touch the factory.
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("init error = %v, want ErrPermissionDenied", err)
		}
		return
	}

	err = client.PutFile(t.Context(), "a.csv", "", nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("PutFile error = %v, want ErrPermissionDenied", err)
	}
}

func TestClient_WriteAndQuerySession(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	started := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	client, err := NewClientWithFactory(testConfig("s-1"), factory)
	if err != nil {
		t.Fatalf("NewClientWithFactory failed: %v", err)
	}
	rec := SessionRecord{
		Version:     "0.3.0",
		State:       "complete",
		StartedAt:   started,
		CompletedAt: started.Add(10 * time.Second),
		Preset:      "Real",
		PresetValue: 10,
		TotalEvents: 42,
		Files:       []ChunkEntry{{Path: "a.csv", Index: 1, Events: 42}},
		Metrics:     metrics.Snapshot{EventsArchived: 42},
	}
	if err := client.WriteSession(t.Context(), rec); err != nil {
		t.Fatalf("WriteSession failed: %v", err)
	}

	ds, err := NewReadDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	latest, err := QueryLatestSession(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestSession failed: %v", err)
	}
	if latest.SessionID != "s-1" || latest.TotalEvents != 42 {
		t.Errorf("latest = %s/%d, want s-1/42", latest.SessionID, latest.TotalEvents)
	}
	if latest.RecordKind != RecordKindSession {
		t.Errorf("RecordKind = %q", latest.RecordKind)
	}
	if latest.Detector != "HPGe-1" || latest.Day != "2026-10-16" {
		t.Errorf("partition fields = %q/%q", latest.Detector, latest.Day)
	}
	if latest.Metrics.EventsArchived != 42 {
		t.Errorf("Metrics.EventsArchived = %d, want 42", latest.Metrics.EventsArchived)
	}
	if len(latest.Files) != 1 || latest.Files[0].Path != "a.csv" {
		t.Errorf("Files = %+v", latest.Files)
	}
	if !latest.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", latest.StartedAt, started)
	}

	filtered, err := QueryLatestSession(t.Context(), ds, "HPGe-1", "s-1")
	if err != nil {
		t.Fatalf("QueryLatestSession(HPGe-1, s-1) failed: %v", err)
	}
	if filtered.SessionID != "s-1" {
		t.Errorf("filtered SessionID = %q", filtered.SessionID)
	}

	if _, err := QueryLatestSession(t.Context(), ds, "NaI", ""); !errors.Is(err, ErrNoSessionFound) {
		t.Errorf("unknown detector error = %v, want ErrNoSessionFound", err)
	}
	if _, err := QueryLatestSession(t.Context(), ds, "", "s-10"); !errors.Is(err, ErrNoSessionFound) {
		t.Errorf("unknown session error = %v, want ErrNoSessionFound", err)
	}
}

func TestMirror_Upload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logInfo_run_20261016_0930.txt")
	if err := os.WriteFile(path, []byte("Files written:\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stub := NewStubFileWriter()
	collector := metrics.NewCollector("sim", "", "fs", "s-1")
	m := NewMirror(stub, collector)

	if err := m.Upload(t.Context(), path); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if err := m.Upload(t.Context(), filepath.Join(dir, "missing.csv")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Upload(missing) error = %v, want ErrNotFound", err)
	}

	stub.Err = errors.New("boom")
	if err := m.Upload(t.Context(), path); err == nil {
		t.Error("Upload with failing writer succeeded")
	}

	if len(stub.Files) != 1 {
		t.Fatalf("recorded %d files, want 1", len(stub.Files))
	}
	rec := stub.Files[0]
	if rec.Filename != "logInfo_run_20261016_0930.txt" || rec.ContentType != "text/plain" {
		t.Errorf("record = %q/%q", rec.Filename, rec.ContentType)
	}

	s := collector.Snapshot()
	if s.MirrorWriteSuccess != 1 || s.MirrorWriteFailure != 2 {
		t.Errorf("mirror counters = %d/%d, want 1/2", s.MirrorWriteSuccess, s.MirrorWriteFailure)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.csv":   "text/csv",
		"a.txt":   "text/plain",
		"a.tlraw": "application/msgpack",
		"a.bin2":  "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	path := "sessions/day=2026-10-16/detector=HPGe/session_id=s-10/data.jsonl"

	if !matchesPartitionValue(path, "session_id", "s-10") {
		t.Error("expected exact segment match")
	}
	if matchesPartitionValue(path, "session_id", "s-1") {
		t.Error("s-1 must not match s-10")
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b", "bucket", "a/b"},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.in, b, p, tt.bucket, tt.prefix)
		}
	}

	var cfg S3Config
	if cfg.Validate() == nil {
		t.Error("empty bucket should fail validation")
	}
}

func TestDeriveDay(t *testing.T) {
	start := time.Date(2026, 10, 16, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	if got := DeriveDay(start); got != "2026-10-17" {
		t.Errorf("DeriveDay = %q, want 2026-10-17", got)
	}
}
