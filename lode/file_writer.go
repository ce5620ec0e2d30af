package lode

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/pithecene-io/tlist/metrics"
)

// FileWriter writes whole files to a Lode store.
type FileWriter interface {
	// PutFile writes a file under the session's files/ prefix.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

// Mirror copies closed local files to a FileWriter and records the
// outcome on a metrics collector.
type Mirror struct {
	writer    FileWriter
	collector *metrics.Collector
}

// NewMirror creates a mirror. collector may be nil.
func NewMirror(w FileWriter, collector *metrics.Collector) *Mirror {
	return &Mirror{writer: w, collector: collector}
}

// Upload reads the local file at path and writes it under its base name.
func (m *Mirror) Upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		m.collector.IncMirrorWriteFailure()
		return WrapReadError(err, path)
	}

	name := filepath.Base(path)
	if err := m.writer.PutFile(ctx, name, contentTypeFor(name), data); err != nil {
		m.collector.IncMirrorWriteFailure()
		return fmt.Errorf("mirror %s: %w", name, err)
	}
	m.collector.IncMirrorWriteSuccess()
	return nil
}

func contentTypeFor(name string) string {
	switch ext := filepath.Ext(name); ext {
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	case ".tlraw":
		return "application/msgpack"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
	// Err, when set, is returned from every PutFile call.
	Err error
}

// StubFileRecord is a recorded file write for testing.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return nil
}

var _ FileWriter = (*StubFileWriter)(nil)
