package archive

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/types"
)

// Column headers.
const (
	Header          = "timestamp_us,channel"
	HeaderWallClock = "timestamp_us,channel,date,time"
)

// NoRotation disables chunk rotation.
const NoRotation int64 = -1

// Options controls the row format.
type Options struct {
	// WallClock appends the host capture date and time to every row.
	WallClock bool
	// Trailer writes "Total events processed: N" before a chunk closes.
	Trailer bool
}

// ChunkRecord describes one archive file.
type ChunkRecord struct {
	Path   string `json:"path" yaml:"path"`
	Index  uint32 `json:"index" yaml:"index"`
	Events uint64 `json:"events" yaml:"events"`
}

// Writer appends normalized events to the active chunk and rotates
// chunks by event count. A Writer is not safe for concurrent use.
type Writer struct {
	naming Naming
	opts   Options

	f      *os.File
	w      *bufio.Writer
	path   string
	index  uint32
	events uint64

	total  uint64
	chunks []ChunkRecord
	buf    []byte
}

// Open creates chunk 1 and writes its header. It fails with *ExistsError
// if the file is already present.
func Open(naming Naming, opts Options) (*Writer, error) {
	w := &Writer{naming: naming, opts: opts}
	if err := w.openChunk(1); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openChunk(index uint32) error {
	path := w.naming.ChunkPath(index)
	f, err := CreateExclusive(path)
	if err != nil {
		return err
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	w.path = path
	w.index = index
	w.events = 0

	header := Header
	if w.opts.WallClock {
		header = HeaderWallClock
	}
	if _, err := w.w.WriteString(header + "\n"); err != nil {
		return lode.WrapWriteError(err, path)
	}
	return nil
}

// Write appends one row per event and returns the number written.
func (w *Writer) Write(events []types.NormalizedEvent) (int, error) {
	if w.f == nil {
		return 0, fmt.Errorf("archive: write to closed writer")
	}
	for i := range events {
		w.buf = w.appendRow(w.buf[:0], &events[i])
		if _, err := w.w.Write(w.buf); err != nil {
			return i, lode.WrapWriteError(err, w.path)
		}
		w.events++
		w.total++
	}
	return len(events), nil
}

func (w *Writer) appendRow(b []byte, ev *types.NormalizedEvent) []byte {
	b = strconv.AppendFloat(b, ev.TimestampMicros, 'f', 1, 64)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(ev.Channel), 10)
	if w.opts.WallClock {
		b = append(b, ',')
		b = ev.Captured.AppendFormat(b, "20060102")
		b = append(b, ',')
		b = ev.Captured.AppendFormat(b, "15:04:05.000000")
	}
	return append(b, '\n')
}

// MaybeRotate closes the active chunk and opens the next one when the
// active chunk holds more than threshold events. A negative threshold
// disables rotation. The returned record describes the closed chunk.
func (w *Writer) MaybeRotate(threshold int64) (ChunkRecord, bool, error) {
	if threshold < 0 || w.f == nil || w.events <= uint64(threshold) {
		return ChunkRecord{}, false, nil
	}
	rec, err := w.closeChunk()
	if err != nil {
		return rec, false, err
	}
	if err := w.openChunk(rec.Index + 1); err != nil {
		return rec, true, err
	}
	return rec, true, nil
}

// Close flushes and closes the active chunk and returns its record.
// Calling Close again returns a zero record and no error.
func (w *Writer) Close() (ChunkRecord, error) {
	if w.f == nil {
		return ChunkRecord{}, nil
	}
	return w.closeChunk()
}

func (w *Writer) closeChunk() (ChunkRecord, error) {
	rec := ChunkRecord{Path: w.path, Index: w.index, Events: w.events}
	f := w.f
	w.f = nil

	if w.opts.Trailer {
		if _, err := fmt.Fprintf(w.w, "Total events processed: %d\n", w.events); err != nil {
			iox.DiscardClose(f)
			return rec, lode.WrapWriteError(err, rec.Path)
		}
	}
	if err := w.w.Flush(); err != nil {
		iox.DiscardClose(f)
		return rec, lode.WrapWriteError(err, rec.Path)
	}
	if err := f.Close(); err != nil {
		return rec, lode.WrapWriteError(err, rec.Path)
	}
	w.chunks = append(w.chunks, rec)
	return rec, nil
}

// Current describes the active chunk. Its Path is empty once closed.
func (w *Writer) Current() ChunkRecord {
	if w.f == nil {
		return ChunkRecord{}
	}
	return ChunkRecord{Path: w.path, Index: w.index, Events: w.events}
}

// Total returns the number of events written across all chunks.
func (w *Writer) Total() uint64 {
	return w.total
}

// Chunks returns the records of all closed chunks, in order.
func (w *Writer) Chunks() []ChunkRecord {
	out := make([]ChunkRecord, len(w.chunks))
	copy(out, w.chunks)
	return out
}
