package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/types"
)

const summaryRule = "--------------"

// SummaryHeader is the acquisition metadata written at the top of the
// summary file.
type SummaryHeader struct {
	Note1       string
	Note2       string
	Detector    string
	Serial      string
	Voltage     float64
	Calibration types.Calibration
}

// SummaryFile is the plain-text companion file of a session. Each call
// writes complete lines and flushes them, so the file stays readable if
// the process dies mid-run.
type SummaryFile struct {
	f    *os.File
	w    *bufio.Writer
	path string
}

// CreateSummary creates the summary file at path. It fails with
// *ExistsError if the file is already present.
func CreateSummary(path string) (*SummaryFile, error) {
	f, err := CreateExclusive(path)
	if err != nil {
		return nil, err
	}
	return &SummaryFile{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the summary file path.
func (s *SummaryFile) Path() string { return s.path }

func (s *SummaryFile) writeLines(lines ...string) error {
	if s.f == nil {
		return fmt.Errorf("archive: write to closed summary %s", s.path)
	}
	for _, l := range lines {
		if _, err := s.w.WriteString(l + "\n"); err != nil {
			return lode.WrapWriteError(err, s.path)
		}
	}
	return lode.WrapWriteError(s.w.Flush(), s.path)
}

// WriteHeader writes notes, detector identity, voltage and calibration,
// and opens the file list.
func (s *SummaryFile) WriteHeader(h SummaryHeader) error {
	return s.writeLines(
		"Note 1: "+h.Note1,
		"Note 2: "+h.Note2,
		fmt.Sprintf("Detector: %s, s/n: %s, voltage: %s", h.Detector, h.Serial, formatFloat(h.Voltage)),
		fmt.Sprintf("Calibration: %s %s", formatFloat(h.Calibration.Offset), formatFloat(h.Calibration.Slope)),
		"Files written:",
		summaryRule,
	)
}

// AppendChunk records a closed chunk.
func (s *SummaryFile) AppendChunk(rec ChunkRecord) error {
	return s.writeLines(fmt.Sprintf("%s (%d events)", rec.Path, rec.Events))
}

// Finish closes the file list with the session total. A non-nil failure
// is recorded after the total.
func (s *SummaryFile) Finish(total uint64, failure error) error {
	lines := []string{summaryRule, fmt.Sprintf("A total of %d events archived.", total)}
	if failure != nil {
		lines = append(lines, "Acquisition failed: "+oneLine(failure.Error()))
	}
	return s.writeLines(lines...)
}

// Close flushes and closes the file. Calling Close again is a no-op.
func (s *SummaryFile) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := s.w.Flush(); err != nil {
		iox.DiscardClose(f)
		return lode.WrapWriteError(err, s.path)
	}
	return lode.WrapWriteError(f.Close(), s.path)
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SummaryInfo is a parsed summary file.
type SummaryInfo struct {
	Note1       string            `json:"note1" yaml:"note1"`
	Note2       string            `json:"note2" yaml:"note2"`
	Detector    string            `json:"detector" yaml:"detector"`
	Serial      string            `json:"serial" yaml:"serial"`
	Voltage     float64           `json:"voltage" yaml:"voltage"`
	Calibration types.Calibration `json:"calibration" yaml:"calibration"`
	Files       []ChunkRecord     `json:"files" yaml:"files"`
	// Total is the archived event count; only meaningful when Complete.
	Total uint64 `json:"total" yaml:"total"`
	// Complete is set when the closing total line was found.
	Complete bool `json:"complete" yaml:"complete"`
	// Failure holds the recorded failure message, if any.
	Failure string `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// ErrMalformedSummary is returned when a summary file cannot be parsed.
var ErrMalformedSummary = errors.New("malformed summary file")

// ParseSummary reads a summary file written by SummaryFile. A file cut
// short by a crash parses with Complete unset.
func ParseSummary(r io.Reader) (*SummaryInfo, error) {
	info := &SummaryInfo{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	inFiles := false
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		var err error

		switch {
		case strings.HasPrefix(line, "Note 1: ") || line == "Note 1:":
			info.Note1 = strings.TrimSpace(strings.TrimPrefix(line, "Note 1:"))
		case strings.HasPrefix(line, "Note 2: ") || line == "Note 2:":
			info.Note2 = strings.TrimSpace(strings.TrimPrefix(line, "Note 2:"))
		case strings.HasPrefix(line, "Detector: "):
			err = parseDetectorLine(info, strings.TrimPrefix(line, "Detector: "))
		case strings.HasPrefix(line, "Calibration: "):
			err = parseCalibrationLine(info, strings.TrimPrefix(line, "Calibration: "))
		case line == "Files written:":
		case line == summaryRule:
			inFiles = !inFiles
		case strings.HasPrefix(line, "A total of "):
			n := strings.TrimSuffix(strings.TrimPrefix(line, "A total of "), " events archived.")
			info.Total, err = strconv.ParseUint(n, 10, 64)
			info.Complete = err == nil
		case strings.HasPrefix(line, "Acquisition failed: "):
			info.Failure = strings.TrimPrefix(line, "Acquisition failed: ")
		case inFiles:
			err = parseFileLine(info, line)
		case line == "":
		default:
			err = fmt.Errorf("unexpected line %q", line)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSummary, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return info, nil
}

func parseDetectorLine(info *SummaryInfo, rest string) error {
	name, rest, ok := strings.Cut(rest, ", s/n: ")
	if !ok {
		return errors.New("detector line missing serial")
	}
	serial, volts, ok := strings.Cut(rest, ", voltage: ")
	if !ok {
		return errors.New("detector line missing voltage")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(volts), 64)
	if err != nil {
		return fmt.Errorf("voltage: %w", err)
	}
	info.Detector, info.Serial, info.Voltage = name, serial, v
	return nil
}

func parseCalibrationLine(info *SummaryInfo, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("calibration wants 2 values, got %d", len(fields))
	}
	off, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("calibration offset: %w", err)
	}
	slope, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("calibration slope: %w", err)
	}
	info.Calibration = types.Calibration{Offset: off, Slope: slope}
	return nil
}

func parseFileLine(info *SummaryInfo, line string) error {
	open := strings.LastIndex(line, " (")
	if open < 0 || !strings.HasSuffix(line, " events)") {
		return errors.New("file line missing event count")
	}
	n, err := strconv.ParseUint(line[open+2:len(line)-len(" events)")], 10, 64)
	if err != nil {
		return fmt.Errorf("event count: %w", err)
	}
	info.Files = append(info.Files, ChunkRecord{
		Path:   line[:open],
		Index:  uint32(len(info.Files) + 1),
		Events: n,
	})
	return nil
}
