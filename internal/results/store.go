package results

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	partialSuffix = "gazePredictions.csv"
	doneSuffix    = "gazePredictionsDone.csv"
)

// Store owns the result files under one output directory.
type Store struct {
	Dir string
	// Disabled turns every write into a no-op; nothing is ever marked done.
	Disabled bool
}

func NewStore(dir string, enabled bool) *Store {
	return &Store{Dir: dir, Disabled: !enabled}
}

// PartialPath is the growing result file of one video.
func (s *Store) PartialPath(participant, video string) string {
	return filepath.Join(s.Dir, participant+"_"+video+"_"+partialSuffix)
}

// DonePath is the completed result file of one video.
func (s *Store) DonePath(participant, video string) string {
	return filepath.Join(s.Dir, participant+"_"+video+"_"+doneSuffix)
}

// IsDone reports whether the video's result is already complete.
func (s *Store) IsDone(participant, video string) bool {
	_, err := os.Stat(s.DonePath(participant, video))
	return err == nil
}

// HasPartial reports whether an unfinished result file exists.
func (s *Store) HasPartial(participant, video string) bool {
	_, err := os.Stat(s.PartialPath(participant, video))
	return err == nil
}

// Begin starts the result file for a video from scratch: any partial file
// left by an interrupted run is discarded and a header row written.
func (s *Store) Begin(participant, video string) (*Writer, error) {
	w := &Writer{
		partial: s.PartialPath(participant, video),
		done:    s.DonePath(participant, video),
	}
	if s.Disabled {
		return w, nil
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(w.partial)
	if err != nil {
		return nil, fmt.Errorf("create result file: %w", err)
	}
	w.f = f
	w.bw = bufio.NewWriter(f)

	if err := w.write(Fieldnames); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Writer appends rows to one video's partial result file.
type Writer struct {
	partial string
	done    string
	f       *os.File
	bw      *bufio.Writer
	rows    int
}

// Rows is the number of data rows appended so far.
func (w *Writer) Rows() int { return w.rows }

// Path is the partial file being written.
func (w *Writer) Path() string { return w.partial }

// Append writes one row and flushes it so a crash loses at most the row in
// flight.
func (w *Writer) Append(r Row) error {
	if w.f == nil {
		w.rows++
		return nil
	}
	if err := w.write(r.Fields()); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Complete closes the file and renames it to its done name.
func (w *Writer) Complete() error {
	if w.f == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.partial, w.done); err != nil {
		return fmt.Errorf("mark result done: %w", err)
	}
	return nil
}

// Close leaves the partial file in place.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	if err := w.bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush result file: %w", err)
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close result file: %w", err)
	}
	return nil
}

func (w *Writer) write(fields []string) error {
	if err := writeQuoted(w.bw, fields); err != nil {
		return fmt.Errorf("write result row: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush result row: %w", err)
	}
	return nil
}

// writeQuoted writes one record with every field quoted and \r\n line
// endings.
func writeQuoted(w io.Writer, fields []string) error {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteString("\r\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
