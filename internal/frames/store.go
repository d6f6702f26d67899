package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	// MarkerName is written once frames are extracted and renamed.
	MarkerName = "framesExtracted.txt"

	// LogName holds the extractor's decode log next to the frames.
	LogName = "showinfo.log"

	// ExtractPattern is the extractor's output pattern; numbering starts at 1.
	ExtractPattern = "frame_%08d.png"

	finalFormat = "frame_%08d_%08d.png"
)

var finalNameRe = regexp.MustCompile(`^frame_(\d{8})_(-?\d+)\.png$`)

// Record is one extracted frame.
type Record struct {
	Seq            int
	PresentationMs int64
	Path           string
}

// Dir is the per-video frame directory.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

// Ensure creates the directory if needed.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.Path, 0755); err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	return nil
}

// Extracted reports whether the extraction marker exists.
func (d *Dir) Extracted() bool {
	_, err := os.Stat(d.markerPath())
	return err == nil
}

// OutputPattern is the path pattern handed to the extractor.
func (d *Dir) OutputPattern() string {
	return filepath.Join(d.Path, ExtractPattern)
}

// LogPath is where the extractor's decode log is stored.
func (d *Dir) LogPath() string {
	return filepath.Join(d.Path, LogName)
}

// Reset removes leftovers of an extraction that never reached the marker.
func (d *Dir) Reset() error {
	images, err := d.images()
	if err != nil {
		return err
	}
	for _, p := range images {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale frame: %w", err)
		}
	}
	if err := os.Remove(d.LogPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale decode log: %w", err)
	}
	return nil
}

// Count returns the number of frame images present.
func (d *Dir) Count() (int, error) {
	images, err := d.images()
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// Finalize renames every extracted frame so its name carries the sequence
// number and presentation time, then writes the marker. Extractor numbering
// starts at 1; sequence numbers start at 0.
func (d *Dir) Finalize(timestamps []int64) error {
	for i, ts := range timestamps {
		from := filepath.Join(d.Path, fmt.Sprintf(ExtractPattern, i+1))
		to := filepath.Join(d.Path, fmt.Sprintf(finalFormat, i, ts))
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("rename frame %d: %w", i, err)
		}
	}

	if err := os.WriteFile(d.markerPath(), []byte("Done."), 0644); err != nil {
		return fmt.Errorf("write extraction marker: %w", err)
	}
	return nil
}

// List reads the renamed frames back, ordered by sequence number.
func (d *Dir) List() ([]Record, error) {
	images, err := d.images()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(images))
	for _, p := range images {
		m := finalNameRe.FindStringSubmatch(filepath.Base(p))
		if m == nil {
			return nil, fmt.Errorf("unexpected frame file %s", filepath.Base(p))
		}
		seq, _ := strconv.Atoi(m[1])
		ts, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("frame file %s: %w", filepath.Base(p), err)
		}
		records = append(records, Record{Seq: seq, PresentationMs: ts, Path: p})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

func (d *Dir) images() ([]string, error) {
	images, err := filepath.Glob(filepath.Join(d.Path, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return images, nil
}

func (d *Dir) markerPath() string {
	return filepath.Join(d.Path, MarkerName)
}
