// Package participant loads everything the replay needs to know about one
// recorded participant: characteristics, interaction log, reference tracker
// data and the list of recorded videos.
package participant

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingInput is returned when a file or table row a participant needs
// cannot be found.
var ErrMissingInput = errors.New("participant input missing")

// DeviceClass is the kind of machine the participant was recorded on.
type DeviceClass string

const (
	DevicePC     DeviceClass = "PC"
	DeviceLaptop DeviceClass = "Laptop"
)

// Characteristics table columns.
const (
	colID          = 0
	colDevice      = 3
	colScreenW     = 4
	colScreenH     = 5
	colCaptureMs   = 9
	colTouchTypist = 18
)

// Characteristics is one participant's row of the characteristics table.
type Characteristics struct {
	ID               string
	Device           DeviceClass
	ScreenWidth      int
	ScreenHeight     int
	ScreencapStartMs int64
	TouchTypist      string
}

// Point is a document offset in screen pixels.
type Point struct {
	X, Y int
}

// DocumentOffset is where the browser document's (0,0) sits on screen.
func (c Characteristics) DocumentOffset() Point {
	if c.Device == DevicePC {
		return Point{X: 0, Y: 66}
	}
	return Point{X: 0, Y: 97}
}

// LoadCharacteristics finds the row for id in the characteristics table.
func LoadCharacteristics(path, id string) (Characteristics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Characteristics{}, fmt.Errorf("%w: characteristics table: %v", ErrMissingInput, err)
	}
	defer f.Close()
	return readCharacteristics(f, id)
}

func readCharacteristics(r io.Reader, id string) (Characteristics, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Characteristics{}, fmt.Errorf("read characteristics: %w", err)
		}
		if len(row) == 0 || row[colID] != id {
			continue
		}
		if len(row) <= colTouchTypist {
			return Characteristics{}, fmt.Errorf("characteristics row for %s has %d columns", id, len(row))
		}
		return parseCharacteristics(row)
	}
	return Characteristics{}, fmt.Errorf("%w: no characteristics row for %s", ErrMissingInput, id)
}

func parseCharacteristics(row []string) (Characteristics, error) {
	c := Characteristics{
		ID:          row[colID],
		Device:      DeviceClass(strings.TrimSpace(row[colDevice])),
		TouchTypist: row[colTouchTypist],
	}

	var err error
	if c.ScreenWidth, err = strconv.Atoi(strings.TrimSpace(row[colScreenW])); err != nil {
		return c, fmt.Errorf("screen width for %s: %w", c.ID, err)
	}
	if c.ScreenHeight, err = strconv.Atoi(strings.TrimSpace(row[colScreenH])); err != nil {
		return c, fmt.Errorf("screen height for %s: %w", c.ID, err)
	}
	if v := strings.TrimSpace(row[colCaptureMs]); v != "" {
		if c.ScreencapStartMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, fmt.Errorf("screen capture start for %s: %w", c.ID, err)
		}
	}
	return c, nil
}
