package participant

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func characteristicsRow(id, device string, w, h int, capture string) string {
	cols := make([]string, 19)
	cols[colID] = id
	cols[colDevice] = device
	cols[colScreenW] = fmt.Sprint(w)
	cols[colScreenH] = fmt.Sprint(h)
	cols[colCaptureMs] = capture
	cols[colTouchTypist] = "Yes"
	return strings.Join(cols, ",")
}

// writeParticipant lays out one participant directory the way the
// recording tool leaves it.
func writeParticipant(t *testing.T, root, dir string, sessions []string) {
	t.Helper()
	pdir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pdir, 0755))

	const start = "1491423217564"
	require.NoError(t, os.WriteFile(filepath.Join(pdir, start+"_1_-study-dot_test_instructions.webm"), nil, 0644))

	entries := []string{
		`{"type":"mousemove","epoch":1491423217600}`,
		`{"windowX":0,"windowY":"23","windowInnerWidth":1920,"windowInnerHeight":1000,"windowOuterWidth":1920,"windowOuterHeight":1080}`,
		`{"windowX":99,"windowY":99,"windowInnerWidth":1,"windowInnerHeight":1,"windowOuterWidth":1,"windowOuterHeight":1}`,
	}
	for i, s := range sessions {
		entries = append(entries, fmt.Sprintf(`{"type":"recording start","sessionString":%q,"epoch":%d}`, s, 1491423300000+int64(i)*1000))
	}
	log := "[" + strings.Join(entries, ",\n") + "]"
	require.NoError(t, os.WriteFile(filepath.Join(pdir, start+".json"), []byte(log), 0644))

	tracker := `{"true_time": 1491423300.0004, "left_gaze_point_on_display_area": [0.5, 0.5], "right_gaze_point_on_display_area": [0.7, 0.5], "left_pupil_validity": 1, "right_pupil_validity": 1}
{"true_time": 1491423300.0333, "left_gaze_point_on_display_area": [NaN, NaN], "right_gaze_point_on_display_area": [0.1, 0.2], "left_pupil_validity": 0, "right_pupil_validity": 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(pdir, dir+".txt"), []byte(tracker), 0644))
}

func TestDiscover_SortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"P_10", "P_02", "P_1", "notes", "P_07"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "P_99"), nil, 0644))

	dirs, err := Discover(root, regexp.MustCompile(DefaultPattern))
	require.NoError(t, err)
	assert.Equal(t, []string{"P_02", "P_07", "P_10"}, dirs)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), regexp.MustCompile(DefaultPattern))
	assert.Error(t, err)
}

func TestReadCharacteristics(t *testing.T) {
	table := strings.Join([]string{
		characteristicsRow("Participant", "Device", 0, 0, ""),
		characteristicsRow("P_01", "PC", 1920, 1080, "1491423217000"),
		characteristicsRow("P_02", "Laptop", 1440, 900, ""),
	}, "\n")
	// header row has non-numeric widths but is never parsed
	table = strings.Replace(table, "Participant,,,Device,0,0", "Participant,,,Device,W,H", 1)

	c, err := readCharacteristics(strings.NewReader(table), "P_01")
	require.NoError(t, err)
	assert.Equal(t, DevicePC, c.Device)
	assert.Equal(t, 1920, c.ScreenWidth)
	assert.Equal(t, int64(1491423217000), c.ScreencapStartMs)
	assert.Equal(t, Point{0, 66}, c.DocumentOffset())

	c, err = readCharacteristics(strings.NewReader(table), "P_02")
	require.NoError(t, err)
	assert.Zero(t, c.ScreencapStartMs)
	assert.Equal(t, Point{0, 97}, c.DocumentOffset())

	_, err = readCharacteristics(strings.NewReader(table), "P_03")
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestParseInputLog(t *testing.T) {
	in := `[
	{"type":"recording start","sessionString":"1491423217564/2/-study-dot_test","epoch":1491423300000},
	{"windowX":"10","windowY":20.0,"windowInnerWidth":800,"windowInnerHeight":600,"windowOuterWidth":820,"windowOuterHeight":700},
	{"type":"mouseclick","clientX":5},
	{"type":"recording start","sessionString":"1491423217564/3/-study-benefits_of_running_writing","epoch":"1491423400000"}
	]`
	log, err := ParseInputLog(strings.NewReader(in))
	require.NoError(t, err)

	require.True(t, log.HasWindow)
	assert.Equal(t, Window{X: 10, Y: 20, InnerWidth: 800, InnerHeight: 600, OuterWidth: 820, OuterHeight: 700}, log.Window)
	assert.Equal(t, []Video{
		{Filename: "1491423217564-2--study-dot_test.webm", RecordingStartMs: 1491423300000},
		{Filename: "1491423217564-3--study-benefits_of_running_writing.webm", RecordingStartMs: 1491423400000},
	}, log.Videos)
}

func TestParseInputLog_Malformed(t *testing.T) {
	_, err := ParseInputLog(strings.NewReader(`{"not":"an array"`))
	assert.Error(t, err)
}

func TestParseOffsets(t *testing.T) {
	in := "video,offset\nP_01/a.webm,0.0331\nP_01/b.webm,-0.5\nP_02/a.webm,1\n"
	o, err := ParseOffsets(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, int64(34), o.For("P_01", "a.webm"))
	assert.Equal(t, int64(-500), o.For("P_01", "b.webm"))
	assert.Equal(t, int64(1000), o.For("P_02", "a.webm"))
	assert.Zero(t, o.For("P_03", "a.webm"))
}

func TestParseOffsets_BadRow(t *testing.T) {
	_, err := ParseOffsets(strings.NewReader("h,h\nno-slash,1\n"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	videos := []Video{{Filename: "a_writing.webm"}, {Filename: "b_dot_test.webm"}, {Filename: "c_other.webm"}}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"writing only", Filter{"_writing"}, []string{"a_writing.webm"}},
		{"default", DefaultFilter, []string{"a_writing.webm", "b_dot_test.webm"}},
		{"empty keeps all", nil, []string{"a_writing.webm", "b_dot_test.webm", "c_other.webm"}},
		{"none match", Filter{"zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, v := range tt.filter.Apply(videos) {
				got = append(got, v.Filename)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeParticipant(t, root, "P_01", []string{
		"1491423217564/2/-study-dot_test",
		"1491423217564/3/-study-benefits_of_running_writing",
		"1491423217564/4/-study-educational_advantages_of_social_networking_sites",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "participant_characteristics.csv"),
		[]byte(characteristicsRow("P_01", "Laptop", 1440, 900, "")+"\n"), 0644))

	l := &Loader{
		Root:                root,
		CharacteristicsFile: "participant_characteristics.csv",
		Offsets:             Offsets{"P_01": {"1491423217564-3--study-benefits_of_running_writing.webm": 120}},
		Filter:              Filter{"_writing"},
	}
	s, err := l.Load("P_01")
	require.NoError(t, err)

	assert.Equal(t, int64(1491423217564), s.StartMs)
	assert.Equal(t, "P_01/1491423217564.json", s.InputLogFile)
	assert.Equal(t, "P_01/P_01.mov", s.ScreencapFile)
	assert.Equal(t, Point{0, 97}, s.DocumentOffset)
	assert.Equal(t, int64(23), s.Window.Y)

	require.Len(t, s.Videos, 1)
	assert.Equal(t, "1491423217564-3--study-benefits_of_running_writing.webm", s.Videos[0].Filename)
	assert.Equal(t, int64(120), s.Videos[0].OffsetMs)

	require.Equal(t, 2, s.Reference.Len())
	first := s.Reference.At(0)
	assert.Equal(t, int64(1491423300000), first.TimestampMs)
	assert.False(t, s.Reference.At(1).LeftValid)
	assert.True(t, s.Reference.At(1).RightValid)
}

func TestLoader_MissingInputs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "chars.csv"),
		[]byte(characteristicsRow("P_01", "PC", 1920, 1080, "")+"\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "P_01"), 0755))

	l := &Loader{Root: root, CharacteristicsFile: "chars.csv"}

	_, err := l.Load("P_01")
	assert.ErrorIs(t, err, ErrMissingInput, "no instructions video")

	_, err = l.Load("P_02")
	assert.ErrorIs(t, err, ErrMissingInput, "no characteristics row")

	writeParticipant(t, root, "P_01", nil)
	require.NoError(t, os.Remove(filepath.Join(root, "P_01", "P_01.txt")))
	_, err = l.Load("P_01")
	assert.ErrorIs(t, err, ErrMissingInput, "no reference log")
}
