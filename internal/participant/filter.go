package participant

import "strings"

// DefaultFilter keeps the writing tasks and the dot tests.
var DefaultFilter = Filter{"_writing", "dot_test.", "dot_test_final."}

// Filter is an allow-list of filename substrings. An empty filter keeps
// every video.
type Filter []string

// Allows reports whether filename contains any of the substrings.
func (f Filter) Allows(filename string) bool {
	if len(f) == 0 {
		return true
	}
	for _, s := range f {
		if strings.Contains(filename, s) {
			return true
		}
	}
	return false
}

// Apply returns the allowed videos in their original order.
func (f Filter) Apply(videos []Video) []Video {
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		if f.Allows(v.Filename) {
			out = append(out, v)
		}
	}
	return out
}
