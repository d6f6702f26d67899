package participant

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

// DefaultPattern matches participant directory names such as P_07.
const DefaultPattern = `^P_[0-9][0-9]$`

// Discover lists the participant directories directly under root whose
// names match pattern, sorted lexicographically.
func Discover(root string, pattern *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list dataset root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && pattern.MatchString(e.Name()) {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
