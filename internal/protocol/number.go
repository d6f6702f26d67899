package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

// Number keeps a numeric value exactly as the client wrote it. It accepts a
// JSON number, a numeric string or null; null and "" leave it empty.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("invalid number %s", b)
		}
		*n = Number(s)
		return nil
	}
	*n = Number(b)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return []byte(strconv.Quote(string(n))), nil
	}
	return []byte(n), nil
}

// Empty reports whether the client sent no value.
func (n Number) Empty() bool { return n == "" }

func (n Number) String() string { return string(n) }

func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Int64 parses the value, accepting integral floats such as 12.0.
func (n Number) Int64() (int64, error) {
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("%s is not integral", n)
	}
	return int64(f), nil
}
