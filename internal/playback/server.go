// Package playback serves dataset files (screen captures, interaction logs)
// to the annotation client, with byte-range support so the browser can seek
// inside large videos.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrOutsideRoot is returned for paths that would escape the dataset root.
var ErrOutsideRoot = errors.New("path escapes dataset root")

// Server serves files below a single root directory.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{root: root, logger: logger}
}

// Resolve maps a slash-separated path relative to the root onto the
// filesystem. Absolute paths and ".." segments are rejected.
func (s *Server) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", ErrOutsideRoot
		}
	}
	if filepath.IsAbs(filepath.FromSlash(rel)) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// ServeFile writes the file at rel, honouring a Range header.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, rel string) error {
	path, err := s.Resolve(rel)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}
	size := stat.Size()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	span, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// a malformed header is ignored and the whole file is sent
		span = nil
	case err != nil:
		return err
	}

	if span == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		n, _ := io.Copy(w, file)
		s.logger.Debug("served file", "path", rel, "bytes", humanize.IBytes(uint64(n)))
		return nil
	}

	if _, err := file.Seek(span.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(span.Length(), 10))
	w.Header().Set("Content-Range", span.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	n, _ := io.CopyN(w, file, span.Length())
	s.logger.Debug("served range", "path", rel, "range", span.Header(size), "bytes", humanize.IBytes(uint64(n)))
	return nil
}
