package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Extractor turns one video into numbered frame images plus a decode log.
type Extractor interface {
	// Extract blocks until the utility exits. A non-zero exit is reported in
	// RunResult, not as an error; err is reserved for failures to start it.
	Extract(ctx context.Context, req Request) (RunResult, error)

	// Probe checks that the utility can be executed.
	Probe(ctx context.Context) (*Capabilities, error)
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath   string        // path to ffmpeg; empty = look up on PATH
	Timeout      time.Duration // 0 = wait as long as extraction takes
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	DebugPaths   bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		FFmpegPath:   "",
		Timeout:      0,
		ProbeTimeout: 10 * time.Second,
		Logger:       logger,
	}
}

// FFmpegRunner is the production implementation of Extractor.
type FFmpegRunner struct {
	cfg    Config
	ffmpeg string
}

// NewRunner resolves the ffmpeg binary and returns a runner for it.
func NewRunner(cfg Config) (*FFmpegRunner, error) {
	bin, err := resolveFFmpeg(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg.Logger.Info("frame extractor initialised", "ffmpeg", bin)
	return &FFmpegRunner{cfg: cfg, ffmpeg: bin}, nil
}

// Extract runs `ffmpeg -i <video> -vf showinfo <pattern>`. The showinfo filter
// writes one line per decoded frame to stderr; the whole stream is kept in
// req.LogPath for timestamp reconstruction.
func (r *FFmpegRunner) Extract(ctx context.Context, req Request) (RunResult, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPattern), 0755); err != nil {
		return RunResult{}, fmt.Errorf("create output dir: %w", err)
	}

	logFile, err := os.Create(req.LogPath)
	if err != nil {
		return RunResult{}, fmt.Errorf("create decode log: %w", err)
	}
	defer logFile.Close()

	return r.exec(ctx, logFile, req.LogPath,
		"-nostdin", "-y",
		"-i", req.VideoPath,
		"-vf", "showinfo",
		req.OutputPattern,
	), nil
}

// Probe runs `ffmpeg -version` and reports the first line.
func (r *FFmpegRunner) Probe(ctx context.Context) (*Capabilities, error) {
	if r.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ffmpeg, "-version")
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	caps := &Capabilities{Path: r.ffmpeg, ProbedAt: time.Now()}
	if err := cmd.Run(); err != nil {
		caps.Error = err.Error()
		return caps, fmt.Errorf("ffmpeg -version: %w", err)
	}

	caps.Available = true
	caps.Version = firstLine(stdout.String())
	return caps, nil
}

// exec is the core subprocess execution helper. stderr goes to both the log
// writer and a bounded tail buffer.
func (r *FFmpegRunner) exec(ctx context.Context, log io.Writer, logPath string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)

	var stderrBuf bytes.Buffer
	tail := &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	bw := bufio.NewWriter(log)
	cmd.Stderr = io.MultiWriter(bw, tail)
	cmd.Stdout = io.Discard

	r.cfg.Logger.Info("executing extractor",
		"args", r.safeArgs(args),
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	if ferr := bw.Flush(); ferr != nil {
		r.cfg.Logger.Warn("failed to flush decode log", "error", ferr)
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			tail.Write([]byte(err.Error()))
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("extractor failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("extractor succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"log", r.safePath(logPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		LogPath:    logPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *FFmpegRunner) safeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsRune(a, filepath.Separator) {
			out[i] = r.safePath(a)
		} else {
			out[i] = a
		}
	}
	return out
}

func (r *FFmpegRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// resolveFFmpeg finds a usable ffmpeg binary.
func resolveFFmpeg(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured ffmpeg %q not found", preferred)
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no ffmpeg binary found on PATH")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
