// Package config provides configuration management for the replay server.
// Values come from built-in defaults, an optional YAML file and GAZEREPLAY_*
// environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// Default values
	DefaultPort               = 8000
	DefaultLogLevel           = "info"
	DefaultDatasetRoot        = "."
	DefaultParticipantPattern = `^P_[0-9][0-9]$`
	DefaultCharacteristics    = "participant_characteristics.csv"
	DefaultOutputDir          = "../FramesDataset"

	// Environment variable names
	EnvPrefix     = "GAZEREPLAY_"
	EnvConfigPath = "GAZEREPLAY_CONFIG"

	// DefaultConfigFile is looked up in the working directory.
	DefaultConfigFile = "gazereplay.yaml"

	// Database filename
	DBFilename = "replay.db"
)

// DefaultVideoFilter keeps the videos annotated in the writing study.
var DefaultVideoFilter = []string{"_writing", "dot_test.", "dot_test_final."}

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	Addr() string
	LogLevel() string
	DatasetRoot() string
	ParticipantPattern() *regexp.Regexp
	CharacteristicsFile() string
	OffsetsFile() string
	OutputDir() string
	WriteCSV() bool
	VideoFilter() []string
	FFmpegPath() string
	ExtractTimeout() time.Duration
	DBPath() string
	Headless() bool
	MetricsEnabled() bool
	AllowedOrigins() []string
}

// Values is the koanf document.
type Values struct {
	Server    ServerValues    `koanf:"server"`
	Log       LogValues       `koanf:"log"`
	Dataset   DatasetValues   `koanf:"dataset"`
	Output    OutputValues    `koanf:"output"`
	Replay    ReplayValues    `koanf:"replay"`
	Extract   ExtractValues   `koanf:"extract"`
	Ledger    LedgerValues    `koanf:"ledger"`
	UI        UIValues        `koanf:"ui"`
	Metrics   MetricsValues   `koanf:"metrics"`
	WebSocket WebSocketValues `koanf:"websocket"`
}

type ServerValues struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type LogValues struct {
	Level string `koanf:"level"`
}

type DatasetValues struct {
	Root                string `koanf:"root"`
	ParticipantPattern  string `koanf:"participant_pattern"`
	CharacteristicsFile string `koanf:"characteristics_file"`
	OffsetsFile         string `koanf:"offsets_file"`
}

type OutputValues struct {
	Dir      string `koanf:"dir"`
	WriteCSV bool   `koanf:"write_csv"`
}

type ReplayValues struct {
	VideoFilter []string `koanf:"video_filter"`
}

type ExtractValues struct {
	FFmpegPath string        `koanf:"ffmpeg_path"`
	Timeout    time.Duration `koanf:"timeout"`
}

type LedgerValues struct {
	Path string `koanf:"path"`
}

type UIValues struct {
	Headless bool `koanf:"headless"`
}

type MetricsValues struct {
	Enabled bool `koanf:"enabled"`
}

type WebSocketValues struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func defaultValues() *Values {
	return &Values{
		Server:  ServerValues{Port: DefaultPort},
		Log:     LogValues{Level: DefaultLogLevel},
		Dataset: DatasetValues{
			Root:                DefaultDatasetRoot,
			ParticipantPattern:  DefaultParticipantPattern,
			CharacteristicsFile: DefaultCharacteristics,
		},
		Output:  OutputValues{Dir: DefaultOutputDir, WriteCSV: true},
		Replay:  ReplayValues{VideoFilter: append([]string(nil), DefaultVideoFilter...)},
		UI:      UIValues{Headless: true},
		Metrics: MetricsValues{Enabled: true},
	}
}

// envKeys maps GAZEREPLAY_* suffixes to koanf paths.
var envKeys = map[string]string{}

// sliceKeys accept comma-separated values from the environment.
var sliceKeys = []string{"replay.video_filter", "websocket.allowed_origins"}

func init() {
	for _, key := range []string{
		"server.host", "server.port", "log.level",
		"dataset.root", "dataset.participant_pattern", "dataset.characteristics_file", "dataset.offsets_file",
		"output.dir", "output.write_csv", "replay.video_filter",
		"extract.ffmpeg_path", "extract.timeout", "ledger.path",
		"ui.headless", "metrics.enabled", "websocket.allowed_origins",
	} {
		envKeys[strings.ReplaceAll(key, ".", "_")] = key
	}
}

// KoanfConfig is the loaded, validated configuration.
type KoanfConfig struct {
	v       Values
	pattern *regexp.Regexp
}

// New loads defaults, the config file and environment overrides.
func New() (*KoanfConfig, error) {
	return load(findConfigFile())
}

func load(configPath string) (*KoanfConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultValues(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	cfg := &KoanfConfig{}
	if err := k.Unmarshal("", &cfg.v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform turns GAZEREPLAY_SERVER_PORT into server.port. Unknown
// variables map to "" and are dropped.
func envTransform(s string) string {
	return envKeys[strings.ToLower(strings.TrimPrefix(s, EnvPrefix))]
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, path := range sliceKeys {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

func (c *KoanfConfig) validate() error {
	if c.v.Server.Port < 1 || c.v.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.v.Server.Port)
	}
	switch strings.ToLower(c.v.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.v.Log.Level)
	}
	if c.v.Dataset.Root == "" {
		return fmt.Errorf("dataset.root must not be empty")
	}
	if c.v.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	if c.v.Extract.Timeout < 0 {
		return fmt.Errorf("extract.timeout must not be negative")
	}
	re, err := regexp.Compile(c.v.Dataset.ParticipantPattern)
	if err != nil {
		return fmt.Errorf("dataset.participant_pattern: %w", err)
	}
	c.pattern = re
	return nil
}

func (c *KoanfConfig) Host() string { return c.v.Server.Host }

// Port returns the HTTP server port
func (c *KoanfConfig) Port() int { return c.v.Server.Port }

// Addr is the listen address.
func (c *KoanfConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.v.Server.Host, c.v.Server.Port)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *KoanfConfig) LogLevel() string { return c.v.Log.Level }

func (c *KoanfConfig) DatasetRoot() string { return c.v.Dataset.Root }

func (c *KoanfConfig) ParticipantPattern() *regexp.Regexp { return c.pattern }

// CharacteristicsFile resolves relative names against the dataset root.
func (c *KoanfConfig) CharacteristicsFile() string {
	return c.underRoot(c.v.Dataset.CharacteristicsFile)
}

// OffsetsFile is empty when no offset table is configured.
func (c *KoanfConfig) OffsetsFile() string {
	if c.v.Dataset.OffsetsFile == "" {
		return ""
	}
	return c.underRoot(c.v.Dataset.OffsetsFile)
}

func (c *KoanfConfig) OutputDir() string { return c.v.Output.Dir }

func (c *KoanfConfig) WriteCSV() bool { return c.v.Output.WriteCSV }

func (c *KoanfConfig) VideoFilter() []string { return c.v.Replay.VideoFilter }

func (c *KoanfConfig) FFmpegPath() string { return c.v.Extract.FFmpegPath }

func (c *KoanfConfig) ExtractTimeout() time.Duration { return c.v.Extract.Timeout }

// DBPath returns the full path to the SQLite ledger file
func (c *KoanfConfig) DBPath() string {
	if c.v.Ledger.Path != "" {
		return c.v.Ledger.Path
	}
	return filepath.Join(c.v.Output.Dir, DBFilename)
}

func (c *KoanfConfig) Headless() bool { return c.v.UI.Headless }

func (c *KoanfConfig) MetricsEnabled() bool { return c.v.Metrics.Enabled }

// AllowedOrigins lists the browser origins accepted on the WebSocket. Empty
// means any origin.
func (c *KoanfConfig) AllowedOrigins() []string { return c.v.WebSocket.AllowedOrigins }

func (c *KoanfConfig) underRoot(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.v.Dataset.Root, p)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
