package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names. Every field of Config can be overridden by one.
const (
	EnvOutputDir     = "DOC2MD_OUTPUT_DIR"
	EnvMaxFileBytes  = "DOC2MD_MAX_FILE_BYTES"
	EnvPDFBackend    = "DOC2MD_PDF_BACKEND"
	EnvPDFConcurrent = "DOC2MD_PDF_CONCURRENT"
	EnvSplit2Bytes   = "DOC2MD_SPLIT_2_BYTES"
	EnvSplit4Bytes   = "DOC2MD_SPLIT_4_BYTES"
	EnvPartTimeout   = "DOC2MD_PART_TIMEOUT"
	EnvOfficeBinary  = "DOC2MD_OFFICE_BIN"
	EnvWorkers       = "DOC2MD_WORKERS"
	EnvLogLevel      = "DOC2MD_LOG_LEVEL"
	EnvLogFormat     = "DOC2MD_LOG_FORMAT"
	EnvListenAddr    = "DOC2MD_LISTEN"
)

// Defaults applied when a value is missing or invalid.
const (
	DefaultOutputDir          = "output"
	DefaultMaxFileBytes int64 = 200 << 20
	DefaultPDFBackend         = BackendFitz
	DefaultSplit2Bytes  int64 = 5 << 20
	DefaultSplit4Bytes  int64 = 10 << 20
	DefaultPartTimeout        = 10 * time.Minute
	DefaultWorkers            = 1
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultListenAddr         = "127.0.0.1:5000"
)

// PDF engine backends.
const (
	BackendFitz = "fitz" // MuPDF page HTML with embedded images
	BackendText = "text" // text layer only, no images
)

// Config holds runtime configuration sourced from environment variables and
// an optional YAML file.
type Config struct {
	OutputDir         string        `yaml:"output_dir"`
	MaxFileSizeBytes  int64         `yaml:"max_file_bytes"`
	PDFBackend        string        `yaml:"pdf_backend"`
	PDFConcurrentSafe bool          `yaml:"pdf_concurrent_safe"`
	SplitThreshold2   int64         `yaml:"split_2_bytes"`
	SplitThreshold4   int64         `yaml:"split_4_bytes"`
	PartTimeout       time.Duration `yaml:"part_timeout"`
	OfficeBinary      string        `yaml:"office_binary"`
	Workers           int           `yaml:"workers"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	ListenAddr        string        `yaml:"listen_addr"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		OutputDir:        DefaultOutputDir,
		MaxFileSizeBytes: DefaultMaxFileBytes,
		PDFBackend:       DefaultPDFBackend,
		SplitThreshold2:  DefaultSplit2Bytes,
		SplitThreshold4:  DefaultSplit4Bytes,
		PartTimeout:      DefaultPartTimeout,
		Workers:          DefaultWorkers,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		ListenAddr:       DefaultListenAddr,
	}
}

// MaxFileSizeMB returns the configured limit in whole megabytes.
func (c *Config) MaxFileSizeMB() int64 {
	return c.MaxFileSizeBytes >> 20
}

// Load reads Config from environment variables (after loading a .env file
// when one exists), falling back to defaults for missing or invalid values.
func Load() *Config {
	_ = godotenv.Load()
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file on top of the defaults and then applies
// environment overrides. Invalid values in the file are reset to defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	_ = godotenv.Load()
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if n, ok := positiveInt64(os.Getenv(EnvMaxFileBytes)); ok {
		c.MaxFileSizeBytes = n
	}
	if v := os.Getenv(EnvPDFBackend); v == BackendFitz || v == BackendText {
		c.PDFBackend = v
	}
	if b, err := strconv.ParseBool(os.Getenv(EnvPDFConcurrent)); err == nil {
		c.PDFConcurrentSafe = b
	}
	if n, ok := positiveInt64(os.Getenv(EnvSplit2Bytes)); ok {
		c.SplitThreshold2 = n
	}
	if n, ok := positiveInt64(os.Getenv(EnvSplit4Bytes)); ok {
		c.SplitThreshold4 = n
	}
	if d, err := time.ParseDuration(os.Getenv(EnvPartTimeout)); err == nil && d > 0 {
		c.PartTimeout = d
	}
	if v := os.Getenv(EnvOfficeBinary); v != "" {
		c.OfficeBinary = v
	}
	if n, ok := positiveInt64(os.Getenv(EnvWorkers)); ok {
		c.Workers = int(n)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
}

// normalize resets out-of-range values read from a file.
func (c *Config) normalize() {
	d := Default()
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = d.MaxFileSizeBytes
	}
	if c.PDFBackend != BackendFitz && c.PDFBackend != BackendText {
		c.PDFBackend = d.PDFBackend
	}
	if c.SplitThreshold2 <= 0 {
		c.SplitThreshold2 = d.SplitThreshold2
	}
	if c.SplitThreshold4 <= 0 {
		c.SplitThreshold4 = d.SplitThreshold4
	}
	if c.PartTimeout <= 0 {
		c.PartTimeout = d.PartTimeout
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
}

func positiveInt64(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
