package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/amoylab/castwall/pkg/helper"

	"github.com/ifuryst/lol"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// CastwallConfig is the root configuration of the broadcast hub
	CastwallConfig struct {
		Port       int              `yaml:"port"`
		PID        string           `yaml:"pid"`
		Logger     LoggerConfig     `yaml:"logger"`
		Session    SessionConfig    `yaml:"session"`
		Registry   RegistryConfig   `yaml:"registry"`
		Compositor CompositorConfig `yaml:"compositor"`
		Broadcast  BroadcastConfig  `yaml:"broadcast"`
		Capture    CaptureConfig    `yaml:"capture"`
		Notifier   NotifierConfig   `yaml:"notifier"`
		Audit      AuditConfig      `yaml:"audit"`
		Metrics    MetricsConfig    `yaml:"metrics"`
		Tracing    TracingConfig    `yaml:"tracing"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// SessionConfig controls the session cookie that carries client identity
	SessionConfig struct {
		CookieName string        `yaml:"cookie_name"`
		SecretKey  string        `yaml:"secret_key"` // HS256 key, at least 32 characters; generated when empty
		MaxAge     time.Duration `yaml:"max_age"`
		Secure     bool          `yaml:"secure"`
	}

	// RegistryConfig controls client bookkeeping and per-client queues
	RegistryConfig struct {
		ClientTimeout time.Duration `yaml:"client_timeout"` // idle time after which a client is reaped
		ReapInterval  time.Duration `yaml:"reap_interval"`
		QueueCapacity int           `yaml:"queue_capacity"`
		ReadTimeout   time.Duration `yaml:"read_timeout"` // blocking read timeout of continuous streams
		MaxWindows    int           `yaml:"max_windows"`
		FirstClientID int64         `yaml:"first_client_id"`
	}

	// CompositorConfig controls the tiled view
	CompositorConfig struct {
		TileWidth   int `yaml:"tile_width"`
		TileHeight  int `yaml:"tile_height"`
		MaxWidth    int `yaml:"max_width"`
		JPEGQuality int `yaml:"jpeg_quality"`
	}

	// BroadcastConfig controls the producer loop cadence
	BroadcastConfig struct {
		MinInterval  time.Duration `yaml:"min_interval"`  // 0 means no pause between ticks
		IdleInterval time.Duration `yaml:"idle_interval"` // pause between ticks while nobody is watching
	}

	// CaptureConfig selects and configures the capture source
	CaptureConfig struct {
		Type         string                 `yaml:"type"` // synthetic, directory, command
		Timeout      time.Duration          `yaml:"timeout"`
		Placeholders []string               `yaml:"placeholders"` // app names shown while no window is usable
		Trim         TrimConfig             `yaml:"trim"`
		Synthetic    SyntheticCaptureConfig `yaml:"synthetic"`
		Directory    DirectoryCaptureConfig `yaml:"directory"`
		Command      CommandCaptureConfig   `yaml:"command"`
	}

	// TrimConfig controls the background crop applied to captured windows
	TrimConfig struct {
		Enabled       bool    `yaml:"enabled"`
		Threshold     uint8   `yaml:"threshold"`      // luminance separating content from background
		MinBrightness float64 `yaml:"min_brightness"` // mean luminance below which a window is dropped
		Margin        int     `yaml:"margin"`
		MinRegion     int     `yaml:"min_region"` // bright region must be wider and taller than this
	}

	SyntheticCaptureConfig struct {
		Windows int `yaml:"windows"`
		Width   int `yaml:"width"`
		Height  int `yaml:"height"`
	}

	DirectoryCaptureConfig struct {
		Path       string   `yaml:"path"`
		Extensions []string `yaml:"extensions"`
	}

	CommandCaptureConfig struct {
		Commands []CaptureCommand `yaml:"commands"`
	}

	// CaptureCommand runs an external tool that writes one encoded image to stdout
	CaptureCommand struct {
		Name string   `yaml:"name"`
		App  string   `yaml:"app"`
		Args []string `yaml:"args"`
	}

	// AuditConfig controls the client lifecycle history store
	AuditConfig struct {
		Enabled      bool           `yaml:"enabled"`
		HistoryLimit int            `yaml:"history_limit"` // max records returned by one history query
		Retain       int            `yaml:"retain"`        // records kept after each reap sweep
		Database     DatabaseConfig `yaml:"database"`
	}

	// MetricsConfig controls the prometheus endpoint
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Path      string    `yaml:"path"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`
		Headers     map[string]string `yaml:"headers"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*CastwallConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("%s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// Parse decodes, defaults and validates a configuration document
func Parse(data []byte) (*CastwallConfig, error) {
	var cfg CastwallConfig
	if err := yaml.Unmarshal(resolveEnv(data), &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset field with its default
func (c *CastwallConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 5000
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "castwall_session"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 31 * 24 * time.Hour
	}

	r := &c.Registry
	if r.ClientTimeout == 0 {
		r.ClientTimeout = 10 * time.Second
	}
	if r.ReapInterval == 0 {
		r.ReapInterval = 5 * time.Second
	}
	if r.QueueCapacity == 0 {
		r.QueueCapacity = 10
	}
	if r.ReadTimeout == 0 {
		r.ReadTimeout = time.Second
	}
	if r.MaxWindows == 0 {
		r.MaxWindows = 10
	}
	if r.FirstClientID == 0 {
		r.FirstClientID = 1000
	}

	cp := &c.Compositor
	if cp.TileWidth == 0 {
		cp.TileWidth = 400
	}
	if cp.TileHeight == 0 {
		cp.TileHeight = 300
	}
	if cp.MaxWidth == 0 {
		cp.MaxWidth = 1920
	}
	if cp.JPEGQuality == 0 {
		cp.JPEGQuality = 95
	}

	if c.Broadcast.IdleInterval == 0 {
		c.Broadcast.IdleInterval = 100 * time.Millisecond
	}

	cc := &c.Capture
	if cc.Type == "" {
		cc.Type = "synthetic"
	}
	if cc.Timeout == 0 {
		cc.Timeout = 5 * time.Second
	}
	cc.Placeholders = lol.UniqSlice(cc.Placeholders)
	if cc.Trim.Threshold == 0 {
		cc.Trim.Threshold = 15
	}
	if cc.Trim.MinBrightness == 0 {
		cc.Trim.MinBrightness = 5
	}
	if cc.Trim.Margin == 0 {
		cc.Trim.Margin = 5
	}
	if cc.Trim.MinRegion == 0 {
		cc.Trim.MinRegion = 50
	}
	if cc.Synthetic.Windows == 0 {
		cc.Synthetic.Windows = 2
	}
	if cc.Synthetic.Width == 0 {
		cc.Synthetic.Width = 800
	}
	if cc.Synthetic.Height == 0 {
		cc.Synthetic.Height = 600
	}
	if len(cc.Directory.Extensions) == 0 {
		cc.Directory.Extensions = []string{".png", ".jpg", ".jpeg", ".gif"}
	}
	cc.Directory.Extensions = lol.UniqSlice(cc.Directory.Extensions)

	if c.Notifier.Type == "" {
		c.Notifier.Type = "log"
	}
	if c.Notifier.BufferSize == 0 {
		c.Notifier.BufferSize = 256
	}
	if c.Notifier.Redis.Stream == "" {
		c.Notifier.Redis.Stream = "castwall:clients"
	}
	if c.Notifier.Redis.MaxLen == 0 {
		c.Notifier.Redis.MaxLen = 1000
	}

	if c.Audit.HistoryLimit == 0 {
		c.Audit.HistoryLimit = 100
	}
	if c.Audit.Retain == 0 {
		c.Audit.Retain = 10000
	}
	if c.Audit.Database.Type == "" {
		c.Audit.Database.Type = "sqlite"
	}
	if c.Audit.Database.DBName == "" && c.Audit.Database.Type == "sqlite" {
		c.Audit.Database.DBName = "data/castwall.db"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "castwall"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if len(c.Metrics.Buckets) == 0 {
		c.Metrics.Buckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "castwall"
	}
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := envPattern.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
