package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable of the agent.
type Config struct {
	Engine  EngineConfig  `koanf:"engine"`
	Gateway GatewayConfig `koanf:"gateway"`
	Storage StorageConfig `koanf:"storage"`
	Status  StatusConfig  `koanf:"status"`
	Lock    LockConfig    `koanf:"lock"`
	Bus     BusConfig     `koanf:"bus"`
	Logging LoggingConfig `koanf:"logging"`
}

// EngineConfig holds the detection thresholds and dwell times.
type EngineConfig struct {
	AlertThreshold   time.Duration `koanf:"alert_threshold"`
	GazeThreshold    time.Duration `koanf:"gaze_threshold"`
	SOSHoldTime      time.Duration `koanf:"sos_hold_time"`
	DeviceAreaRatio  float64       `koanf:"device_area_ratio"`
	PersonConfidence float64       `koanf:"person_confidence"`
	DeviceConfidence float64       `koanf:"device_confidence"`
	PersonClass      int           `koanf:"person_class"`
	DeviceClass      int           `koanf:"device_class"`
	FrameWidth       int           `koanf:"frame_width"`
	FrameHeight      int           `koanf:"frame_height"`
	StreamQuality    int           `koanf:"stream_quality"`
	PrivacyBlur      float64       `koanf:"privacy_blur"` // blur sigma for person boxes on streamed frames, 0 disables
}

type GatewayConfig struct {
	URL              string        `koanf:"url"`
	AlertTimeout     time.Duration `koanf:"alert_timeout"`
	LockTimeout      time.Duration `koanf:"lock_timeout"`
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"`
	StreamTimeout    time.Duration `koanf:"stream_timeout"`
	StreamEnabled    bool          `koanf:"stream_enabled"`
	Breaker          BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the gateway circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	OpenTimeout         time.Duration `koanf:"open_timeout"`
	HalfOpenRequests    uint32        `koanf:"half_open_requests"`
}

type StorageConfig struct {
	AuditLog    string `koanf:"audit_log"`
	EvidenceDir string `koanf:"evidence_dir"`
}

type StatusConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Addr        string   `koanf:"addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type LockConfig struct {
	Enabled bool          `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
}

// BusConfig enables the optional NATS alert publisher. Empty URL disables it.
type BusConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			AlertThreshold:   5 * time.Second,
			GazeThreshold:    3 * time.Second,
			SOSHoldTime:      2 * time.Second,
			DeviceAreaRatio:  0.10,
			PersonConfidence: 0.45,
			DeviceConfidence: 0.35,
			PersonClass:      0,
			DeviceClass:      67,
			FrameWidth:       640,
			FrameHeight:      480,
			StreamQuality:    50,
			PrivacyBlur:      30,
		},
		Gateway: GatewayConfig{
			URL:              "http://localhost:5000/api/v1",
			AlertTimeout:     800 * time.Millisecond,
			LockTimeout:      500 * time.Millisecond,
			HeartbeatTimeout: 50 * time.Millisecond,
			StreamTimeout:    50 * time.Millisecond,
			StreamEnabled:    true,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         10 * time.Second,
				HalfOpenRequests:    1,
			},
		},
		Storage: StorageConfig{
			AuditLog:    "sovereign_breach_report.csv",
			EvidenceDir: "breach_snapshots",
		},
		Status: StatusConfig{
			Enabled:     true,
			Addr:        "127.0.0.1:5001",
			CORSOrigins: []string{"*"},
		},
		Lock: LockConfig{
			Enabled: true,
			Timeout: 2 * time.Second,
		},
		Bus: BusConfig{
			Subject: "xguard.alerts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Path returns $XGUARD_CONFIG, else ~/.config/xguard/config.yaml (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	if p := os.Getenv("XGUARD_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "xguard", "config.yaml")
}

// Load reads the config from Path(). A missing file is not an error.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile layers defaults, the YAML file at path (if it exists), a .env
// file in the working directory and XGUARD_* environment variables.
func LoadFile(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := k.Load(env.Provider("XGUARD_", ".", envTransformFunc), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envMappings = map[string]string{
	"alert_threshold":   "engine.alert_threshold",
	"gaze_threshold":    "engine.gaze_threshold",
	"sos_hold_time":     "engine.sos_hold_time",
	"device_area_ratio": "engine.device_area_ratio",
	"person_confidence": "engine.person_confidence",
	"device_confidence": "engine.device_confidence",
	"frame_width":       "engine.frame_width",
	"frame_height":      "engine.frame_height",
	"stream_quality":    "engine.stream_quality",
	"privacy_blur":      "engine.privacy_blur",
	"gateway_url":       "gateway.url",
	"alert_timeout":     "gateway.alert_timeout",
	"lock_timeout":      "gateway.lock_timeout",
	"heartbeat_timeout": "gateway.heartbeat_timeout",
	"stream_timeout":    "gateway.stream_timeout",
	"stream_enabled":    "gateway.stream_enabled",
	"breaker_enabled":   "gateway.breaker.enabled",
	"audit_log":         "storage.audit_log",
	"evidence_dir":      "storage.evidence_dir",
	"status_enabled":    "status.enabled",
	"status_addr":       "status.addr",
	"lock_enabled":      "lock.enabled",
	"nats_url":          "bus.url",
	"nats_subject":      "bus.subject",
	"log_level":         "logging.level",
	"log_format":        "logging.format",
}

// envTransformFunc maps XGUARD_GATEWAY_URL style names to config keys.
// Unknown variables (including XGUARD_CONFIG) are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "XGUARD_"))
	return envMappings[key]
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"engine.alert_threshold":    c.Engine.AlertThreshold,
		"engine.gaze_threshold":     c.Engine.GazeThreshold,
		"engine.sos_hold_time":      c.Engine.SOSHoldTime,
		"gateway.alert_timeout":     c.Gateway.AlertTimeout,
		"gateway.lock_timeout":      c.Gateway.LockTimeout,
		"gateway.heartbeat_timeout": c.Gateway.HeartbeatTimeout,
		"gateway.stream_timeout":    c.Gateway.StreamTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	for name, r := range map[string]float64{
		"engine.device_area_ratio": c.Engine.DeviceAreaRatio,
		"engine.person_confidence": c.Engine.PersonConfidence,
		"engine.device_confidence": c.Engine.DeviceConfidence,
	} {
		if r <= 0 || r > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0,1], got %g", name, r))
		}
	}
	if c.Engine.FrameWidth <= 0 || c.Engine.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %dx%d", c.Engine.FrameWidth, c.Engine.FrameHeight))
	}
	if c.Engine.PrivacyBlur < 0 {
		errs = append(errs, fmt.Errorf("engine.privacy_blur must be >= 0, got %v", c.Engine.PrivacyBlur))
	}
	if c.Engine.StreamQuality < 1 || c.Engine.StreamQuality > 100 {
		errs = append(errs, fmt.Errorf("engine.stream_quality must be in [1,100], got %d", c.Engine.StreamQuality))
	}
	if c.Gateway.URL == "" {
		errs = append(errs, errors.New("gateway.url is required"))
	}
	if c.Storage.AuditLog == "" {
		errs = append(errs, errors.New("storage.audit_log is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to disk as YAML.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveFile(cfg, path)
}

// SaveFile writes cfg as YAML to path.
func SaveFile(cfg Config, path string) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return err
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
