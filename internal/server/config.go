package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/dualtrack/internal/gps"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

// Config holds all tracker configuration.
type Config struct {
	mu sync.RWMutex

	// Sensors
	GPS     GPSConfig     `yaml:"gps" json:"gps"`
	Compass CompassConfig `yaml:"compass" json:"compass"`

	// Dead reckoning
	Tracking TrackingConfig `yaml:"tracking" json:"tracking"`

	// Durable state (heading offset)
	Store StoreConfig `yaml:"store" json:"store"`

	// Per-session CSV recording
	Recording RecordingConfig `yaml:"recording" json:"recording"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type GPSConfig struct {
	Type     string  `yaml:"type" json:"type" validate:"oneof=nmea demo disabled"`
	PortPath string  `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyGPS
	BaudRate int     `yaml:"baud_rate" json:"baudRate" validate:"gte=0"`
	PollMs   int     `yaml:"poll_ms" json:"pollMs" validate:"gt=0"`
	UERE     float64 `yaml:"uere_m" json:"uereM" validate:"gt=0"` // accuracy = HDOP × UERE
}

type CompassConfig struct {
	Type          string `yaml:"type" json:"type" validate:"oneof=nmea demo disabled"`
	PortPath      string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyCompass
	BaudRate      int    `yaml:"baud_rate" json:"baudRate" validate:"gte=0"`
	QualityWindow int    `yaml:"quality_window" json:"qualityWindow" validate:"gte=3"`
}

type TrackingConfig struct {
	FallbackSpeedMS float64 `yaml:"fallback_speed_mps" json:"fallbackSpeedMps" validate:"gt=0"`
	AccuracyGateM   float64 `yaml:"accuracy_gate_m" json:"accuracyGateM" validate:"gte=0"` // 0 disables
	FixTimeoutMs    int     `yaml:"fix_timeout_ms" json:"fixTimeoutMs" validate:"gt=0"`
	SeedTimeoutMs   int     `yaml:"seed_timeout_ms" json:"seedTimeoutMs" validate:"gte=0"`
}

type StoreConfig struct {
	Type      string `yaml:"type" json:"type" validate:"oneof=file redis memory"`
	Path      string `yaml:"path" json:"path" validate:"required_if=Type file"`
	RedisAddr string `yaml:"redis_addr" json:"redisAddr" validate:"required_if=Type redis"`
	RedisDB   int    `yaml:"redis_db" json:"redisDb" validate:"gte=0"`
	RedisPass string `yaml:"-" json:"-"` // REDIS_PASSWORD only
	KeyPrefix string `yaml:"key_prefix" json:"keyPrefix"`
}

type RecordingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"max_rows" json:"maxRows" validate:"gte=0"`
}

type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr" json:"listenAddr" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowedOrigins"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GPS: GPSConfig{
			Type:     "demo",
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
			PollMs:   1000,
			UERE:     gps.DefaultUERE,
		},
		Compass: CompassConfig{
			Type:          "demo",
			PortPath:      "/dev/ttyCompass",
			BaudRate:      4800,
			QualityWindow: 50,
		},
		Tracking: TrackingConfig{
			FallbackSpeedMS: tracker.DefaultFallbackSpeedMS,
			AccuracyGateM:   0, // disabled; 500 is the usual opt-in
			FixTimeoutMs:    15000,
			SeedTimeoutMs:   15000,
		},
		Store: StoreConfig{
			Type:      "file",
			Path:      "/var/lib/dualtrack/state.yaml",
			RedisAddr: "localhost:6379",
			KeyPrefix: "dualtrack:",
		},
		Recording: RecordingConfig{
			Enabled: false,
			Path:    "/var/log/dualtrack",
			MaxRows: 100_000,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found. The result is
// validated; an invalid config is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD.
	// Real environment takes precedence.
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if _, err := os.Stat(ep); err != nil {
			continue
		}
		if err := godotenv.Load(ep); err != nil {
			log.Printf("[config] error loading %s: %v", ep, err)
			continue
		}
		log.Printf("[config] loaded .env from %s", ep)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	for _, section := range []any{&c.GPS, &c.Compass, &c.Tracking, &c.Store, &c.Recording, &c.Server} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: GPS_TYPE, GPS_PORT, GPS_BAUD, COMPASS_TYPE, COMPASS_PORT,
// COMPASS_BAUD, FALLBACK_SPEED_MPS, ACCURACY_GATE_M, STORE_TYPE, STORE_PATH,
// REDIS_ADDR, REDIS_PASSWORD, RECORD_ENABLED, RECORD_PATH, LISTEN_ADDR
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPS_TYPE"); v != "" {
		c.GPS.Type = v
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.GPS.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPS.BaudRate = n
		}
	}
	if v := os.Getenv("COMPASS_TYPE"); v != "" {
		c.Compass.Type = v
	}
	if v := os.Getenv("COMPASS_PORT"); v != "" {
		c.Compass.PortPath = v
	}
	if v := os.Getenv("COMPASS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compass.BaudRate = n
		}
	}
	if v := os.Getenv("FALLBACK_SPEED_MPS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracking.FallbackSpeedMS = n
		}
	}
	if v := os.Getenv("ACCURACY_GATE_M"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracking.AccuracyGateM = n
		}
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.RedisPass = v
	}
	if v := os.Getenv("RECORD_ENABLED"); v != "" {
		c.Recording.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("RECORD_PATH"); v != "" {
		c.Recording.Path = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// TrackerOptions builds tracker options from the tracking section.
func (c *Config) TrackerOptions() tracker.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts := tracker.DefaultOptions()
	opts.FallbackSpeedMS = c.Tracking.FallbackSpeedMS
	opts.AccuracyGateM = c.Tracking.AccuracyGateM
	opts.Position.Timeout = time.Duration(c.Tracking.FixTimeoutMs) * time.Millisecond
	opts.SeedTimeout = time.Duration(c.Tracking.SeedTimeoutMs) * time.Millisecond
	return opts
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/dualtrack/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved. The merged result must validate.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	next := DefaultConfig()
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("unmarshal merged config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	c.GPS, c.Compass, c.Tracking = next.GPS, next.Compass, next.Tracking
	c.Store, c.Recording, c.Server = next.Store, next.Recording, next.Server
	return nil
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
