package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMinDimension    = 500
	defaultDisplaySize     = 500
	defaultEncodeFormat    = "png"
	defaultEncodeQuality   = 80
	defaultConnectTimeout  = 5 * time.Second
	defaultRetryInterval   = 30 * time.Second
	defaultWorkers         = 4
	defaultTransport       = "file"
	defaultCompanionDir    = "/tmp/nowplaying"
	defaultSlotPath        = "/albumart"
	defaultAmbientSlotPath = "/albumart/ambient"
	defaultFieldName       = "albumArt"
	defaultMetadataURL     = "https://api.spotify.com"
	defaultTokenURL        = "https://accounts.spotify.com/api/token"
	defaultLogLevel        = "info"
)

// AppConfig holds application configuration
type AppConfig struct {
	// MinDimension is the smallest art height accepted before falling back
	MinDimension int `yaml:"min_dimension"`
	// DisplaySize is the companion display edge in pixels, 0 probes the local display
	DisplaySize int `yaml:"display_size"`

	EncodeFormat      string `yaml:"encode_format"`
	EncodeQuality     int    `yaml:"encode_quality"`
	DeleteBeforeWrite bool   `yaml:"delete_before_write"`
	AmbientEnabled    bool   `yaml:"ambient_enabled"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	Workers        int           `yaml:"workers"`

	// Transport is one of "file", "websocket" or "memory"
	Transport       string `yaml:"transport"`
	CompanionDir    string `yaml:"companion_dir"`
	CompanionURL    string `yaml:"companion_url"`
	HookCommand     string `yaml:"hook_command"`
	SlotPath        string `yaml:"slot_path"`
	AmbientSlotPath string `yaml:"ambient_slot_path"`
	FieldName       string `yaml:"field_name"`

	MetadataURL         string `yaml:"metadata_url"`
	SpotifyClientID     string `yaml:"spotify_client_id"`
	SpotifyClientSecret string `yaml:"spotify_client_secret"`
	SpotifyTokenURL     string `yaml:"spotify_token_url"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is overridden
func Default() *AppConfig {
	return &AppConfig{
		MinDimension:      defaultMinDimension,
		DisplaySize:       defaultDisplaySize,
		EncodeFormat:      defaultEncodeFormat,
		EncodeQuality:     defaultEncodeQuality,
		DeleteBeforeWrite: true,
		AmbientEnabled:    true,
		ConnectTimeout:    defaultConnectTimeout,
		RetryInterval:     defaultRetryInterval,
		Workers:           defaultWorkers,
		Transport:         defaultTransport,
		CompanionDir:      defaultCompanionDir,
		SlotPath:          defaultSlotPath,
		AmbientSlotPath:   defaultAmbientSlotPath,
		FieldName:         defaultFieldName,
		MetadataURL:       defaultMetadataURL,
		SpotifyTokenURL:   defaultTokenURL,
		LogLevel:          defaultLogLevel,
	}
}

// NewAppConfig creates a new application configuration instance.
// Precedence: defaults, then the YAML file named by NOWPLAYING_CONFIG, then NOWPLAYING_* variables.
func NewAppConfig() (*AppConfig, error) {
	cfg := Default()

	if path := os.Getenv("NOWPLAYING_CONFIG"); path != "" {
		if err := cfg.loadFile(expandPath(path)); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.CompanionDir = expandPath(cfg.CompanionDir)
	cfg.HookCommand = strings.TrimSpace(cfg.HookCommand)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// applyEnv overrides fields from the environment
func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"NOWPLAYING_ENCODE_FORMAT":         &c.EncodeFormat,
		"NOWPLAYING_TRANSPORT":             &c.Transport,
		"NOWPLAYING_COMPANION_DIR":         &c.CompanionDir,
		"NOWPLAYING_COMPANION_URL":         &c.CompanionURL,
		"NOWPLAYING_HOOK_COMMAND":          &c.HookCommand,
		"NOWPLAYING_SLOT_PATH":             &c.SlotPath,
		"NOWPLAYING_AMBIENT_SLOT_PATH":     &c.AmbientSlotPath,
		"NOWPLAYING_FIELD_NAME":            &c.FieldName,
		"NOWPLAYING_METADATA_URL":          &c.MetadataURL,
		"NOWPLAYING_SPOTIFY_CLIENT_ID":     &c.SpotifyClientID,
		"NOWPLAYING_SPOTIFY_CLIENT_SECRET": &c.SpotifyClientSecret,
		"NOWPLAYING_SPOTIFY_TOKEN_URL":     &c.SpotifyTokenURL,
		"NOWPLAYING_LOG_LEVEL":             &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NOWPLAYING_MIN_DIMENSION":  &c.MinDimension,
		"NOWPLAYING_DISPLAY_SIZE":   &c.DisplaySize,
		"NOWPLAYING_ENCODE_QUALITY": &c.EncodeQuality,
		"NOWPLAYING_WORKERS":        &c.Workers,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"NOWPLAYING_DELETE_BEFORE_WRITE": &c.DeleteBeforeWrite,
		"NOWPLAYING_AMBIENT_ENABLED":     &c.AmbientEnabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"NOWPLAYING_CONNECT_TIMEOUT": &c.ConnectTimeout,
		"NOWPLAYING_RETRY_INTERVAL":  &c.RetryInterval,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	return nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *AppConfig) Validate() error {
	if c.MinDimension <= 0 {
		return fmt.Errorf("min_dimension must be positive, got %d", c.MinDimension)
	}
	if c.DisplaySize < 0 {
		return fmt.Errorf("display_size must not be negative, got %d", c.DisplaySize)
	}
	switch c.EncodeFormat {
	case "png", "jpeg":
	default:
		return fmt.Errorf("unsupported encode_format %q", c.EncodeFormat)
	}
	if c.EncodeQuality < 1 || c.EncodeQuality > 100 {
		return fmt.Errorf("encode_quality must be within 1-100, got %d", c.EncodeQuality)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch c.Transport {
	case "file":
		if c.CompanionDir == "" {
			return fmt.Errorf("companion_dir is required for the file transport")
		}
	case "websocket":
		if !strings.HasPrefix(c.CompanionURL, "ws://") && !strings.HasPrefix(c.CompanionURL, "wss://") {
			return fmt.Errorf("companion_url must be a ws:// or wss:// url, got %q", c.CompanionURL)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported transport %q", c.Transport)
	}
	if !strings.HasPrefix(c.SlotPath, "/") || !strings.HasPrefix(c.AmbientSlotPath, "/") {
		return fmt.Errorf("slot paths must be absolute")
	}
	if c.SlotPath == c.AmbientSlotPath {
		return fmt.Errorf("slot_path and ambient_slot_path must differ")
	}
	if c.FieldName == "" {
		return fmt.Errorf("field_name must not be empty")
	}
	if c.SpotifyClientID != "" && c.SpotifyClientSecret == "" {
		return fmt.Errorf("spotify_client_secret is required when spotify_client_id is set")
	}
	return nil
}

// expandPath expands environment variables and a leading ~
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
