package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Journey JourneyConfig `mapstructure:"journey"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the content/auth origin and the session
type ServerConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`     // Session token from OTP login
	DeviceID string `mapstructure:"device_id"` // Generated once per install
}

// CacheConfig selects the offline generation and how it is served
type CacheConfig struct {
	Version         string   `mapstructure:"version"` // Generation tag; change it whenever Assets change
	Assets          []string `mapstructure:"assets"`
	Strategy        string   `mapstructure:"strategy"` // network-first, cache-first or hybrid
	NetworkPrefixes []string `mapstructure:"network_prefixes"`
	OfflineMessage  string   `mapstructure:"offline_message"`
	Dir             string   `mapstructure:"dir"`
}

// WorkerConfig holds the local interceptor settings
type WorkerConfig struct {
	Listen      string        `mapstructure:"listen"`
	SkipWaiting bool          `mapstructure:"skip_waiting"`
	Metrics     bool          `mapstructure:"metrics"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// JourneyConfig holds progress tracking settings
type JourneyConfig struct {
	Total    int    `mapstructure:"total"`    // Number of positions; 0 means unbounded
	Timezone string `mapstructure:"timezone"` // IANA name; empty uses the local zone
	DataDir  string `mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultAssets is the static shell cached by the first generation.
var DefaultAssets = []string{
	"/",
	"/static/css/style.css",
	"/static/js/app.js",
	"/static/js/voice.js",
	"/static/js/api.js",
	"/static/manifest.json",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:5000",
		},
		Cache: CacheConfig{
			Version:         "sarathi-v3",
			Assets:          append([]string(nil), DefaultAssets...),
			Strategy:        "network-first",
			NetworkPrefixes: []string{"/ask", "/api/", "/shloka/"},
			OfflineMessage:  "ऑफ़लाइन हैं",
			Dir:             filepath.Join(defaultDataPath(), "cache"),
		},
		Worker: WorkerConfig{
			Listen:      "127.0.0.1:8787",
			SkipWaiting: true,
			Metrics:     true,
			Timeout:     30 * time.Second,
		},
		Journey: JourneyConfig{
			Total:   700,
			DataDir: defaultDataPath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "sarathi")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "sarathi")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "sarathi.log")
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "sarathi")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "sarathi")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return loadConfig(viper.GetViper(), defaultConfigPath(), ".")
}

func loadConfig(v *viper.Viper, paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variable overrides, e.g. SARATHI_SERVER_URL
	v.SetEnvPrefix("SARATHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Slices decode element-wise into existing values, so defaults go
	// through viper and the struct starts empty.
	v.SetDefault("cache.assets", cfg.Cache.Assets)
	v.SetDefault("cache.network_prefixes", cfg.Cache.NetworkPrefixes)
	cfg.Cache.Assets = nil
	cfg.Cache.NetworkPrefixes = nil

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.Journey.DataDir = expandHome(cfg.Journey.DataDir)

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv sees variables for keys that
// are absent from the config file.
func bindEnv(v *viper.Viper) {
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

var configKeys = []string{
	"server.url", "server.token", "server.device_id",
	"cache.version", "cache.assets", "cache.strategy", "cache.network_prefixes", "cache.offline_message", "cache.dir",
	"worker.listen", "worker.skip_waiting", "worker.metrics", "worker.timeout",
	"journey.total", "journey.timezone", "journey.data_dir",
	"logging.file", "logging.level",
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	return saveConfig(viper.GetViper(), defaultConfigPath(), cfg)
}

func saveConfig(v *viper.Viper, dir string, cfg *Config) error {
	// Set fields individually to ensure correct key names (snake_case)
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.token", cfg.Server.Token)
	v.Set("server.device_id", cfg.Server.DeviceID)

	v.Set("cache.version", cfg.Cache.Version)
	v.Set("cache.assets", cfg.Cache.Assets)
	v.Set("cache.strategy", cfg.Cache.Strategy)
	v.Set("cache.network_prefixes", cfg.Cache.NetworkPrefixes)
	v.Set("cache.offline_message", cfg.Cache.OfflineMessage)
	v.Set("cache.dir", cfg.Cache.Dir)

	v.Set("worker.listen", cfg.Worker.Listen)
	v.Set("worker.skip_waiting", cfg.Worker.SkipWaiting)
	v.Set("worker.metrics", cfg.Worker.Metrics)
	v.Set("worker.timeout", cfg.Worker.Timeout.String())

	v.Set("journey.total", cfg.Journey.Total)
	v.Set("journey.timezone", cfg.Journey.Timezone)
	v.Set("journey.data_dir", cfg.Journey.DataDir)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	return writeConfig(v, dir)
}

func writeConfig(v *viper.Viper, dir string) error {
	// Ensure config directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveToken updates just the session token in the configuration
func SaveToken(token string) error {
	v := viper.GetViper()
	v.Set("server.token", token)
	return writeConfig(v, defaultConfigPath())
}

// ClearSession removes the session token while preserving every other setting
func ClearSession() error {
	return SaveToken("")
}

// EnsureDeviceID assigns a device id on first use and persists it.
func EnsureDeviceID(cfg *Config) (string, error) {
	return ensureDeviceID(viper.GetViper(), defaultConfigPath(), cfg)
}

func ensureDeviceID(v *viper.Viper, dir string, cfg *Config) (string, error) {
	if cfg.Server.DeviceID != "" {
		return cfg.Server.DeviceID, nil
	}
	cfg.Server.DeviceID = uuid.NewString()
	v.Set("server.device_id", cfg.Server.DeviceID)
	if err := writeConfig(v, dir); err != nil {
		return cfg.Server.DeviceID, err
	}
	return cfg.Server.DeviceID, nil
}

// IsLoggedIn returns true if a session token is stored
func (c *Config) IsLoggedIn() bool {
	return c.Server.Token != ""
}

// Location resolves the journey time zone used for calendar days.
func (c *JourneyConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid journey timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
