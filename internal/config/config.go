package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Image     Image
	Assets    Assets
	Cache     Cache
	Remote    Remote
	Transform Transform
}

type Server struct {
	Address         string
	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration
	StatsInterval   time.Duration
}

type Image struct {
	Path           string
	CacheControl   string
	Headers        map[string]string
	RequirePersist bool
	Coalesce       bool
}

type Assets struct {
	Root        string
	Discover    bool
	SearchPaths []string
	Marker      string
}

type Cache struct {
	Dir           string
	ClearOnStart  bool
	MemoryEntries int
}

type Remote struct {
	Timeout      time.Duration
	MaxBytes     int64
	AllowedHosts []string
	HostInterval time.Duration
}

type Transform struct {
	Engine string
}

func SetDefaults() {
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.stats_interval", "0s")

	viper.SetDefault("image.path", "/image")
	viper.SetDefault("image.cache_control", "public, max-age=31536000, immutable")
	viper.SetDefault("image.headers", map[string]string{})
	viper.SetDefault("image.require_persist", false)
	viper.SetDefault("image.coalesce", false)

	viper.SetDefault("assets.root", "./public")
	viper.SetDefault("assets.discover", false)
	viper.SetDefault("assets.search_paths", []string{"."})
	viper.SetDefault("assets.marker", "")

	viper.SetDefault("cache.dir", "./.cache/images")
	viper.SetDefault("cache.clear_on_start", false)
	viper.SetDefault("cache.memory_entries", 0)

	viper.SetDefault("remote.timeout", "10s")
	viper.SetDefault("remote.max_bytes", 20<<20)
	viper.SetDefault("remote.allowed_hosts", []string{})
	viper.SetDefault("remote.host_interval", "0s")

	viper.SetDefault("transform.engine", "imaging")
}

// Load reads config.toml from the working directory, applies PIXCACHE_ environment overrides and
// returns the resulting configuration. A missing config file is not an error.
func Load() (*Config, error) {
	SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("pixcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	log.Info().Msg("reading config file...")
	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		log.Info().Msg("no config file found, using defaults")
	}

	return FromViper()
}

// FromViper builds a Config from the values currently held by viper.
func FromViper() (*Config, error) {
	shutdown, err := parseDuration("server.shutdown_timeout")
	if err != nil {
		return nil, err
	}

	statsInterval, err := parseDuration("server.stats_interval")
	if err != nil {
		return nil, err
	}

	timeout, err := parseDuration("remote.timeout")
	if err != nil {
		return nil, err
	}

	hostInterval, err := parseDuration("remote.host_interval")
	if err != nil {
		return nil, err
	}

	memoryEntries := viper.GetInt("cache.memory_entries")
	if memoryEntries < 0 {
		return nil, fmt.Errorf("cache.memory_entries must not be negative: %d", memoryEntries)
	}

	engine := strings.ToLower(viper.GetString("transform.engine"))
	if engine != "imaging" && engine != "magick" {
		return nil, fmt.Errorf("unknown transform engine %q", engine)
	}

	path := viper.GetString("image.path")
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("image path must start with a slash: %q", path)
	}

	return &Config{
		Server: Server{
			Address:         viper.GetString("server.address"),
			LogLevel:        parseLogLevel(viper.GetString("server.log_level")),
			ShutdownTimeout: shutdown,
			StatsInterval:   statsInterval,
		},
		Image: Image{
			Path:           path,
			CacheControl:   viper.GetString("image.cache_control"),
			Headers:        viper.GetStringMapString("image.headers"),
			RequirePersist: viper.GetBool("image.require_persist"),
			Coalesce:       viper.GetBool("image.coalesce"),
		},
		Assets: Assets{
			Root:        viper.GetString("assets.root"),
			Discover:    viper.GetBool("assets.discover"),
			SearchPaths: viper.GetStringSlice("assets.search_paths"),
			Marker:      viper.GetString("assets.marker"),
		},
		Cache: Cache{
			Dir:           viper.GetString("cache.dir"),
			ClearOnStart:  viper.GetBool("cache.clear_on_start"),
			MemoryEntries: memoryEntries,
		},
		Remote: Remote{
			Timeout:      timeout,
			MaxBytes:     viper.GetInt64("remote.max_bytes"),
			AllowedHosts: viper.GetStringSlice("remote.allowed_hosts"),
			HostInterval: hostInterval,
		},
		Transform: Transform{
			Engine: engine,
		},
	}, nil
}

func parseDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s in config: %w", key, err)
	}
	return d, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
