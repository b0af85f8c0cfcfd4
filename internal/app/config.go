package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/consoleblue/consoleblue/internal/cache"
)

// Config represents the runtime configuration for the ConsoleBlue backend.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Github   GithubConfig   `mapstructure:"github"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// GithubConfig holds origin API access settings.
type GithubConfig struct {
	Token             string  `mapstructure:"token"`
	Owner             string  `mapstructure:"owner"`
	BaseURL           string  `mapstructure:"base_url"`
	RoutesFile        string  `mapstructure:"routes_file"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// SyncConfig controls the background synchronizer.
type SyncConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Warmup   time.Duration `mapstructure:"warmup"`
	Interval time.Duration `mapstructure:"interval"`
}

// CacheConfig carries per-endpoint TTL overrides; zero values keep the
// built-in defaults.
type CacheConfig struct {
	ReposTTL   time.Duration `mapstructure:"repos_ttl"`
	TreeTTL    time.Duration `mapstructure:"tree_ttl"`
	FileTTL    time.Duration `mapstructure:"file_ttl"`
	CommitsTTL time.Duration `mapstructure:"commits_ttl"`
	RoutesTTL  time.Duration `mapstructure:"routes_ttl"`
	SearchTTL  time.Duration `mapstructure:"search_ttl"`
}

// Policy converts the TTL overrides into a cache policy.
func (c CacheConfig) Policy() cache.Policy {
	return cache.NewPolicy(map[cache.Endpoint]time.Duration{
		cache.EndpointRepos:   c.ReposTTL,
		cache.EndpointTree:    c.TreeTTL,
		cache.EndpointFile:    c.FileTTL,
		cache.EndpointCommits: c.CommitsTTL,
		cache.EndpointRoutes:  c.RoutesTTL,
		cache.EndpointSearch:  c.SearchTTL,
	})
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CONSOLEBLUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit", 100)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/consoleblue.sqlite")

	v.SetDefault("github.routes_file", "server/routes.ts")
	v.SetDefault("github.requests_per_second", 5)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.warmup", "10s")
	v.SetDefault("sync.interval", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
