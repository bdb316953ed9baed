package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// MODELROUTER_LISTEN_ADDR.
const EnvPrefix = "MODELROUTER"

const (
	keyListenAddr     = "listen_addr"
	keyDBPath         = "db_path"
	keyLogLevel       = "log_level"
	keyRedisURL       = "redis_url"
	keyJobRetention   = "job_retention"
	keyMaxConcurrent  = "max_concurrent_jobs"
	keySubmitRate     = "submit_rate"
	keySubmitBurst    = "submit_burst"
	keyProbeTimeout   = "probe_timeout"
	keyDatasetSamples = "dataset_samples"
	keyDatasetSeed    = "dataset_seed"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "modelrouter.db"
	defaultJobRetention   = time.Hour
	defaultMaxConcurrent  = 2
	defaultSubmitBurst    = 1
	defaultProbeTimeout   = 5 * time.Second
	defaultDatasetSamples = 2000
	defaultDatasetSeed    = 42
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	// RedisURL selects the Redis job table; empty keeps jobs in memory.
	RedisURL          string
	JobRetention      time.Duration
	MaxConcurrentJobs int
	SubmitRate        float64
	SubmitBurst       int
	ProbeTimeout      time.Duration
	DatasetSamples    int
	DatasetSeed       uint64
}

// Load reads configuration from defaults, then the YAML file at path (if
// path is non-empty), then MODELROUTER_* environment variables. Durations
// and counts that fail to parse or are not positive fall back to their
// defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		ListenAddr:        v.GetString(keyListenAddr),
		DBPath:            v.GetString(keyDBPath),
		LogLevel:          parseLogLevel(v.GetString(keyLogLevel)),
		RedisURL:          v.GetString(keyRedisURL),
		JobRetention:      duration(v, keyJobRetention, defaultJobRetention),
		MaxConcurrentJobs: positive(v.GetInt(keyMaxConcurrent), defaultMaxConcurrent),
		SubmitRate:        max(v.GetFloat64(keySubmitRate), 0),
		SubmitBurst:       positive(v.GetInt(keySubmitBurst), defaultSubmitBurst),
		ProbeTimeout:      duration(v, keyProbeTimeout, defaultProbeTimeout),
		DatasetSamples:    positive(v.GetInt(keyDatasetSamples), defaultDatasetSamples),
		DatasetSeed:       v.GetUint64(keyDatasetSeed),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyListenAddr, defaultListenAddr)
	v.SetDefault(keyDBPath, defaultDBPath)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyRedisURL, "")
	v.SetDefault(keyJobRetention, defaultJobRetention.String())
	v.SetDefault(keyMaxConcurrent, defaultMaxConcurrent)
	v.SetDefault(keySubmitRate, 0)
	v.SetDefault(keySubmitBurst, defaultSubmitBurst)
	v.SetDefault(keyProbeTimeout, defaultProbeTimeout.String())
	v.SetDefault(keyDatasetSamples, defaultDatasetSamples)
	v.SetDefault(keyDatasetSeed, defaultDatasetSeed)
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
