package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mimir    MimirConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL string
}

type MimirConfig struct {
	URL           string
	OrgHeader     string
	OrgID         string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

type SyncConfig struct {
	PlantInterval     time.Duration
	TelemetryInterval time.Duration
	AlertInterval     time.Duration

	VendorWindow int
	PlantWindow  int

	// Working window, local time. Pipelines are not started outside
	// [WorkStartHour, WorkEndHour); checked once per tick, not mid-run.
	WorkStartHour int
	WorkEndHour   int
	Timezone      string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("SOLARSYNC")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("mimir.orgheader", "X-Scope-OrgID")
	viper.SetDefault("mimir.orgid", "solarsync")
	viper.SetDefault("mimir.batchsize", 1000)
	viper.SetDefault("mimir.flushinterval", "10s")
	viper.SetDefault("sync.plantinterval", "15m")
	viper.SetDefault("sync.telemetryinterval", "15m")
	viper.SetDefault("sync.alertinterval", "30m")
	viper.SetDefault("sync.vendorwindow", 10)
	viper.SetDefault("sync.plantwindow", 20)
	viper.SetDefault("sync.workstarthour", 6)
	viper.SetDefault("sync.workendhour", 22)
	viper.SetDefault("sync.timezone", "Asia/Kolkata")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	return &cfg, nil
}

// Location resolves the configured sync timezone, falling back to UTC.
func (c *SyncConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InWorkingWindow reports whether t falls inside the configured local
// working hours. A zero-width window means always on.
func (c *SyncConfig) InWorkingWindow(t time.Time) bool {
	if c.WorkStartHour == c.WorkEndHour {
		return true
	}
	h := t.In(c.Location()).Hour()
	return h >= c.WorkStartHour && h < c.WorkEndHour
}
