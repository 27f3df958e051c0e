// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	OpenData OpenDataConfig `yaml:"opendata" mapstructure:"opendata"`
	Weather  WeatherConfig  `yaml:"weather" mapstructure:"weather"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	Train    TrainConfig    `yaml:"train" mapstructure:"train"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run/prediction store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// OpenDataConfig configures the opendata.paris.fr counter feed client.
type OpenDataConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Dataset     string  `yaml:"dataset" mapstructure:"dataset"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// WeatherConfig configures the Open-Meteo archive client.
type WeatherConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// FeaturesConfig selects the preprocessing policy variants.
type FeaturesConfig struct {
	SeasonPolicy   string `yaml:"season_policy" mapstructure:"season_policy"`       // calendar_month or solstice
	RushHourPolicy string `yaml:"rush_hour_policy" mapstructure:"rush_hour_policy"` // inclusive or exclusive
	NightPolicy    string `yaml:"night_policy" mapstructure:"night_policy"`         // fixed or seasonal
	MissingPolicy  string `yaml:"missing_policy" mapstructure:"missing_policy"`     // drop or median_fill
	HolidaysFile   string `yaml:"holidays_file" mapstructure:"holidays_file"`       // optional YAML interval list
}

// TrainConfig holds regressor hyperparameters and split settings.
type TrainConfig struct {
	TestRatio     float64 `yaml:"test_ratio" mapstructure:"test_ratio"`
	NEstimators   int     `yaml:"n_estimators" mapstructure:"n_estimators"`
	LearningRate  float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	MaxDepth      int     `yaml:"max_depth" mapstructure:"max_depth"`
	MinLeaf       int     `yaml:"min_leaf" mapstructure:"min_leaf"`
	Subsample     float64 `yaml:"subsample" mapstructure:"subsample"`
	ColsampleTree float64 `yaml:"colsample_bytree" mapstructure:"colsample_bytree"`
	Seed          int64   `yaml:"seed" mapstructure:"seed"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VELOCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "velocast.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("opendata.base_url", "https://opendata.paris.fr/api/explore/v2.1")
	v.SetDefault("opendata.dataset", "comptage-velo-donnees-compteurs")
	v.SetDefault("opendata.page_size", 100)
	v.SetDefault("opendata.timeout_secs", 30)
	v.SetDefault("opendata.rate_per_sec", 5)
	v.SetDefault("weather.base_url", "https://archive-api.open-meteo.com/v1")
	v.SetDefault("weather.timeout_secs", 15)
	v.SetDefault("weather.max_retries", 3)
	v.SetDefault("features.season_policy", "solstice")
	v.SetDefault("features.rush_hour_policy", "exclusive")
	v.SetDefault("features.night_policy", "seasonal")
	v.SetDefault("features.missing_policy", "drop")
	v.SetDefault("train.test_ratio", 0.10)
	v.SetDefault("train.n_estimators", 300)
	v.SetDefault("train.learning_rate", 0.05)
	v.SetDefault("train.max_depth", 6)
	v.SetDefault("train.min_leaf", 20)
	v.SetDefault("train.subsample", 0.8)
	v.SetDefault("train.colsample_bytree", 0.8)
	v.SetDefault("train.seed", 42)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
