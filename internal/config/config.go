package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/spotterhq/spotter/internal/estimate"
	"github.com/spotterhq/spotter/internal/match"
	"github.com/spotterhq/spotter/internal/rank"
	"github.com/spotterhq/spotter/pkg/core"
)

// ConfigFileName is the file Load looks for in the config directory.
const ConfigFileName = "spotter.cfg.json"

// EngineConfig holds the resolution pipeline settings. It is read-only once built
// and shared by concurrent queries.
type EngineConfig struct {
	Windows             match.Windows
	AircraftAcceptance  float64 // degrees; stricter than the aircraft search tolerance
	HeuristicConfidence float64
	MinZoom             float64
	MaxZoom             float64
	AircraftTimeout     time.Duration
	LandmarkTimeout     time.Duration
	Estimator           estimate.Params
	Weights             rank.Weights
}

// Timeout returns the candidate fetch timeout for category c.
func (c EngineConfig) Timeout(cat core.Category) time.Duration {
	if cat.IsAircraft() {
		return c.AircraftTimeout
	}
	return c.LandmarkTimeout
}

// MemorySourceConfig holds in-memory candidate source settings
type MemorySourceConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// SQLiteSourceConfig holds offline SQLite database settings
type SQLiteSourceConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// APISourceConfig holds live candidate API settings
type APISourceConfig struct {
	ServerURL string
	APIKey    string
	Timeout   time.Duration
}

// SourceConfig selects and configures the candidate source
type SourceConfig struct {
	Type   string
	Memory MemorySourceConfig
	SQLite SQLiteSourceConfig
	API    APISourceConfig
}

// DatabaseConfig holds Postgres connection settings. SlowQuery applies to
// SQLite as well; zero disables query logging.
type DatabaseConfig struct {
	Host      string
	Port      string
	Username  string
	Password  string
	Database  string
	SSLMode   string
	SlowQuery time.Duration
}

// CacheConfig holds candidate cache settings
type CacheConfig struct {
	Enabled     bool
	TTL         time.Duration
	AircraftTTL time.Duration
}

// RateLimitConfig holds candidate source quota settings
type RateLimitConfig struct {
	Enabled    bool
	DailyLimit int
	Store      string // memory or database
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds resolution metrics sink settings
type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults registers defaults only, for runs without a config file.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./spotterlogs")

	windows := match.DefaultWindows()
	for _, cat := range core.Categories {
		viper.SetDefault(fmt.Sprintf("engine.windows.%s.tolerance", cat), windows[cat].Tolerance)
		viper.SetDefault(fmt.Sprintf("engine.windows.%s.maxRadius", cat), windows[cat].MaxRadius)
	}
	viper.SetDefault("engine.aircraftAcceptance", 10.0)
	viper.SetDefault("engine.heuristicConfidence", 0.1)
	viper.SetDefault("engine.minZoom", 0.5)
	viper.SetDefault("engine.maxZoom", 15.0)
	viper.SetDefault("engine.timeouts.aircraft", "5s")
	viper.SetDefault("engine.timeouts.landmark", "3s")

	est := estimate.DefaultParams()
	viper.SetDefault("engine.estimator.baseMeters", est.BaseMeters)
	viper.SetDefault("engine.estimator.metersPerPixel", est.MetersPerPixel)
	viper.SetDefault("engine.estimator.altitudeFactor", est.AltitudeFactor)
	viper.SetDefault("engine.estimator.minMeters", est.MinMeters)
	viper.SetDefault("engine.estimator.maxMeters", est.MaxMeters)

	w := rank.DefaultWeights()
	viper.SetDefault("engine.ranking.bearing", w.Bearing)
	viper.SetDefault("engine.ranking.distance", w.Distance)
	viper.SetDefault("engine.ranking.visualBoost", w.VisualBoost)

	viper.SetDefault("source.type", "memory")
	viper.SetDefault("source.memory.file", "")
	viper.SetDefault("source.sqlite.path", "./candidates.db")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.timeout", "10s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "spotter")
	viper.SetDefault("db.sslMode", "disable")
	viper.SetDefault("db.slowQuery", "200ms")

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "1h")
	viper.SetDefault("cache.aircraftTtl", "15s")

	viper.SetDefault("rateLimit.enabled", false)
	viper.SetDefault("rateLimit.dailyLimit", 1000)
	viper.SetDefault("rateLimit.store", "memory")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "spotter")
	viper.SetDefault("influx.bucket", "resolutions")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "spotter")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// DefaultEngineConfig returns the engine settings without consulting viper.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Windows:             match.DefaultWindows(),
		AircraftAcceptance:  10,
		HeuristicConfidence: 0.1,
		MinZoom:             0.5,
		MaxZoom:             15,
		AircraftTimeout:     5 * time.Second,
		LandmarkTimeout:     3 * time.Second,
		Estimator:           estimate.DefaultParams(),
		Weights:             rank.DefaultWeights(),
	}
}

// engineSections are the nested engine tables decoded through mapstructure.
type engineSections struct {
	Engine struct {
		Windows   match.Windows   `mapstructure:"windows"`
		Estimator estimate.Params `mapstructure:"estimator"`
		Ranking   rank.Weights    `mapstructure:"ranking"`
	} `mapstructure:"engine"`
}

// GetEngineConfig builds the engine settings from viper.
func GetEngineConfig() (EngineConfig, error) {
	var sections engineSections
	if err := viper.Unmarshal(&sections); err != nil {
		return EngineConfig{}, fmt.Errorf("invalid engine config: %w", err)
	}
	return EngineConfig{
		Windows:             sections.Engine.Windows,
		AircraftAcceptance:  viper.GetFloat64("engine.aircraftAcceptance"),
		HeuristicConfidence: viper.GetFloat64("engine.heuristicConfidence"),
		MinZoom:             viper.GetFloat64("engine.minZoom"),
		MaxZoom:             viper.GetFloat64("engine.maxZoom"),
		AircraftTimeout:     viper.GetDuration("engine.timeouts.aircraft"),
		LandmarkTimeout:     viper.GetDuration("engine.timeouts.landmark"),
		Estimator:           sections.Engine.Estimator,
		Weights:             sections.Engine.Ranking,
	}, nil
}

// GetSourceConfig returns the candidate source settings.
func GetSourceConfig() SourceConfig {
	return SourceConfig{
		Type:   viper.GetString("source.type"),
		Memory: MemorySourceConfig{File: viper.GetString("source.memory.file")},
		SQLite: SQLiteSourceConfig{Path: viper.GetString("source.sqlite.path")},
		API: APISourceConfig{
			ServerURL: viper.GetString("api.serverUrl"),
			APIKey:    viper.GetString("api.apiKey"),
			Timeout:   viper.GetDuration("api.timeout"),
		},
	}
}

// GetDatabaseConfig returns the Postgres connection settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:      viper.GetString("db.host"),
		Port:      viper.GetString("db.port"),
		Username:  viper.GetString("db.username"),
		Password:  viper.GetString("db.password"),
		Database:  viper.GetString("db.database"),
		SSLMode:   viper.GetString("db.sslMode"),
		SlowQuery: viper.GetDuration("db.slowQuery"),
	}
}

// GetCacheConfig returns the candidate cache settings.
func GetCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:     viper.GetBool("cache.enabled"),
		TTL:         viper.GetDuration("cache.ttl"),
		AircraftTTL: viper.GetDuration("cache.aircraftTtl"),
	}
}

// GetRateLimitConfig returns the candidate source quota settings.
func GetRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:    viper.GetBool("rateLimit.enabled"),
		DailyLimit: viper.GetInt("rateLimit.dailyLimit"),
		Store:      viper.GetString("rateLimit.store"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the resolution metrics sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:  viper.GetString("influx.token"),
		Org:    viper.GetString("influx.org"),
		Bucket: viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF log shipping settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
