package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MIRADOR_CORRELATOR_"

// Config captures the settings required to boot the correlator.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Cache       CacheConfig       `yaml:"cache"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Inference   InferenceConfig   `yaml:"inference"`
	Graph       GraphConfig       `yaml:"graph"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Intake      IntakeConfig      `yaml:"intake"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gte=0"`
	Reflection      bool          `yaml:"reflection"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName" validate:"required"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// PostgresConfig configures the graph and incident stores. An empty DSN keeps
// both stores in memory.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"maxIdleConns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" validate:"gte=0"`
	IncidentLimit   int           `yaml:"incidentLimit" validate:"gte=0"`
	MigrateOnStart  bool          `yaml:"migrateOnStart"`
}

// CacheConfig controls caching of graph traversals, embeddings and discovery
// responses. Enabled with an empty Addr keeps the cache in process.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries" validate:"gte=0"`
	TLS          bool          `yaml:"tls"`
	GraphTTL     time.Duration `yaml:"graphTTL"`
	EmbeddingTTL time.Duration `yaml:"embeddingTTL"`
	DiscoveryTTL time.Duration `yaml:"discoveryTTL"`
}

// EmbeddingsConfig configures the optional text embedding provider.
type EmbeddingsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	APIKey        string        `yaml:"apiKey" validate:"required_if=Enabled true"`
	BaseURL       string        `yaml:"baseURL" validate:"omitempty,url"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond" validate:"gte=0"`
	Burst         int           `yaml:"burst" validate:"gte=0"`
}

// CorrelationConfig tunes alert-to-incident matching.
type CorrelationConfig struct {
	Threshold       float64       `yaml:"threshold" validate:"gt=0,lte=1"`
	TimeWindow      time.Duration `yaml:"timeWindow" validate:"gt=0"`
	TopologyDepth   int           `yaml:"topologyDepth" validate:"min=1,max=10"`
	StrategyTimeout time.Duration `yaml:"strategyTimeout" validate:"gt=0"`
	MaxParallel     int           `yaml:"maxParallel" validate:"min=1"`
	Weights         WeightsConfig `yaml:"weights"`
}

// WeightsConfig holds per-strategy weights in the combined score.
type WeightsConfig struct {
	TimeWindow float64 `yaml:"timeWindow" validate:"gte=0"`
	Topology   float64 `yaml:"topology" validate:"gte=0"`
	Similarity float64 `yaml:"similarity" validate:"gte=0"`
}

// InferenceConfig tunes dependency inference runs.
type InferenceConfig struct {
	StrategyTimeout time.Duration `yaml:"strategyTimeout" validate:"gt=0"`
	RunTimeout      time.Duration `yaml:"runTimeout" validate:"gt=0"`
	AllowListPath   string        `yaml:"allowListPath"`
	Disabled        []string      `yaml:"disabled"`
}

// GraphConfig tunes graph writes.
type GraphConfig struct {
	BatchSize int `yaml:"batchSize" validate:"min=1"`
}

// DiscoveryConfig configures the discovery API and scheduled runs.
type DiscoveryConfig struct {
	BaseURL        string        `yaml:"baseURL" validate:"omitempty,url"`
	ResourcesPath  string        `yaml:"resourcesPath"`
	EnrichmentPath string        `yaml:"enrichmentPath"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	// Schedule is a cron expression (optional seconds field, or @every 15m)
	// for background discovery of Tenants. Empty disables it.
	Schedule string   `yaml:"schedule"`
	Tenants  []string `yaml:"tenants"`
}

// IntakeConfig configures the Redis alert queue consumer.
type IntakeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	QueueKey string `yaml:"queueKey" validate:"required_if=Enabled true"`
	Workers  int    `yaml:"workers" validate:"min=1"`
	// BlockTimeout is the BLPOP wait; Redis counts it in whole seconds.
	BlockTimeout time.Duration `yaml:"blockTimeout" validate:"gte=1s"`
	DrainTimeout time.Duration `yaml:"drainTimeout" validate:"gt=0"`
}

// Load initialises Config from .env, a YAML file and environment overrides,
// in that order, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	w := c.Correlation.Weights
	if w.TimeWindow+w.Topology+w.Similarity <= 0 {
		return fmt.Errorf("invalid config: correlation weights must not all be zero")
	}
	if c.Discovery.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Discovery.Schedule); err != nil {
			return fmt.Errorf("invalid config: discovery.schedule: %w", err)
		}
	}
	return nil
}

// ScheduleParser accepts five or six field cron expressions and descriptors
// such as @hourly or @every 10m.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			Reflection:      true,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Tracing: TracingConfig{ServiceName: "mirador-correlator", SampleRatio: 1},
		Postgres: PostgresConfig{
			MaxOpenConns:   25,
			MaxIdleConns:   5,
			IncidentLimit:  200,
			MigrateOnStart: true,
		},
		Cache: CacheConfig{
			KeyPrefix:    "mirador-correlator",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			GraphTTL:     5 * time.Minute,
			EmbeddingTTL: 24 * time.Hour,
			DiscoveryTTL: time.Minute,
		},
		Embeddings: EmbeddingsConfig{
			Model:         "text-embedding-3-small",
			Timeout:       2 * time.Second,
			RatePerSecond: 20,
			Burst:         5,
		},
		Correlation: CorrelationConfig{
			Threshold:       0.6,
			TimeWindow:      5 * time.Minute,
			TopologyDepth:   3,
			StrategyTimeout: 2 * time.Second,
			MaxParallel:     8,
			Weights:         WeightsConfig{TimeWindow: 0.3, Topology: 0.3, Similarity: 0.4},
		},
		Inference: InferenceConfig{
			StrategyTimeout: 10 * time.Second,
			RunTimeout:      60 * time.Second,
		},
		Graph: GraphConfig{BatchSize: 500},
		Discovery: DiscoveryConfig{
			ResourcesPath:  "/api/v1/discovery/resources",
			EnrichmentPath: "/api/v1/discovery/enrichment",
			Timeout:        10 * time.Second,
		},
		Intake: IntakeConfig{
			QueueKey:     "mirador:alerts",
			Workers:      4,
			BlockTimeout: 5 * time.Second,
			DrainTimeout: 30 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("SERVER_ADDRESS", &cfg.Server.Address)
	envString("METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	envDuration("GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)
	envBool("GRPC_REFLECTION", &cfg.Server.Reflection)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}

	envBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	envString("TRACING_SERVICE_NAME", &cfg.Tracing.ServiceName)
	envFloat("TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio)

	envString("POSTGRES_DSN", &cfg.Postgres.DSN)
	envInt("POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns)
	envInt("POSTGRES_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns)
	envInt("POSTGRES_INCIDENT_LIMIT", &cfg.Postgres.IncidentLimit)
	envBool("POSTGRES_MIGRATE", &cfg.Postgres.MigrateOnStart)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("CACHE_ADDR", &cfg.Cache.Addr)
	envString("CACHE_USERNAME", &cfg.Cache.Username)
	envString("CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("CACHE_DB", &cfg.Cache.DB)
	envString("CACHE_KEY_PREFIX", &cfg.Cache.KeyPrefix)
	envBool("CACHE_TLS", &cfg.Cache.TLS)
	envDuration("CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("CACHE_GRAPH_TTL", &cfg.Cache.GraphTTL)
	envDuration("CACHE_EMBEDDING_TTL", &cfg.Cache.EmbeddingTTL)
	envDuration("CACHE_DISCOVERY_TTL", &cfg.Cache.DiscoveryTTL)

	envBool("EMBEDDINGS_ENABLED", &cfg.Embeddings.Enabled)
	envString("EMBEDDINGS_API_KEY", &cfg.Embeddings.APIKey)
	if cfg.Embeddings.APIKey == "" {
		cfg.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	envString("EMBEDDINGS_BASE_URL", &cfg.Embeddings.BaseURL)
	envString("EMBEDDINGS_MODEL", &cfg.Embeddings.Model)
	envDuration("EMBEDDINGS_TIMEOUT", &cfg.Embeddings.Timeout)
	envFloat("EMBEDDINGS_RATE", &cfg.Embeddings.RatePerSecond)

	envFloat("CORRELATION_THRESHOLD", &cfg.Correlation.Threshold)
	envDuration("CORRELATION_TIME_WINDOW", &cfg.Correlation.TimeWindow)
	envInt("CORRELATION_TOPOLOGY_DEPTH", &cfg.Correlation.TopologyDepth)
	envDuration("CORRELATION_STRATEGY_TIMEOUT", &cfg.Correlation.StrategyTimeout)
	envFloat("CORRELATION_WEIGHT_TIME_WINDOW", &cfg.Correlation.Weights.TimeWindow)
	envFloat("CORRELATION_WEIGHT_TOPOLOGY", &cfg.Correlation.Weights.Topology)
	envFloat("CORRELATION_WEIGHT_SIMILARITY", &cfg.Correlation.Weights.Similarity)

	envDuration("INFERENCE_STRATEGY_TIMEOUT", &cfg.Inference.StrategyTimeout)
	envDuration("INFERENCE_RUN_TIMEOUT", &cfg.Inference.RunTimeout)
	envString("INFERENCE_ALLOW_LIST", &cfg.Inference.AllowListPath)
	envList("INFERENCE_DISABLED", &cfg.Inference.Disabled)

	envInt("GRAPH_BATCH_SIZE", &cfg.Graph.BatchSize)

	envString("DISCOVERY_BASE_URL", &cfg.Discovery.BaseURL)
	envString("DISCOVERY_RESOURCES_PATH", &cfg.Discovery.ResourcesPath)
	envString("DISCOVERY_ENRICHMENT_PATH", &cfg.Discovery.EnrichmentPath)
	envDuration("DISCOVERY_TIMEOUT", &cfg.Discovery.Timeout)
	envString("DISCOVERY_SCHEDULE", &cfg.Discovery.Schedule)
	envList("DISCOVERY_TENANTS", &cfg.Discovery.Tenants)

	envBool("INTAKE_ENABLED", &cfg.Intake.Enabled)
	envString("INTAKE_ADDR", &cfg.Intake.Addr)
	envString("INTAKE_PASSWORD", &cfg.Intake.Password)
	envInt("INTAKE_DB", &cfg.Intake.DB)
	envString("INTAKE_QUEUE_KEY", &cfg.Intake.QueueKey)
	envInt("INTAKE_WORKERS", &cfg.Intake.Workers)
	envDuration("INTAKE_BLOCK_TIMEOUT", &cfg.Intake.BlockTimeout)
	envDuration("INTAKE_DRAIN_TIMEOUT", &cfg.Intake.DrainTimeout)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envList(name string, dst *[]string) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
