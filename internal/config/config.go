package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env           string
	StoreProvider string

	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	MongoURI string
	MongoDB  string

	RedisHost string
	RedisPort string
	RedisPass string

	BoltPath string

	BusProvider string
	NatsHost    string
	NatsPort    string
	AMQPURI     string

	ApiEnabled  string
	ApiPort     string
	GRPCPort    string
	CORSOrigins []string

	MaxQRBytes   int
	TxMaxRetries int
	LogLevel     string

	CredentialsFile string
}

// credentials is the layout of the development credentials file.
type credentials struct {
	Postgres struct {
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		DB       string `yaml:"db"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	AMQP struct {
		URI string `yaml:"uri"`
	} `yaml:"amqp"`
}

// New loads and validates configuration from environment variables.
// The result is built once at startup and handed to constructors explicitly.
//
// In production every credential must come from the environment. In
// development a YAML credentials file (LOYALPAY_CREDENTIALS_FILE) may fill
// whatever the environment leaves empty.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("LOYALPAY_ENV", EnvDevelopment),
		StoreProvider:   os.Getenv("LOYALPAY_STORE_PROVIDER"),
		DBUser:          os.Getenv("LOYALPAY_POSTGRES_USER"),
		DBPass:          os.Getenv("LOYALPAY_POSTGRES_PASSWORD"),
		DBHost:          os.Getenv("LOYALPAY_POSTGRES_HOST"),
		DBPort:          os.Getenv("LOYALPAY_POSTGRES_PORT"),
		DBName:          os.Getenv("LOYALPAY_POSTGRES_DB"),
		SSLMode:         os.Getenv("LOYALPAY_POSTGRES_SSLMODE"),
		MongoURI:        os.Getenv("LOYALPAY_MONGO_URI"),
		MongoDB:         os.Getenv("LOYALPAY_MONGO_DB"),
		RedisHost:       os.Getenv("LOYALPAY_REDIS_HOST"),
		RedisPort:       os.Getenv("LOYALPAY_REDIS_PORT"),
		RedisPass:       os.Getenv("LOYALPAY_REDIS_PASSWORD"),
		BoltPath:        getEnv("LOYALPAY_BOLT_PATH", "loyalpay.db"),
		BusProvider:     getEnv("LOYALPAY_BUS_PROVIDER", "none"),
		NatsHost:        os.Getenv("LOYALPAY_NATS_HOST"),
		NatsPort:        os.Getenv("LOYALPAY_NATS_PORT"),
		AMQPURI:         os.Getenv("LOYALPAY_AMQP_URI"),
		ApiEnabled:      getEnv("LOYALPAY_API_ENABLED", "true"),
		ApiPort:         getEnv("LOYALPAY_API_PORT", "3000"),
		GRPCPort:        os.Getenv("LOYALPAY_GRPC_PORT"),
		CORSOrigins:     splitList(getEnv("LOYALPAY_CORS_ORIGINS", "*")),
		MaxQRBytes:      getEnvInt("LOYALPAY_MAX_QR_BYTES", 4096),
		TxMaxRetries:    getEnvInt("LOYALPAY_TX_MAX_RETRIES", 10),
		LogLevel:        getEnv("LOYALPAY_LOG_LEVEL", "info"),
		CredentialsFile: os.Getenv("LOYALPAY_CREDENTIALS_FILE"),
	}

	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("invalid LOYALPAY_ENV %q, must be 'development' or 'production'", cfg.Env)
	}

	if cfg.Env == EnvDevelopment && cfg.CredentialsFile != "" {
		if err := cfg.loadCredentialsFile(cfg.CredentialsFile); err != nil {
			return nil, err
		}
	}

	// Required: store provider
	switch cfg.StoreProvider {
	case "":
		return nil, fmt.Errorf("missing required env: LOYALPAY_STORE_PROVIDER (postgres|mongo|redis|bolt|memory)")
	case "postgres", "mongo", "redis", "bolt", "memory":
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be one of postgres|mongo|redis|bolt|memory", cfg.StoreProvider)
	}
	if missing := cfg.missingStoreEnv(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required env for %s store: %s", cfg.StoreProvider, strings.Join(missing, ", "))
	}

	// Optional: bus provider
	switch cfg.BusProvider {
	case "none":
	case "nats":
		if cfg.NatsHost == "" || cfg.NatsPort == "" {
			return nil, fmt.Errorf("missing required env for nats bus: LOYALPAY_NATS_HOST/PORT")
		}
	case "amqp":
		if cfg.AMQPURI == "" {
			return nil, fmt.Errorf("missing required env for amqp bus: LOYALPAY_AMQP_URI")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'none', 'nats' or 'amqp'", cfg.BusProvider)
	}

	if cfg.MaxQRBytes <= 0 {
		return nil, fmt.Errorf("LOYALPAY_MAX_QR_BYTES must be positive, got %d", cfg.MaxQRBytes)
	}

	return cfg, nil
}

func (c *Config) missingStoreEnv() []string {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.StoreProvider {
	case "postgres":
		check("LOYALPAY_POSTGRES_USER", c.DBUser)
		check("LOYALPAY_POSTGRES_HOST", c.DBHost)
		check("LOYALPAY_POSTGRES_PORT", c.DBPort)
		check("LOYALPAY_POSTGRES_DB", c.DBName)
		check("LOYALPAY_POSTGRES_SSLMODE", c.SSLMode)
		if c.Env == EnvProduction {
			check("LOYALPAY_POSTGRES_PASSWORD", c.DBPass)
		}
	case "mongo":
		check("LOYALPAY_MONGO_URI", c.MongoURI)
		check("LOYALPAY_MONGO_DB", c.MongoDB)
	case "redis":
		check("LOYALPAY_REDIS_HOST", c.RedisHost)
		check("LOYALPAY_REDIS_PORT", c.RedisPort)
	case "bolt":
		check("LOYALPAY_BOLT_PATH", c.BoltPath)
	}
	return missing
}

func (c *Config) loadCredentialsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	var creds credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parse credentials file %s: %w", path, err)
	}

	fill(&c.DBUser, creds.Postgres.User)
	fill(&c.DBPass, creds.Postgres.Password)
	fill(&c.DBHost, creds.Postgres.Host)
	fill(&c.DBPort, creds.Postgres.Port)
	fill(&c.DBName, creds.Postgres.DB)
	fill(&c.SSLMode, creds.Postgres.SSLMode)
	fill(&c.MongoURI, creds.Mongo.URI)
	fill(&c.MongoDB, creds.Mongo.Database)
	fill(&c.RedisHost, creds.Redis.Host)
	fill(&c.RedisPort, creds.Redis.Port)
	fill(&c.RedisPass, creds.Redis.Password)
	fill(&c.AMQPURI, creds.AMQP.URI)
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if LOYALPAY_API_ENABLED != "true"; callers skip the HTTP server then.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("LOYALPAY_API_PORT is required when LOYALPAY_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (LOYALPAY_API_ENABLED != true)")
}

// GRPCAddr returns the gRPC listen address, or an error when LOYALPAY_GRPC_PORT is unset.
func (c *Config) GRPCAddr() (string, error) {
	if c.GRPCPort == "" {
		return "", fmt.Errorf("gRPC server is disabled (LOYALPAY_GRPC_PORT not set)")
	}
	return ":" + c.GRPCPort, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fill(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
