package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageMinio = "minio"
	StorageGCS   = "gcs"

	EngineGoogle = "google"
	EngineHTTP   = "http"

	MQNone     = "none"
	MQRabbitMQ = "rabbitmq"
	MQPubSub   = "pubsub"
	MQNATS     = "nats"
)

type Config struct {
	Env              string        `toml:"env"`
	ServerPort       int           `toml:"server_port"`
	PublicBaseURL    string        `toml:"public_base_url"`
	JWTSecret        string        `toml:"jwt_secret"`
	TokenTTL         time.Duration `toml:"token_ttl"`
	AllowedOrigins   []string      `toml:"cors_allowed_origins"`
	AudioRequireAuth bool          `toml:"audio_require_auth"`
	Database         DatabaseConfig `toml:"database"`
	Storage          StorageConfig  `toml:"storage"`
	Synth            SynthConfig    `toml:"synth"`
	MQ               MQConfig       `toml:"mq"`
	Log              LogConfig      `toml:"log"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	User        string `toml:"user"`
	Password    string `toml:"password"`
	DBName      string `toml:"name"`
	UseSSL      bool   `toml:"ssl"`
	SQLitePath  string `toml:"sqlite_path"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

type StorageConfig struct {
	Backend  string      `toml:"backend"`
	LocalDir string      `toml:"local_dir"`
	Minio    MinioConfig `toml:"minio"`
	GCS      GCSConfig   `toml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"ssl"`
}

type GCSConfig struct {
	Bucket          string `toml:"bucket"`
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// SynthConfig selects and tunes the speech synthesis engine.
type SynthConfig struct {
	Engine        string        `toml:"engine"`
	Language      string        `toml:"language"`
	Timeout       time.Duration `toml:"timeout"`
	GoogleBaseURL string        `toml:"google_base_url"`
	HTTPBaseURL   string        `toml:"http_base_url"`
	Temperature   float64       `toml:"temperature"`
}

type MQConfig struct {
	Backend  string         `toml:"backend"`
	Channel  string         `toml:"channel"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	PubSub   PubSubConfig   `toml:"pubsub"`
	NATS     NATSConfig     `toml:"nats"`
}

type RabbitMQConfig struct {
	URL             string `toml:"url"`
	PrefetchCount   int    `toml:"prefetch_count"`
	QueueDurable    bool   `toml:"queue_durable"`
	QueueAutoDelete bool   `toml:"queue_auto_delete"`
}

type PubSubConfig struct {
	ProjectID          string `toml:"project_id"`
	CredentialsFile    string `toml:"credentials_file"`
	SubscriptionSuffix string `toml:"subscription_suffix"`
}

type NATSConfig struct {
	URL string `toml:"url"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:        "prod",
		ServerPort: 5001,
		TokenTTL:   24 * time.Hour,
		Database: DatabaseConfig{
			Driver:      DriverPostgres,
			Host:        "localhost",
			Port:        5432,
			User:        "ragyverse",
			Password:    "password",
			DBName:      "ragyverse",
			SQLitePath:  "ragyverse.db",
			AutoMigrate: false,
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			LocalDir: "static",
		},
		Synth: SynthConfig{
			Engine:        EngineGoogle,
			Language:      "en",
			Timeout:       30 * time.Second,
			GoogleBaseURL: "https://translate.google.com",
			HTTPBaseURL:   "http://localhost:8000",
			Temperature:   0.75,
		},
		MQ: MQConfig{
			Backend: MQNone,
			Channel: "speech.converted",
			RabbitMQ: RabbitMQConfig{
				QueueDurable: true,
			},
			PubSub: PubSubConfig{
				SubscriptionSuffix: "-sub",
			},
			NATS: NATSConfig{
				URL: "nats://127.0.0.1:4222",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file
// named by CONFIG_FILE, and finally the environment.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.ServerPort = getEnvInt("SERVER_PORT", cfg.ServerPort)
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", cfg.JWTSecret))
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.AudioRequireAuth = getEnvBool("AUDIO_REQUIRE_AUTH", cfg.AudioRequireAuth)

	db := &cfg.Database
	db.Driver = strings.ToLower(getEnv("DB_DRIVER", db.Driver))
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnvInt("DB_PORT", db.Port)
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.DBName = getEnv("DB_NAME", db.DBName)
	db.UseSSL = getEnvBool("DB_SSL", db.UseSSL)
	db.SQLitePath = getEnv("DB_SQLITE_PATH", db.SQLitePath)
	db.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", db.AutoMigrate)

	st := &cfg.Storage
	st.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", st.Backend))
	st.LocalDir = getEnv("STORAGE_LOCAL_DIR", st.LocalDir)
	st.Minio.Endpoint = getEnv("MINIO_ENDPOINT", st.Minio.Endpoint)
	st.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", st.Minio.AccessKey)
	st.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", st.Minio.SecretKey)
	st.Minio.Bucket = getEnv("MINIO_BUCKET", st.Minio.Bucket)
	st.Minio.UseSSL = getEnvBool("MINIO_SSL", st.Minio.UseSSL)
	st.GCS.Bucket = getEnv("GCS_BUCKET", st.GCS.Bucket)
	st.GCS.ProjectID = getEnv("GCS_PROJECT_ID", st.GCS.ProjectID)
	st.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", st.GCS.CredentialsFile)

	sy := &cfg.Synth
	sy.Engine = strings.ToLower(getEnv("SYNTH_ENGINE", sy.Engine))
	sy.Language = getEnv("SYNTH_LANGUAGE", sy.Language)
	sy.Timeout = getEnvDuration("SYNTH_TIMEOUT", sy.Timeout)
	sy.GoogleBaseURL = strings.TrimRight(getEnv("SYNTH_GOOGLE_BASE_URL", sy.GoogleBaseURL), "/")
	sy.HTTPBaseURL = strings.TrimRight(getEnv("SYNTH_HTTP_BASE_URL", sy.HTTPBaseURL), "/")
	sy.Temperature = getEnvFloat("SYNTH_TEMPERATURE", sy.Temperature)

	mq := &cfg.MQ
	mq.Backend = strings.ToLower(getEnv("MQ_BACKEND", mq.Backend))
	mq.Channel = getEnv("MQ_CHANNEL", mq.Channel)
	mq.RabbitMQ.URL = getEnv("RABBITMQ_URL", mq.RabbitMQ.URL)
	mq.RabbitMQ.PrefetchCount = getEnvInt("RABBITMQ_PREFETCH", mq.RabbitMQ.PrefetchCount)
	mq.RabbitMQ.QueueDurable = getEnvBool("RABBITMQ_QUEUE_DURABLE", mq.RabbitMQ.QueueDurable)
	mq.RabbitMQ.QueueAutoDelete = getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", mq.RabbitMQ.QueueAutoDelete)
	mq.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", mq.PubSub.ProjectID)
	mq.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", mq.PubSub.CredentialsFile)
	mq.PubSub.SubscriptionSuffix = getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", mq.PubSub.SubscriptionSuffix)
	mq.NATS.URL = getEnv("NATS_URL", mq.NATS.URL)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageMinio, StorageGCS:
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Synth.Engine {
	case EngineGoogle, EngineHTTP:
	default:
		return fmt.Errorf("unsupported SYNTH_ENGINE %q", c.Synth.Engine)
	}
	switch c.MQ.Backend {
	case MQNone, MQRabbitMQ, MQPubSub, MQNATS:
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("24h") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueStr = strings.TrimSpace(valueStr)
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
