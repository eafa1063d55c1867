package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"engagelens/internal/suggest"
)

// Config is the application's configuration model.
// It says where data and fitted artifacts live and how the model is reached.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Model     ModelConfig     `yaml:"model"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Advice    AdviceConfig    `yaml:"advice"`
	Storage   StorageConfig   `yaml:"storage"`
}

type DataConfig struct {
	// Local raw CSV. Ignored when RawKey is set.
	RawPath string `yaml:"rawPath"`
	// Key of the raw CSV inside the artifact store (e.g. an S3 object).
	RawKey string `yaml:"rawKey"`
	// Where cleaned_data.csv and score reports are written.
	OutputDir    string  `yaml:"outputDir"`
	TestFraction float64 `yaml:"testFraction"`
	Seed         int64   `yaml:"seed"`
}

type ArtifactsConfig struct {
	// fs, s3, redis or sqlite
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	S3      S3Config    `yaml:"s3"`
	Redis   RedisConfig `yaml:"redis"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	// If empty, read from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY or the default chain
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type ModelConfig struct {
	// exec runs Bin; http posts to Endpoint
	Kind      string   `yaml:"kind"`
	Bin       string   `yaml:"bin"`
	ModelPath string   `yaml:"modelPath"`
	TrainArgs []string `yaml:"trainArgs"`

	Endpoint        string        `yaml:"endpoint"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	RPS             float64       `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breakerFailures"`
	BreakerTimeout  time.Duration `yaml:"breakerTimeout"`
}

type ServerConfig struct {
	Addr        string  `yaml:"addr"`
	MetricsAddr string  `yaml:"metricsAddr"`
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	// Upper bound on concurrent encodes in batch paths
	EncodeWorkers int `yaml:"encodeWorkers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type AdviceConfig struct {
	// Prepend suggest.DefaultRules to Rules
	UseDefaults bool           `yaml:"useDefaults"`
	Rules       []suggest.Rule `yaml:"rules"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Data: DataConfig{
			RawPath:      "data/raw/social_media_engagement.csv",
			OutputDir:    "data/processed",
			TestFraction: 0.2,
			Seed:         42,
		},
		Artifacts: ArtifactsConfig{Backend: "fs", Dir: "models", Redis: RedisConfig{Prefix: "engagelens:"}},
		Model: ModelConfig{
			Kind:            "exec",
			Bin:             "./bin/engagelens-model",
			ModelPath:       "models/model.bin",
			Timeout:         10 * time.Second,
			MaxAttempts:     4,
			RPS:             20,
			Burst:           40,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Server:  ServerConfig{Addr: ":8080", MetricsAddr: ":9090", RPS: 10, Burst: 20, EncodeWorkers: 8},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Advice:  AdviceConfig{UseDefaults: true},
		Storage: StorageConfig{DBPath: "./engagelens.db"},
	}
}

// AdviceRules returns the effective rule list.
func (c Config) AdviceRules() []suggest.Rule {
	var out []suggest.Rule
	if c.Advice.UseDefaults {
		out = append(out, suggest.DefaultRules...)
	}
	return append(out, c.Advice.Rules...)
}

// ResolveEnv fills in config fields from environment variables. Secrets are
// only read when unset; ENGAGELENS_* overrides always win.
func (c *Config) ResolveEnv() {
	if c.Artifacts.S3.AccessKey == "" {
		c.Artifacts.S3.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.Artifacts.S3.SecretKey == "" {
		c.Artifacts.S3.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if c.Artifacts.S3.Region == "" {
		c.Artifacts.S3.Region = os.Getenv("AWS_REGION")
	}
	if c.Artifacts.Redis.URL == "" {
		c.Artifacts.Redis.URL = os.Getenv("REDIS_URL")
	}
	if c.Model.Token == "" {
		c.Model.Token = os.Getenv("ENGAGELENS_MODEL_TOKEN")
	}
	setString(&c.Artifacts.Backend, "ENGAGELENS_ARTIFACTS_BACKEND")
	setString(&c.Artifacts.Dir, "ENGAGELENS_ARTIFACTS_DIR")
	setString(&c.Artifacts.S3.Bucket, "ENGAGELENS_S3_BUCKET")
	setString(&c.Data.RawPath, "ENGAGELENS_RAW_PATH")
	setString(&c.Data.RawKey, "ENGAGELENS_RAW_KEY")
	setString(&c.Data.OutputDir, "ENGAGELENS_OUTPUT_DIR")
	setString(&c.Model.Kind, "ENGAGELENS_MODEL_KIND")
	setString(&c.Model.Bin, "ENGAGELENS_MODEL_BIN")
	setString(&c.Model.ModelPath, "ENGAGELENS_MODEL_PATH")
	setString(&c.Model.Endpoint, "ENGAGELENS_MODEL_ENDPOINT")
	setString(&c.Server.Addr, "ENGAGELENS_ADDR")
	setString(&c.Server.MetricsAddr, "ENGAGELENS_METRICS_ADDR")
	setString(&c.Logging.Level, "ENGAGELENS_LOG_LEVEL")
	setString(&c.Logging.Format, "ENGAGELENS_LOG_FORMAT")
	setString(&c.Storage.DBPath, "ENGAGELENS_DB_PATH")
	if v := os.Getenv("ENGAGELENS_SERVER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Server.RPS = f
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks enumerations and the fields each choice requires.
func (c Config) Validate() error {
	var errs []error
	switch c.Artifacts.Backend {
	case "fs":
		if c.Artifacts.Dir == "" {
			errs = append(errs, errors.New("artifacts.dir is required for fs backend"))
		}
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			errs = append(errs, errors.New("artifacts.s3.bucket is required for s3 backend"))
		}
	case "redis":
		if c.Artifacts.Redis.URL == "" {
			errs = append(errs, errors.New("artifacts.redis.url is required for redis backend"))
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			errs = append(errs, errors.New("storage.dbPath is required for sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend %q: want fs, s3, redis or sqlite", c.Artifacts.Backend))
	}
	switch c.Model.Kind {
	case "exec":
		if c.Model.Bin == "" || c.Model.ModelPath == "" {
			errs = append(errs, errors.New("model.bin and model.modelPath are required for exec model"))
		}
	case "http":
		if c.Model.Endpoint == "" {
			errs = append(errs, errors.New("model.endpoint is required for http model"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.kind %q: want exec or http", c.Model.Kind))
	}
	if c.Data.TestFraction < 0 || c.Data.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("data.testFraction %v: want [0,1)", c.Data.TestFraction))
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format %q: want json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Load reads YAML config from path. Fields absent from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
