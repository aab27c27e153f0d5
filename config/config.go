package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr            = ":8080"
	defaultBasePath        = "/api"
	defaultShutdownTimeout = 30 * time.Second
	defaultLocalDir        = "uploads"
	defaultConcurrency     = 4
	defaultQueueBuffer     = 64
	defaultQueueName       = "default"
	defaultMaxFiles        = 5
	defaultMaxFileSize     = 10 << 20
)

// Config describes runtime configuration for the server and worker processes.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Redis   RedisConfig   `yaml:"redis"`
	Upload  UploadConfig  `yaml:"upload"`
	S3      S3Config      `yaml:"s3"`
	Minio   MinioConfig   `yaml:"minio"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BasePath        string        `yaml:"base_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
}

// StorageConfig selects the blob backend. Retention > 0 enables periodic
// removal of unleased files older than Retention.
type StorageConfig struct {
	Type            string        `yaml:"type"`
	LocalDir        string        `yaml:"local_dir"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// StoreConfig selects the metadata backend: memory or redis.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// QueueConfig selects how tasks are dispatched: local runs them on an
// in-process pool, asynq hands them to cmd/worker through redis.
type QueueConfig struct {
	Driver             string `yaml:"driver"`
	Concurrency        int    `yaml:"concurrency"`
	Buffer             int    `yaml:"buffer"`
	Name               string `yaml:"name"`
	ExtractConcurrency int    `yaml:"extract_concurrency"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type UploadConfig struct {
	MaxFiles     int      `yaml:"max_files"`
	MaxFileSize  int64    `yaml:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// Default returns a configuration that runs entirely in process.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            defaultAddr,
			BasePath:        defaultBasePath,
			ShutdownTimeout: defaultShutdownTimeout,
			AllowOrigins:    []string{"*"},
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
		},
		Storage: StorageConfig{
			Type:            "local",
			LocalDir:        defaultLocalDir,
			CleanupInterval: time.Hour,
		},
		Store: StoreConfig{Driver: "memory"},
		Queue: QueueConfig{
			Driver:             "local",
			Concurrency:        defaultConcurrency,
			Buffer:             defaultQueueBuffer,
			Name:               defaultQueueName,
			ExtractConcurrency: defaultConcurrency,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Upload: UploadConfig{
			MaxFiles:     defaultMaxFiles,
			MaxFileSize:  defaultMaxFileSize,
			AllowedTypes: []string{"application/pdf"},
		},
	}
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing or empty file yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}

	fileData, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("PDFTASK_ADDR", &c.Server.Addr)
	envString("PDFTASK_LOG_LEVEL", &c.Log.Level)
	envString("PDFTASK_STORAGE_TYPE", &c.Storage.Type)
	envString("PDFTASK_STORAGE_DIR", &c.Storage.LocalDir)
	envString("PDFTASK_STORE_DRIVER", &c.Store.Driver)
	envString("PDFTASK_QUEUE_DRIVER", &c.Queue.Driver)
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	if err := envInt("PDFTASK_QUEUE_CONCURRENCY", &c.Queue.Concurrency); err != nil {
		return err
	}
	if err := envInt("REDIS_DB", &c.Redis.DB); err != nil {
		return err
	}
	c.S3.applyEnv()
	c.Minio.applyEnv()
	return nil
}

func (c *Config) normalize() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = d.Server.BasePath
	}
	c.Server.BasePath = "/" + strings.Trim(c.Server.BasePath, "/")
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = d.Storage.LocalDir
	}
	if c.Storage.CleanupInterval <= 0 {
		c.Storage.CleanupInterval = d.Storage.CleanupInterval
	}
	if c.Queue.Buffer < 1 {
		c.Queue.Buffer = d.Queue.Buffer
	}
	if c.Queue.Name == "" {
		c.Queue.Name = d.Queue.Name
	}
	if c.Queue.ExtractConcurrency < 1 {
		c.Queue.ExtractConcurrency = d.Queue.ExtractConcurrency
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = d.Upload.AllowedTypes
	}
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("invalid storage.type: %q", c.Storage.Type)
	}
	switch c.Store.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid store.driver: %q", c.Store.Driver)
	}
	switch c.Queue.Driver {
	case "local":
	case "asynq":
		// the worker process must see the tasks the server created
		if c.Store.Driver != "redis" {
			return errors.New("queue.driver asynq requires store.driver redis")
		}
		if c.Storage.Type == "local" {
			return errors.New("queue.driver asynq requires shared storage (s3 or minio)")
		}
	default:
		return fmt.Errorf("invalid queue.driver: %q", c.Queue.Driver)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("invalid queue.concurrency: %d (must be >= 1)", c.Queue.Concurrency)
	}
	if c.Upload.MaxFiles < 1 {
		return fmt.Errorf("invalid upload.max_files: %d (must be >= 1)", c.Upload.MaxFiles)
	}
	if c.Upload.MaxFileSize < 1 {
		return fmt.Errorf("invalid upload.max_file_size: %d (must be >= 1)", c.Upload.MaxFileSize)
	}
	if c.Storage.Type == "s3" && c.S3.BucketName == "" {
		return errors.New("s3.bucket_name is required for storage.type s3")
	}
	if c.Storage.Type == "minio" && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return errors.New("minio.endpoint and minio.bucket_name are required for storage.type minio")
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
