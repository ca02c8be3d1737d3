package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.yaml"

// WorkflowConfig holds settings for the remote inspection workflow service
type WorkflowConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	ResponseMode    string        `yaml:"response_mode"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
	MaxConns        int           `yaml:"max_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ReportMarker    string        `yaml:"report_marker"`
}

// StorageConfig selects where uploaded label images are kept while a detection runs
type StorageConfig struct {
	Type           string `yaml:"type"`
	UploadDir      string `yaml:"upload_dir"`
	AzureAccount   string `yaml:"azure_account"`
	AzureKey       string `yaml:"azure_key"`
	AzureContainer string `yaml:"azure_container"`
}

// RepositoryConfig selects where detection records are persisted
type RepositoryConfig struct {
	Type       string `yaml:"type"`
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Config struct {
	Host               string           `yaml:"host"`
	Port               string           `yaml:"port"`
	RequestTimeout     time.Duration    `yaml:"request_timeout"`
	MaxRequestBodySize int64            `yaml:"max_request_body_size"`
	LogLevel           string           `yaml:"log_level"`
	AllowedOrigins     []string         `yaml:"allowed_origins"`
	Workflow           WorkflowConfig   `yaml:"workflow"`
	Storage            StorageConfig    `yaml:"storage"`
	Repository         RepositoryConfig `yaml:"repository"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8000",
		RequestTimeout:     10 * time.Minute,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		LogLevel:           "info",
		AllowedOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost"},
		Workflow: WorkflowConfig{
			BaseURL:         "http://localhost/v1",
			ResponseMode:    "streaming",
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			ConnectTimeout:  30 * time.Second,
			ReadTimeout:     300 * time.Second,
			WriteTimeout:    30 * time.Second,
			UploadTimeout:   180 * time.Second,
			MaxConns:        10,
			MaxIdleConns:    5,
			IdleConnTimeout: 30 * time.Second,
			RateBurst:       1,
			ReportMarker:    "不规范内容总结报告",
		},
		Storage: StorageConfig{
			Type:      "local",
			UploadDir: "uploads",
		},
		Repository: RepositoryConfig{
			Type:       "memory",
			Database:   "food_safety",
			Collection: "detection_records",
		},
	}
}

// LoadFromEnv builds the configuration from defaults, an optional YAML file,
// an optional .env file and finally process environment variables.
func LoadFromEnv() (*Config, error) {
	// .env never overrides variables that are already set
	_ = godotenv.Load()

	cfg := Default()

	path := getEnvOrDefault("CONFIG_FILE", defaultConfigFile)
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnvOrDefault("HOST", c.Host)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", c.RequestTimeout)
	c.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.MaxRequestBodySize)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	w := &c.Workflow
	w.BaseURL = getEnvOrDefault("WORKFLOW_BASE_URL", w.BaseURL)
	w.APIKey = getEnvOrDefault("WORKFLOW_API_KEY", w.APIKey)
	w.ResponseMode = getEnvOrDefault("WORKFLOW_RESPONSE_MODE", w.ResponseMode)
	w.MaxAttempts = int(parseIntOrDefault("WORKFLOW_MAX_ATTEMPTS", int64(w.MaxAttempts)))
	w.BackoffBase = parseDurationOrDefault("WORKFLOW_BACKOFF_BASE", w.BackoffBase)
	w.ConnectTimeout = parseDurationOrDefault("WORKFLOW_CONNECT_TIMEOUT", w.ConnectTimeout)
	w.ReadTimeout = parseDurationOrDefault("WORKFLOW_READ_TIMEOUT", w.ReadTimeout)
	w.WriteTimeout = parseDurationOrDefault("WORKFLOW_WRITE_TIMEOUT", w.WriteTimeout)
	w.UploadTimeout = parseDurationOrDefault("WORKFLOW_UPLOAD_TIMEOUT", w.UploadTimeout)
	w.MaxConns = int(parseIntOrDefault("WORKFLOW_MAX_CONNS", int64(w.MaxConns)))
	w.MaxIdleConns = int(parseIntOrDefault("WORKFLOW_MAX_IDLE_CONNS", int64(w.MaxIdleConns)))
	w.IdleConnTimeout = parseDurationOrDefault("WORKFLOW_IDLE_CONN_TIMEOUT", w.IdleConnTimeout)
	w.RateLimit = parseFloatOrDefault("WORKFLOW_RATE_LIMIT", w.RateLimit)
	w.RateBurst = int(parseIntOrDefault("WORKFLOW_RATE_BURST", int64(w.RateBurst)))
	w.ReportMarker = getEnvOrDefault("WORKFLOW_REPORT_MARKER", w.ReportMarker)

	s := &c.Storage
	s.Type = getEnvOrDefault("STORAGE_TYPE", s.Type)
	s.UploadDir = getEnvOrDefault("UPLOAD_DIR", s.UploadDir)
	s.AzureAccount = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", s.AzureAccount)
	s.AzureKey = getEnvOrDefault("AZURE_STORAGE_KEY", s.AzureKey)
	s.AzureContainer = getEnvOrDefault("AZURE_STORAGE_CONTAINER", s.AzureContainer)

	r := &c.Repository
	r.Type = getEnvOrDefault("REPOSITORY_TYPE", r.Type)
	r.MongoURI = getEnvOrDefault("MONGODB_URI", r.MongoURI)
	r.Database = getEnvOrDefault("MONGODB_DATABASE", r.Database)
	r.Collection = getEnvOrDefault("MONGODB_COLLECTION", r.Collection)
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", c.RequestTimeout)
	}

	w := c.Workflow
	if strings.TrimSpace(w.BaseURL) == "" {
		return fmt.Errorf("WORKFLOW_BASE_URL is required")
	}
	if w.ResponseMode != "blocking" && w.ResponseMode != "streaming" {
		return fmt.Errorf("WORKFLOW_RESPONSE_MODE must be blocking or streaming (got %q)", w.ResponseMode)
	}
	if w.MaxAttempts < 1 {
		return fmt.Errorf("WORKFLOW_MAX_ATTEMPTS must be >= 1 (got %d)", w.MaxAttempts)
	}
	if w.ConnectTimeout <= 0 || w.ReadTimeout <= 0 || w.WriteTimeout <= 0 || w.UploadTimeout <= 0 {
		return fmt.Errorf("workflow timeouts must be > 0 (got connect=%s, read=%s, write=%s, upload=%s)",
			w.ConnectTimeout, w.ReadTimeout, w.WriteTimeout, w.UploadTimeout)
	}
	// The workflow may run for minutes before the first byte arrives
	if w.ReadTimeout <= w.ConnectTimeout {
		return fmt.Errorf("WORKFLOW_READ_TIMEOUT (%s) must be larger than WORKFLOW_CONNECT_TIMEOUT (%s)",
			w.ReadTimeout, w.ConnectTimeout)
	}
	if w.BackoffBase < 0 {
		return fmt.Errorf("WORKFLOW_BACKOFF_BASE must be >= 0 (got %s)", w.BackoffBase)
	}
	if w.MaxConns < 1 {
		return fmt.Errorf("WORKFLOW_MAX_CONNS must be >= 1 (got %d)", w.MaxConns)
	}
	if w.RateLimit < 0 {
		return fmt.Errorf("WORKFLOW_RATE_LIMIT must be >= 0 (got %v)", w.RateLimit)
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for local storage")
		}
	case "azure":
		if c.Storage.AzureAccount == "" || c.Storage.AzureKey == "" || c.Storage.AzureContainer == "" {
			return fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_STORAGE_CONTAINER")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE: %q", c.Storage.Type)
	}

	switch c.Repository.Type {
	case "memory":
	case "mongo":
		if c.Repository.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for mongo repository")
		}
	default:
		return fmt.Errorf("unsupported REPOSITORY_TYPE: %q", c.Repository.Type)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
