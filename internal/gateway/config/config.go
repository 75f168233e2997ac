package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       string           `yaml:"port"`
	Env        string           `yaml:"env"`
	Session    SessionConfig    `yaml:"session"`
	SessionLog SessionLogConfig `yaml:"session_log"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	// AllowedOrigins restricts CORS; empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SessionConfig struct {
	MaxMessageBytes  int           `yaml:"max_message_bytes"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	MaxParked        int           `yaml:"max_parked"`
}

type SessionLogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	BoltPath    string `yaml:"bolt_path"`
}

type SnapshotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func defaults() Config {
	return Config{
		Port: ":8081",
		Env:  "local",
		Session: SessionConfig{
			MaxMessageBytes:  1_000_000,
			ReconnectTimeout: 30 * time.Second,
			MaxParked:        1024,
		},
		Snapshot: SnapshotConfig{
			Region: "us-east-1",
			Bucket: "livepage-snapshots",
			UseSSL: true,
		},
	}
}

// Load reads, in increasing precedence: built-in defaults, the YAML file
// named by LIVEPAGE_CONFIG, command line flags, then the environment (with
// .env loaded first).
func Load() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("LIVEPAGE_CONFIG")); path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	port := fs.String("port", cfg.Port, "server port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Port = normalizePort(*port)

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		cfg.Port = normalizePort(envPort)
	}
	cfg.Env = firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), cfg.Env, "local")
	if strings.EqualFold(cfg.Env, "local") {
		applyLocal(&cfg)
	}

	var err error
	if cfg.Session.MaxMessageBytes, err = envInt("LIVEPAGE_MAX_MESSAGE_BYTES", cfg.Session.MaxMessageBytes); err != nil {
		return nil, err
	}
	if cfg.Session.ReconnectTimeout, err = envDuration("LIVEPAGE_RECONNECT_TIMEOUT", cfg.Session.ReconnectTimeout); err != nil {
		return nil, err
	}
	if cfg.Session.MaxParked, err = envInt("LIVEPAGE_MAX_PARKED_SESSIONS", cfg.Session.MaxParked); err != nil {
		return nil, err
	}
	cfg.SessionLog.PostgresDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("SESSION_LOG_PG_DSN")), cfg.SessionLog.PostgresDSN)
	cfg.SessionLog.BoltPath = firstNonEmpty(strings.TrimSpace(os.Getenv("SESSION_LOG_BOLT_PATH")), cfg.SessionLog.BoltPath)
	loadSnapshotEnv(&cfg.Snapshot)
	if raw := strings.TrimSpace(os.Getenv("LIVEPAGE_ALLOWED_ORIGINS")); raw != "" {
		cfg.AllowedOrigins = strings.Split(raw, ",")
	}

	if cfg.Session.MaxMessageBytes <= 0 {
		return nil, fmt.Errorf("max message bytes must be positive, got %d", cfg.Session.MaxMessageBytes)
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadSnapshotEnv(s *SnapshotConfig) {
	s.Endpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_ENDPOINT")), s.Endpoint)
	s.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_REGION")), s.Region, "us-east-1")
	s.AccessKey = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_ACCESS_KEY")), s.AccessKey)
	s.SecretKey = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_SECRET_KEY")), s.SecretKey)
	s.Bucket = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_BUCKET")), s.Bucket)
	if raw := strings.TrimSpace(os.Getenv("SNAPSHOT_S3_USE_SSL")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			s.UseSSL = v
		}
	}
	s.Enabled = s.Enabled || strings.TrimSpace(s.Endpoint) != ""
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
