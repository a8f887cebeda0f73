package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, overridden by CATALOG_CONFIG.
const ConfigPath = "config.yaml"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	defaultPort              = "3000"
	defaultMongoURI          = "mongodb://localhost:27017"
	defaultMongoDatabase     = "library"
	defaultSessionTTL        = "24h"
	defaultSessionCookieName = "isAuthenticated"
	defaultLoginRateLimit    = 10
	devCredential            = "admin123"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	Environment             string   `yaml:"environment"`
	LogLevel                string   `yaml:"logLevel"`
	StoreDriver             string   `yaml:"storeDriver"`
	MongoURI                string   `yaml:"mongoURI"`
	MongoDatabase           string   `yaml:"mongoDatabase"`
	DatabaseURL             string   `yaml:"databaseURL"`
	AuthUsername            string   `yaml:"authUsername"`
	AuthPassword            string   `yaml:"authPassword"`
	SessionSecret           string   `yaml:"sessionSecret"`
	SessionTTL              string   `yaml:"sessionTTL"`
	SessionCookieName       string   `yaml:"sessionCookieName"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"` // 0 selects the default of 10
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
}

// IsProduction reports whether cookies must be Secure and secrets explicit.
func (c FileConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// IsDevelopment reports whether internal error messages may reach clients.
func (c FileConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// ResolvePath returns CATALOG_CONFIG when set, else ConfigPath.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("CATALOG_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides and defaults, then validates. A missing file is not an error so the
// service can run from environment variables alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("CATALOG_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("USERNAME_INITIAL"); v != "" {
		cfg.AuthUsername = v
	}
	if v := os.Getenv("PASSWORD_INITIAL"); v != "" {
		cfg.AuthPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CATALOG_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CATALOG_LOGIN_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.LoginRateLimitPerMinute = n
	}
	if v := os.Getenv("CATALOG_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("CATALOG_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	// Development must be asked for; an unset environment redacts errors and
	// gets no default credentials.
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMongo
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MongoURI == "" && cfg.StoreDriver == DriverMongo {
		cfg.MongoURI = defaultMongoURI
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaultMongoDatabase
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = defaultSessionCookieName
	}
	// Zero means unset. The login limiter is always on.
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginRateLimit
	}
	if !cfg.IsProduction() {
		if cfg.AuthUsername == "" {
			cfg.AuthUsername = devCredential
		}
		if cfg.AuthPassword == "" {
			cfg.AuthPassword = devCredential
		}
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("config: environment must be development, production or test, got %q", cfg.Environment)
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: port must be numeric, got %q", cfg.Port)
	}
	switch cfg.StoreDriver {
	case DriverMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return errors.New("config: mongoURI is required (set in config.yaml or MONGODB_URI)")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres driver (set in config.yaml or DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: storeDriver must be mongo, postgres or memory, got %q", cfg.StoreDriver)
	}
	if strings.TrimSpace(cfg.AuthUsername) == "" || cfg.AuthPassword == "" {
		return errors.New("config: authUsername and authPassword are required (set in config.yaml or USERNAME_INITIAL/PASSWORD_INITIAL)")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.SessionSecret) == "" {
		return errors.New("config: sessionSecret is required in production (set in config.yaml or JWT_SECRET)")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseSessionTTL parses the session lifetime. Empty input means 24h.
func ParseSessionTTL(ttl string) (time.Duration, error) {
	if strings.TrimSpace(ttl) == "" {
		return 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("config: invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: sessionTTL must be positive")
	}
	return dur, nil
}
