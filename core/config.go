package core

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultTokenTTLSeconds is used when JWT_TTL_SECONDS is unset or not positive.
const DefaultTokenTTLSeconds = 3600

// defaultJWTSecret is the compiled-in placeholder; production refuses to start with it.
const defaultJWTSecret = "change-me-in-production"

// Config holds runtime settings for the API process.
// It is built once by Load and then only read, so it is shared by value.
type Config struct {
	Port        string `yaml:"port" envconfig:"PORT"`               // HTTP listen port (e.g., "8005")
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"` // development/production, added to every log line
	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" envconfig:"REDIS_URL"` // empty disables the login rate limiter

	DBMaxConns        int32         `yaml:"db_max_conns" envconfig:"DB_MAX_CONNS"`
	DBMinConns        int32         `yaml:"db_min_conns" envconfig:"DB_MIN_CONNS"`
	DBMaxConnLifetime time.Duration `yaml:"db_max_conn_lifetime" envconfig:"DB_MAX_CONN_LIFETIME"`
	DBMaxConnIdleTime time.Duration `yaml:"db_max_conn_idle_time" envconfig:"DB_MAX_CONN_IDLE_TIME"`

	LogDir    string `yaml:"log_dir" envconfig:"LOG_DIR"` // empty logs to stdout only
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"` // json or text

	JWTSecret     string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTTTLSeconds int    `yaml:"jwt_ttl_seconds" envconfig:"JWT_TTL_SECONDS"`

	ValidRoles     []string `yaml:"valid_roles" envconfig:"VALID_ROLES"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	TrustedProxies []string `yaml:"trusted_proxies" envconfig:"TRUSTED_PROXIES"` // IPs/CIDRs allowed to set X-Forwarded-For; empty trusts none

	PasswordIterations int `yaml:"password_iterations" envconfig:"PASSWORD_ITERATIONS"` // pbkdf2_sha256 rounds for new hashes

	LoginRateLimit  int           `yaml:"login_rate_limit" envconfig:"LOGIN_RATE_LIMIT"` // attempts per window and client, 0 disables
	LoginRateWindow time.Duration `yaml:"login_rate_window" envconfig:"LOGIN_RATE_WINDOW"`

	BootstrapAdminEnabled    bool   `yaml:"bootstrap_admin" envconfig:"BOOTSTRAP_ADMIN"`
	InitialAdminPasswordPath string `yaml:"initial_admin_password_path" envconfig:"INITIAL_ADMIN_PASSWORD_PATH"`
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		Port:               "8005",
		Environment:        "development",
		DBMaxConns:         10,
		DBMinConns:         1,
		DBMaxConnLifetime:  30 * time.Minute,
		DBMaxConnIdleTime:  5 * time.Minute,
		LogLevel:           "info",
		LogFormat:          "json",
		JWTSecret:          defaultJWTSecret,
		JWTTTLSeconds:      DefaultTokenTTLSeconds,
		ValidRoles:         RoleCodes(),
		PasswordIterations: DefaultPBKDF2Iterations,
		LoginRateLimit:     10,
		LoginRateWindow:    time.Minute,
	}
}

// Load populates Config from defaults, an optional YAML file (CONFIG_FILE) and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// No field carries a `default` tag, so only variables that are present override.
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.DatabaseURL = firstNonEmpty(cfg.DatabaseURL, os.Getenv("POSTGRES_URL"), databaseURLFromParts())
	cfg.JWTSecret = firstNonEmpty(os.Getenv("JWT_SECRET"), os.Getenv("BOLT_JWT_SECRET"), os.Getenv("SECRET_KEY"), cfg.JWTSecret)
	if _, set := os.LookupEnv("JWT_TTL_SECONDS"); !set {
		if v := os.Getenv("BOLT_JWT_EXPIRES_SECONDS"); v != "" {
			ttl, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid BOLT_JWT_EXPIRES_SECONDS %q: %w", v, err)
			}
			cfg.JWTTTLSeconds = ttl
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// validate normalizes derived fields and rejects settings the process cannot run with.
func (c *Config) validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %q", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.Environment == "production" && c.JWTSecret == defaultJWTSecret {
		return errors.New("jwt secret must be set in production")
	}
	if c.JWTTTLSeconds <= 0 {
		c.JWTTTLSeconds = DefaultTokenTTLSeconds
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("db_max_conns must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("db_min_conns must be in [0,%d], got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.PasswordIterations < 1 {
		return fmt.Errorf("password_iterations must be positive, got %d", c.PasswordIterations)
	}
	if c.LoginRateLimit > 0 && c.LoginRateWindow <= 0 {
		return fmt.Errorf("login_rate_window must be positive when login_rate_limit is set")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", p)
			}
		}
	}

	roles := make([]string, 0, len(c.ValidRoles))
	for _, r := range c.ValidRoles {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		roles = RoleCodes()
	}
	c.ValidRoles = roles
	return nil
}

// TokenTTL is the lifetime of issued access tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLSeconds) * time.Second
}

// databaseURLFromParts assembles a DSN from the discrete DB_* variables used by
// older deployments, defaulting to a local bolt_test database.
func databaseURLFromParts() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   firstNonEmpty(os.Getenv("DB_HOST"), "localhost") + ":" + firstNonEmpty(os.Getenv("DB_PORT"), "5432"),
		Path:   "/" + firstNonEmpty(os.Getenv("DB_NAME"), "bolt_test"),
	}
	user := firstNonEmpty(os.Getenv("DB_USER"), "postgres")
	if pw := os.Getenv("DB_PASSWORD"); pw != "" {
		u.User = url.UserPassword(user, pw)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
