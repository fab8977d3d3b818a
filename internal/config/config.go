package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"task-manager/internal/password"
	"task-manager/internal/ratelimit"
	"task-manager/internal/token"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level  string
		Format string
	}
	Auth struct {
		Secret           string
		Algorithm        string
		Issuer           string
		AccessTTLMinutes int
		RefreshTTLDays   int
		PasswordHasher   string
		BcryptCost       int
	}
	RateLimit struct {
		LoginLimit    int
		RegisterLimit int
		DefaultLimit  int
		WindowSeconds int
		SweepInterval time.Duration
	}
	CORS struct {
		Origins []string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("TASKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("database.path", "data/tasks.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.issuer", "task-manager")
	v.SetDefault("auth.accessttlminutes", 30)
	v.SetDefault("auth.refreshttldays", 7)
	v.SetDefault("auth.passwordhasher", password.AlgorithmArgon2id)
	v.SetDefault("auth.bcryptcost", 0)
	v.SetDefault("ratelimit.loginlimit", 5)
	v.SetDefault("ratelimit.registerlimit", 3)
	v.SetDefault("ratelimit.defaultlimit", 30)
	v.SetDefault("ratelimit.windowseconds", 60)
	v.SetDefault("ratelimit.sweepinterval", time.Minute)
	v.SetDefault("cors.origins", []string{
		"http://localhost",
		"http://localhost:3000",
		"http://localhost:80",
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:80",
	})

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth secret is required"))
	}
	if c.Auth.AccessTTLMinutes <= 0 {
		errs = append(errs, errors.New("auth access ttl must be positive"))
	}
	if c.Auth.RefreshTTLDays <= 0 {
		errs = append(errs, errors.New("auth refresh ttl must be positive"))
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.RegisterLimit <= 0 || c.RateLimit.DefaultLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("rate limit sweep interval must be positive"))
	}
	return errors.Join(errs...)
}

// TokenConfig maps the auth section onto the token service settings.
func (c Config) TokenConfig() token.Config {
	return token.Config{
		Secret:     c.Auth.Secret,
		Algorithm:  c.Auth.Algorithm,
		Issuer:     c.Auth.Issuer,
		AccessTTL:  time.Duration(c.Auth.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(c.Auth.RefreshTTLDays) * 24 * time.Hour,
	}
}

func (c Config) PasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Algorithm = c.Auth.PasswordHasher
	if c.Auth.BcryptCost != 0 {
		cfg.BcryptCost = c.Auth.BcryptCost
	}
	return cfg
}

// RateLimitConfig builds the policy table for the auth endpoints and the default.
func (c Config) RateLimitConfig() ratelimit.Config {
	window := time.Duration(c.RateLimit.WindowSeconds) * time.Second
	return ratelimit.Config{
		Policies: []ratelimit.Policy{
			{Path: "/api/auth/login", Limit: c.RateLimit.LoginLimit, Window: window},
			{Path: "/api/auth/register", Limit: c.RateLimit.RegisterLimit, Window: window},
		},
		Default: ratelimit.Policy{Limit: c.RateLimit.DefaultLimit, Window: window},
	}
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
