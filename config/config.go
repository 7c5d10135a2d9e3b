// Package config loads server configuration from YAML and environment.
package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/expense"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Routing  RoutingConfig  `yaml:"routing"`
	Currency CurrencyConfig `yaml:"currency"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// DatabaseConfig holds SQLite settings. ":memory:" keeps data in process.
type DatabaseConfig struct {
	Path     string `yaml:"path"      env:"DATABASE_PATH"      env-default:"expenses.db"`
	SeedDemo bool   `yaml:"seed_demo" env:"DATABASE_SEED_DEMO" env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// RoutingConfig holds approver ids and escalation thresholds.
// Thresholds are decimal strings in the base currency.
type RoutingConfig struct {
	AdminApproverID    string `yaml:"admin_approver_id"    env:"ROUTING_ADMIN_APPROVER_ID"    env-default:"usr_admin"`
	FinanceApproverID  string `yaml:"finance_approver_id"  env:"ROUTING_FINANCE_APPROVER_ID"  env-default:"usr_finance"`
	DirectorApproverID string `yaml:"director_approver_id" env:"ROUTING_DIRECTOR_APPROVER_ID" env-default:"usr_director"`
	FinanceThreshold   string `yaml:"finance_threshold"    env:"ROUTING_FINANCE_THRESHOLD"    env-default:"500"`
	DirectorThreshold  string `yaml:"director_threshold"   env:"ROUTING_DIRECTOR_THRESHOLD"   env-default:"1000"`
	ExhaustedPolicy    string `yaml:"exhausted_policy"     env:"ROUTING_EXHAUSTED_POLICY"     env-default:"hold"`
}

// CurrencyConfig holds exchange-rate settings. An empty RatesURL uses the
// built-in static table.
type CurrencyConfig struct {
	Base            string        `yaml:"base"             env:"CURRENCY_BASE"             env-default:"USD"`
	Mode            string        `yaml:"mode"             env:"CURRENCY_MODE"             env-default:"fallback"`
	RatesURL        string        `yaml:"rates_url"        env:"CURRENCY_RATES_URL"`
	CacheTTL        time.Duration `yaml:"cache_ttl"        env:"CURRENCY_CACHE_TTL"        env-default:"1h"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"CURRENCY_REFRESH_INTERVAL" env-default:"30m"`
	RequestTimeout  time.Duration `yaml:"request_timeout"  env:"CURRENCY_REQUEST_TIMEOUT"  env-default:"5s"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,PUT,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Accept,Content-Type"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"300"`
}

// ExpenseRouting converts the routing section for the expense engine.
// Call after Validate; unparsable thresholds become zero.
func (c *Config) ExpenseRouting() expense.RoutingConfig {
	finance, _ := decimal.NewFromString(c.Routing.FinanceThreshold)
	director, _ := decimal.NewFromString(c.Routing.DirectorThreshold)
	return expense.RoutingConfig{
		AdminApproverID:    c.Routing.AdminApproverID,
		FinanceApproverID:  c.Routing.FinanceApproverID,
		DirectorApproverID: c.Routing.DirectorApproverID,
		FinanceThreshold:   finance,
		DirectorThreshold:  director,
		BaseCurrency:       strings.ToUpper(c.Currency.Base),
	}
}

// Exhausted returns the configured policy for exhausted approver chains.
func (c *Config) Exhausted() expense.ExhaustedPolicy {
	return expense.ExhaustedPolicy(c.Routing.ExhaustedPolicy)
}

// Split turns a comma-separated setting into trimmed, non-empty parts.
func Split(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
