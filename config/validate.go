package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
	"github.com/warp/expense-engine/expense"
)

var currencyCode = regexp.MustCompile(`^[A-Za-z]{3}$`)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "console" {
		return fmt.Errorf("log.format must be json or console (got %q)", c.Log.Format)
	}
	if err := c.Routing.validate(); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if err := c.Currency.validate(); err != nil {
		return fmt.Errorf("currency: %w", err)
	}
	return nil
}

func (r *RoutingConfig) validate() error {
	if r.AdminApproverID == "" {
		return fmt.Errorf("admin_approver_id is required")
	}
	if r.FinanceApproverID == "" {
		return fmt.Errorf("finance_approver_id is required")
	}
	if r.DirectorApproverID == "" {
		return fmt.Errorf("director_approver_id is required")
	}

	finance, err := decimal.NewFromString(r.FinanceThreshold)
	if err != nil {
		return fmt.Errorf("finance_threshold %q: %w", r.FinanceThreshold, err)
	}
	director, err := decimal.NewFromString(r.DirectorThreshold)
	if err != nil {
		return fmt.Errorf("director_threshold %q: %w", r.DirectorThreshold, err)
	}
	if !finance.IsPositive() {
		return fmt.Errorf("finance_threshold must be > 0 (got %s)", finance)
	}
	if director.LessThan(finance) {
		return fmt.Errorf("director_threshold (%s) must be >= finance_threshold (%s)", director, finance)
	}

	if !expense.ExhaustedPolicy(r.ExhaustedPolicy).IsValid() {
		return fmt.Errorf("exhausted_policy must be hold, approve or reject (got %q)", r.ExhaustedPolicy)
	}
	return nil
}

func (c *CurrencyConfig) validate() error {
	if !currencyCode.MatchString(c.Base) {
		return fmt.Errorf("base must be a 3-letter code (got %q)", c.Base)
	}
	if !currency.Mode(c.Mode).IsValid() {
		return fmt.Errorf("mode must be strict or fallback (got %q)", c.Mode)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be >= 0 (got %s)", c.CacheTTL)
	}
	return nil
}
