/*
Package currency normalizes expense amounts to a base currency.

PURPOSE:
  The approval router compares amounts against thresholds in the base
  currency (USD). This package owns the exchange-rate table, its cache, and
  the policy for what happens when live rates cannot be fetched.

MODES:
  strict   - A failing rate source is an error (ErrRatesUnavailable).
             The caller decides whether to retry.
  fallback - A failing rate source is logged and the built-in static table
             is used. Every Conversion says which table it came from
             (SourceLive / SourceStatic), so a fallback is never silent.

CACHING:
  Live rates are cached for TTL. Concurrent cache misses share one fetch
  (singleflight). Fallback tables are not cached, so the next call retries
  the live source.

CONVERSION:
  amount / rate[from] * rate[to], rounded to 2 decimal places.
  Same currency is the identity. Unknown codes fail with
  ErrUnsupportedCurrency in both modes.

SEE ALSO:
  - source.go:    Rate sources (static table, HTTP)
  - refresher.go: Background cache refresh
*/
package currency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnsupportedCurrency is returned for a currency code with no rate.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrRatesUnavailable is returned in strict mode when the rate source fails.
	ErrRatesUnavailable = errors.New("exchange rates unavailable")
)

type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeFallback Mode = "fallback"
)

func (m Mode) IsValid() bool { return m == ModeStrict || m == ModeFallback }

// Source identifies which rate table produced a conversion.
type Source string

const (
	SourceLive   Source = "live"
	SourceStatic Source = "static"
)

// Conversion is a converted amount and where its rate came from.
type Conversion struct {
	Amount   decimal.Decimal
	Currency string
	Source   Source
}

// Options configure a Converter.
type Options struct {
	Base     string
	Mode     Mode
	TTL      time.Duration
	Fallback Rates // defaults to StaticRates()
	Logger   zerolog.Logger
	Now      func() time.Time

	// FetchTimeout bounds a shared fetch, which outlives any one caller.
	// Defaults to 10s.
	FetchTimeout time.Duration
}

// Converter converts amounts between currencies using cached rates.
type Converter struct {
	source   RateSource
	base     string
	mode     Mode
	ttl      time.Duration
	fallback Rates
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	rates     Rates
	fetchedAt time.Time
	group     singleflight.Group
}

func NewConverter(source RateSource, opts Options) *Converter {
	if opts.Base == "" {
		opts.Base = "USD"
	}
	if opts.Mode == "" {
		opts.Mode = ModeStrict
	}
	if opts.Fallback == nil {
		opts.Fallback = StaticRates()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Converter{
		source:   source,
		base:     opts.Base,
		mode:     opts.Mode,
		ttl:      opts.TTL,
		fallback: opts.Fallback,
		timeout:  opts.FetchTimeout,
		log:      opts.Logger.With().Str("component", "currency").Logger(),
		now:      opts.Now,
	}
}

// Base returns the base currency code.
func (c *Converter) Base() string { return c.base }

// Rates returns the current rate table and its source.
func (c *Converter) Rates(ctx context.Context) (Rates, Source, error) {
	if rates, ok := c.cached(); ok {
		return rates, SourceLive, nil
	}

	v, err, _ := c.group.Do(c.base, func() (any, error) {
		if rates, ok := c.cached(); ok {
			return rates, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		rates, err := c.source.FetchRates(fetchCtx, c.base)
		if err != nil {
			return nil, err
		}
		c.store(rates)
		return rates, nil
	})
	if err == nil {
		return v.(Rates), SourceLive, nil
	}

	if c.mode == ModeFallback {
		c.log.Warn().Err(err).Str("base", c.base).Msg("Rate source failed; using static rates")
		return c.fallback, SourceStatic, nil
	}
	return nil, "", fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
}

// Refresh fetches rates unconditionally and replaces the cache.
func (c *Converter) Refresh(ctx context.Context) error {
	rates, err := c.source.FetchRates(ctx, c.base)
	if err != nil {
		return err
	}
	c.store(rates)
	return nil
}

// Convert converts amount from one currency to another.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	from, to = normalize(from), normalize(to)

	rates, src, err := c.Rates(ctx)
	if err != nil {
		return Conversion{}, err
	}

	rateFrom, ok := rates[from]
	if !ok || !rateFrom.IsPositive() {
		return Conversion{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, from)
	}
	rateTo, ok := rates[to]
	if !ok || !rateTo.IsPositive() {
		return Conversion{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, to)
	}

	if from == to {
		return Conversion{Amount: amount, Currency: to, Source: src}, nil
	}

	converted := amount.Div(rateFrom).Mul(rateTo).Round(2)
	return Conversion{Amount: converted, Currency: to, Source: src}, nil
}

// ConvertToBase converts amount to the base currency.
func (c *Converter) ConvertToBase(ctx context.Context, amount decimal.Decimal, from string) (Conversion, error) {
	return c.Convert(ctx, amount, from, c.base)
}

// Supported returns the sorted currency codes of the current rate table.
func (c *Converter) Supported(ctx context.Context) ([]string, error) {
	rates, _, err := c.Rates(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (c *Converter) cached() (Rates, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rates == nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.rates, true
}

func (c *Converter) store(rates Rates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = rates
	c.fetchedAt = c.now()
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
