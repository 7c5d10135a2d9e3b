package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Rates maps a currency code to units per one unit of the base currency.
type Rates map[string]decimal.Decimal

// RateSource supplies exchange rates relative to a base currency.
type RateSource interface {
	FetchRates(ctx context.Context, base string) (Rates, error)
}

// StaticRates is the built-in table used in fallback mode, quoted per USD.
func StaticRates() Rates {
	return Rates{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.79"),
		"CAD": decimal.RequireFromString("1.37"),
		"JPY": decimal.NewFromInt(157),
	}
}

// StaticSource serves a fixed table. Rates are quoted against Base.
type StaticSource struct {
	Base  string
	Table Rates
}

func NewStaticSource() *StaticSource {
	return &StaticSource{Base: "USD", Table: StaticRates()}
}

func (s *StaticSource) FetchRates(_ context.Context, base string) (Rates, error) {
	if base == s.Base {
		return s.Table.clone(), nil
	}
	// Rebase the table so rates are quoted per unit of base.
	pivot, ok := s.Table[base]
	if !ok || pivot.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, base)
	}
	out := make(Rates, len(s.Table))
	for code, r := range s.Table {
		out[code] = r.Div(pivot)
	}
	return out, nil
}

// HTTPSource fetches rates from an exchangerate-api style endpoint that
// answers GET {BaseURL}/{base} with {"rates": {"EUR": 0.92, ...}}.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) FetchRates(ctx context.Context, base string) (Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/"+base, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("fetch rates: empty rate table")
	}
	return Rates(body.Rates), nil
}

func (r Rates) clone() Rates {
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
