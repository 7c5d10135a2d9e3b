/*
refresher.go - Background exchange-rate refresher

PURPOSE:
  Keeps the Converter's cache warm so request paths rarely wait on the
  rate source. Failures are logged and the previous table stays in place
  until its TTL runs out.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Refreshes once immediately on Start
  - Stop waits for the goroutine to exit

USAGE:
  r := currency.NewRefresher(converter, time.Hour, logger)
  r.Start()
  defer r.Stop()
*/
package currency

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher periodically refreshes a Converter's rate cache.
type Refresher struct {
	Converter *Converter
	Interval  time.Duration
	Timeout   time.Duration

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRefresher(c *Converter, interval time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{
		Converter: c,
		Interval:  interval,
		Timeout:   10 * time.Second,
		log:       log.With().Str("component", "rate-refresher").Logger(),
	}
}

// Start begins refreshing. Calling Start twice is a no-op.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil || r.Interval <= 0 {
		return
	}

	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.ticker.C, r.stop)

	r.log.Info().Dur("interval", r.Interval).Msg("Rate refresher started")
}

// Stop stops the refresher and waits for it to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.wg.Wait()
	r.ticker = nil
	r.log.Info().Msg("Rate refresher stopped")
}

func (r *Refresher) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer r.wg.Done()

	r.refresh()
	for {
		select {
		case <-tick:
			r.refresh()
		case <-stop:
			return
		}
	}
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	if err := r.Converter.Refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Rate refresh failed")
		return
	}
	r.log.Debug().Msg("Rates refreshed")
}
