// Package health aggregates component probes into the single flag served by
// GET /api/health.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthPinger can be implemented by components to expose a specialized
// health check. HealthPing must return nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// Checker is implemented by component-level checkers (store, sync loop).
type Checker interface {
	Name() string
	IsHealthy() bool
}

// Prober is a Checker that refreshes itself on an interval.
type Prober interface {
	Checker
	Start(ctx context.Context, interval time.Duration)
}

// Service aggregates component checkers into a single service health flag.
type Service struct {
	healthy atomic.Bool
	deps    []Checker
	log     zerolog.Logger
}

// NewService returns an aggregate that starts DOWN until the first evaluation.
func NewService(log zerolog.Logger, deps ...Checker) *Service {
	return &Service{deps: deps, log: log.With().Str("component", "health").Logger()}
}

// IsHealthy returns cached service health.
func (h *Service) IsHealthy() bool { return h.healthy.Load() }

// Components reports each dependency's cached state by name.
func (h *Service) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Start evaluates dependency health every interval, starting any Prober
// dependencies on their own goroutines, until ctx is done.
func (h *Service) Start(ctx context.Context, interval time.Duration) {
	for _, c := range h.deps {
		if p, ok := c.(Prober); ok {
			go p.Start(ctx, interval)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate()
		}
	}
}

func (h *Service) evaluate() {
	all := true
	for _, c := range h.deps {
		if !c.IsHealthy() {
			all = false
			h.log.Debug().Str("checker", c.Name()).Msg("dependency unhealthy")
		}
	}
	if prev := h.healthy.Swap(all); prev != all {
		if all {
			h.log.Info().Msg("service health: UP")
		} else {
			h.log.Error().Msg("service health: DOWN")
		}
	}
}

// PingChecker probes a HealthPinger with a bounded timeout.
type PingChecker struct {
	name    string
	target  HealthPinger
	timeout time.Duration
	healthy atomic.Bool
	log     zerolog.Logger
}

// NewPingChecker returns a checker that is unhealthy until its first successful probe.
func NewPingChecker(name string, target HealthPinger, log zerolog.Logger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PingChecker{name: name, target: target, timeout: timeout, log: log}
}

func (c *PingChecker) Name() string    { return c.name }
func (c *PingChecker) IsHealthy() bool { return c.healthy.Load() }

// Probe runs one ping and caches the result.
func (c *PingChecker) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.target.HealthPing(pctx); err != nil {
		c.log.Error().Stack().Str("checker", c.name).Err(err).Msg("health check failed")
		c.healthy.Store(false)
		return false
	}
	c.healthy.Store(true)
	return true
}

// Start probes immediately and then every interval until ctx is done.
func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}
