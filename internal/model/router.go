package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/pkg/observability"
	"golang.org/x/time/rate"
)

// RouterConfig carries the tier-selection thresholds. Zero values are
// replaced with the defaults.
type RouterConfig struct {
	// CheapQualityThreshold is the minimum evidence quality for the cheap
	// tier; anything below it runs on the reasoning tier. Default 0.8.
	CheapQualityThreshold float64
	// LowConfidenceThreshold triggers a reasoning retry after a cheap run.
	// Default 0.55.
	LowConfidenceThreshold float64
	// TierRateLimit caps calls per second per tier. Zero disables limiting.
	TierRateLimit float64
	// RetryJitter bounds the sleep before a transient retry. Default 200ms.
	RetryJitter time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.CheapQualityThreshold == 0 {
		c.CheapQualityThreshold = 0.8
	}
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = 0.55
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = 200 * time.Millisecond
	}
	return c
}

// Selection is the deterministic input to tier choice.
type Selection struct {
	Complexity      claim.Complexity
	EvidenceQuality float64
	Privacy         bool
	// Previous is set on a retry after a low-confidence or failed run.
	// Escalation never downgrades and happens at most once.
	Previous Tier
}

// ErrEscalationExhausted is returned when a retry is requested beyond the
// top of the ladder.
var ErrEscalationExhausted = errors.New("model escalation exhausted")

// ErrNoBackend is returned when no backend is registered for a tier.
var ErrNoBackend = errors.New("no backend for tier")

// Router selects tiers and executes calls with the recovery policy:
// transient errors retry once with jitter, rate limits back off to the next
// tier, permanent errors fall through to local.
type Router struct {
	cfg      RouterConfig
	backends map[Tier]Backend
	limiters map[Tier]*rate.Limiter
	logger   *slog.Logger
}

// NewRouter creates a router over the given backends. All three tiers should
// be present in production; tests may register fewer.
func NewRouter(cfg RouterConfig, backends map[Tier]Backend, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	limiters := make(map[Tier]*rate.Limiter, len(backends))
	if cfg.TierRateLimit > 0 {
		for tier := range backends {
			limiters[tier] = rate.NewLimiter(rate.Limit(cfg.TierRateLimit), 1)
		}
	}
	return &Router{
		cfg:      cfg,
		backends: backends,
		limiters: limiters,
		logger:   logger.With("component", "model_router"),
	}
}

// LowConfidenceThreshold exposes the configured cheap-tier retry trigger.
func (r *Router) LowConfidenceThreshold() float64 { return r.cfg.LowConfidenceThreshold }

// Select picks a tier deterministically from the selection inputs.
func (r *Router) Select(sel Selection) (Tier, error) {
	if sel.Privacy {
		// Privacy bypasses the network entirely, including on retry.
		return TierLocal, nil
	}
	if sel.Previous != "" {
		next, ok := sel.Previous.Next()
		if !ok {
			return "", ErrEscalationExhausted
		}
		return next, nil
	}
	if sel.EvidenceQuality >= r.cfg.CheapQualityThreshold && sel.Complexity != claim.ComplexityComplex {
		return TierCheap, nil
	}
	return TierReasoning, nil
}

// Complete runs the prompt on the selected tier, applying the recovery
// ladder. It returns the response and the tier that actually served it.
func (r *Router) Complete(ctx context.Context, tier Tier, prompt string) (*Response, Tier, error) {
	var lastErr error
	for {
		resp, err := r.completeOnTier(ctx, tier, prompt)
		if err == nil {
			return resp, tier, nil
		}
		if ctx.Err() != nil {
			return nil, tier, ctx.Err()
		}
		lastErr = err

		switch KindOf(err) {
		case ErrTransient:
			// One jittered retry on the same tier, then treat as permanent.
			if sleepErr := r.jitterSleep(ctx); sleepErr != nil {
				return nil, tier, sleepErr
			}
			resp, retryErr := r.completeOnTier(ctx, tier, prompt)
			if retryErr == nil {
				return resp, tier, nil
			}
			lastErr = retryErr
		case ErrRateLimited:
			if sleepErr := r.jitterSleep(ctx); sleepErr != nil {
				return nil, tier, sleepErr
			}
		}

		next, ok := tier.Next()
		if !ok {
			return nil, tier, fmt.Errorf("all model tiers exhausted: %w", lastErr)
		}
		r.logger.Warn("falling through to next tier",
			slog.String("from", string(tier)),
			slog.String("to", string(next)),
			slog.String("error", lastErr.Error()))
		tier = next
	}
}

func (r *Router) completeOnTier(ctx context.Context, tier Tier, prompt string) (*Response, error) {
	backend, ok := r.backends[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, tier)
	}
	if lim, ok := r.limiters[tier]; ok {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := backend.Complete(ctx, prompt)
	elapsed := time.Since(start)
	observability.ModelCallDuration.WithLabelValues(string(tier)).Observe(elapsed.Seconds())
	if err != nil {
		observability.ModelCallsTotal.WithLabelValues(string(tier), string(KindOf(err))).Inc()
		return nil, err
	}
	observability.ModelCallsTotal.WithLabelValues(string(tier), "ok").Inc()
	if resp.Latency == 0 {
		resp.Latency = elapsed
	}
	return resp, nil
}

func (r *Router) jitterSleep(ctx context.Context) error {
	d := time.Duration(rand.Int63n(int64(r.cfg.RetryJitter) + 1))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
