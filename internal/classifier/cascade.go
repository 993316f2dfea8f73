// Package classifier implements the multi-tier classification cascade: a
// fast local scene classifier, a legacy local fallback, and a remote
// vision-capable model. Tiers are attempted in order until one yields a
// decisive result; the cascade itself never returns an error.
package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
	"github.com/gymcheck/gymcheck-go/internal/logging"
	"github.com/gymcheck/gymcheck-go/internal/observability"
)

// Tier is one classifier implementation attempted in cascade order.
// Classify reports the result, whether that result is decisive, and any
// failure. A tier may succeed yet flag its result non-decisive; the cascade
// then advances but keeps the result as a fallback candidate.
type Tier interface {
	Name() string
	Enabled() bool
	Classify(ctx context.Context, img *imagecheck.Checked) (Result, bool, error)
}

// Cascade attempts its tiers in fixed order. Safe for concurrent use when
// its tiers are.
type Cascade struct {
	tiers   []Tier
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewCascade builds a cascade over the given tiers in attempt order.
func NewCascade(metrics *observability.Metrics, tiers ...Tier) *Cascade {
	return &Cascade{
		tiers:   tiers,
		log:     logging.ForService("classifier"),
		metrics: metrics,
	}
}

// Classify runs the cascade. It always returns a usable result: the first
// decisive tier result, else the last non-decisive result seen, else the
// canonical uncertain result. The returned failure list holds one
// human-readable reason per failed tier, suitable for logging and audit.
func (c *Cascade) Classify(ctx context.Context, img *imagecheck.Checked) (Result, []string) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveCascade(time.Since(start).Seconds())
	}()

	var failures []string
	var fallback *Result

	for _, tier := range c.tiers {
		if !tier.Enabled() {
			c.metrics.RecordTier(tier.Name(), "skipped")
			c.log.Debug("tier disabled, skipping", "tier", tier.Name())
			continue
		}

		c.log.Debug("attempting tier", "tier", tier.Name())
		result, decisive, err := tier.Classify(ctx, img)
		if err != nil {
			c.metrics.RecordTier(tier.Name(), "failure")
			c.metrics.RecordFallback()
			failures = append(failures, tier.Name()+": "+err.Error())
			c.log.Warn("tier failed, advancing cascade",
				"tier", tier.Name(),
				"error", err)
			continue
		}

		c.metrics.RecordTier(tier.Name(), "success")
		if decisive {
			c.log.Info("tier produced decisive result",
				"tier", tier.Name(),
				"label", result.Label,
				"confidence", result.Confidence)
			return result, failures
		}

		// Keep the most recent non-decisive result in case every later
		// tier fails outright.
		r := result
		fallback = &r
		c.metrics.RecordFallback()
		c.log.Debug("tier result non-decisive, advancing",
			"tier", tier.Name(),
			"label", result.Label)
	}

	if fallback != nil {
		return *fallback, failures
	}

	c.log.Warn("all classifier tiers failed", "failures", failures)
	return Uncertain(), failures
}
