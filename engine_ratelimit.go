package dreamerauth

import (
	"context"
	"time"
)

// RateDecision is the outcome of a limit check, exposed for middleware
// that needs the headers.
type RateDecision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// CheckRateLimit spends one unit of the subject's budget for the named
// resource. Resources without a configured policy always allow. The tier
// scales capacity; empty tier means no scaling.
func (e *Engine) CheckRateLimit(ctx context.Context, resource, subject, tier string) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	policy, ok := e.ratePolicies[resource]
	if !ok {
		return RateDecision{Allowed: true}, nil
	}

	d, err := e.limiter.Allow(ctx, resource, subject, tier, policy)
	if err != nil {
		return RateDecision{Allowed: d.Allowed, Limit: d.Limit}, err
	}
	if !d.Allowed {
		e.metrics.Inc(MetricRateLimitHit)
		e.emitAudit(ctx, auditRateLimited, false, subject, "", ErrRateLimited, map[string]string{"resource": resource})
	}
	return RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
	}, nil
}

// checkRate is the internal deny-as-error form used by the auth flows.
func (e *Engine) checkRate(ctx context.Context, resource, subject, tier string) error {
	d, err := e.CheckRateLimit(ctx, resource, subject, tier)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return ErrRateLimited
	}
	return nil
}
