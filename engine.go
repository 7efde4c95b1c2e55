package dreamerauth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/internal/guard"
	"github.com/cuzo151/dreamer-auth/internal/rate"
	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/kv"
	"github.com/cuzo151/dreamer-auth/mfa"
	"github.com/cuzo151/dreamer-auth/password"
	"github.com/cuzo151/dreamer-auth/permission"
	"github.com/cuzo151/dreamer-auth/session"
)

// Engine is the authentication core. Construct it through Builder; a zero
// Engine is not usable. All methods are safe for concurrent use.
type Engine struct {
	config      Config
	log         zerolog.Logger
	store       kv.Store
	users       UserProvider
	vault       *password.Vault
	tokens      *jwt.Manager
	sessions    *session.Registry
	guard       *guard.LoginGuard
	limiter     *rate.Limiter
	mfa         *mfa.Coordinator
	permissions *permission.Registry
	audit       *auditDispatcher
	metrics     *Metrics

	ratePolicies map[string]rate.Policy
}

// Close stops the secret rotation ticker and drains the audit queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.tokens != nil {
		e.tokens.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot copies the engine counters for exporters. Disabled
// metrics yield empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// RotateSecret forces an immediate signing secret rotation.
func (e *Engine) RotateSecret() error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return e.tokens.Rotate()
}

// Sessions lists the principal's live sessions.
func (e *Engine) Sessions(ctx context.Context, principalID string) ([]*Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessions.List(ctx, principalID)
}

// HasPermission reports whether the role holds the named permission.
// Returns ErrEngineNotReady when no permission registry was configured.
func (e *Engine) HasPermission(role, perm string) (bool, error) {
	if e == nil || e.permissions == nil {
		return false, ErrEngineNotReady
	}
	return e.permissions.Allowed(role, perm)
}

// RequirePermission is HasPermission with a sentinel result for guard
// chains.
func (e *Engine) RequirePermission(role, perm string) error {
	ok, err := e.HasPermission(role, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// Unlock clears a login lockout, for administrative resets.
func (e *Engine) Unlock(ctx context.Context, principalID string) error {
	if e == nil || e.guard == nil {
		return ErrEngineNotReady
	}
	return e.guard.Unlock(ctx, principalID)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, principalID, sessionID string, cause error, metadata map[string]string) {
	if e == nil {
		return
	}
	if id, ok := metricForAudit[eventType]; ok {
		e.metrics.Inc(id)
	}
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:   time.Now(),
		EventType:   eventType,
		PrincipalID: principalID,
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}
