package dreamerauth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Audit event types emitted by the engine.
const (
	auditLoginSuccess     = "login.success"
	auditLoginFailure     = "login.failure"
	auditLoginLocked      = "login.locked"
	auditLoginRateLimited = "login.rate_limited"
	auditMFAChallenge     = "mfa.challenge"
	auditMFASuccess       = "mfa.success"
	auditMFAFailure       = "mfa.failure"
	auditMFAEnrolled      = "mfa.enrolled"
	auditRefreshSuccess   = "refresh.success"
	auditRefreshReuse     = "refresh.reuse_detected"
	auditLogout           = "logout"
	auditLogoutAll        = "logout.all"
	auditPasswordChanged  = "password.changed"
	auditRateLimited      = "rate_limited"
)

// AuditEvent is one structured security event.
type AuditEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Emit must be safe for
// concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers events on a channel for tests and custom pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// LogSink writes events through a zerolog logger, one line per event.
type LogSink struct {
	log zerolog.Logger
	mu  sync.Mutex
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.log.Info()
	if !event.Success {
		entry = s.log.Warn()
	}
	entry = entry.
		Str("event_type", event.EventType).
		Bool("success", event.Success).
		Time("at", event.Timestamp)
	if event.PrincipalID != "" {
		entry = entry.Str("principal_id", event.PrincipalID)
	}
	if event.SessionID != "" {
		entry = entry.Str("session_id", event.SessionID)
	}
	if event.IP != "" {
		entry = entry.Str("ip", event.IP)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		entry = entry.Str(k, v)
	}
	entry.Msg("audit")
}
