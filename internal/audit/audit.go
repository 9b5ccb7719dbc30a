// Package audit records security-relevant events — logins, token rotation,
// password resets, service registration — as an immutable trail separate
// from ordinary application logging.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit entry.
type EventType string

const (
	EventLoginSuccess      EventType = "LOGIN_SUCCESS"
	EventLoginFailed       EventType = "LOGIN_FAILED"
	EventLogout            EventType = "LOGOUT"
	EventTokenRefreshed    EventType = "TOKEN_REFRESHED"
	EventTokenReuseNuked   EventType = "TOKEN_REUSE_FAMILY_REVOKED"
	EventPasswordReset     EventType = "PASSWORD_RESET"
	EventServiceRegistered EventType = "SERVICE_REGISTERED"
)

// Entry is a single audit record.
type Entry struct {
	ActorID  uuid.UUID
	TargetID uuid.UUID
	Action   EventType
	Metadata map[string]string
}

// Logger is the contract every component calls to record an event.
// Implementations never return an error — an audit failure must not abort
// the operation being audited; a logging-layer failure is itself logged.
type Logger interface {
	Log(ctx context.Context, entry Entry)
}

// SlogLogger writes structured entries through a dedicated slog handler,
// tagged so log aggregators can route audit entries to a separate index
// from ordinary application logs.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger builds a SlogLogger over logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Log(ctx context.Context, entry Entry) {
	fields := []interface{}{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("actor_id", entry.ActorID.String()),
		slog.String("target_id", entry.TargetID.String()),
		slog.String("action", string(entry.Action)),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	for k, v := range entry.Metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}
