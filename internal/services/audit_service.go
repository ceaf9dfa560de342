package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditAction names a sensitive action.
type AuditAction string

const (
	ActionSaveAPIKey         AuditAction = "save_api_key"
	ActionGetAPIKey          AuditAction = "get_api_key"
	ActionDeleteAPIKey       AuditAction = "delete_api_key"
	ActionTestAPIKey         AuditAction = "test_api_key"
	ActionProviderCompletion AuditAction = "provider_completion"
	ActionTranscribe         AuditAction = "transcribe"
)

// AuditStatus is the outcome recorded on an audit event.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditError   AuditStatus = "error"
)

// AuditEvent is an immutable record of one sensitive request.
type AuditEvent struct {
	Timestamp  time.Time
	Action     AuditAction
	Principal  string
	IP         string
	UserAgent  string
	Status     AuditStatus
	StatusCode int
	Code       string
	Detail     string
	RequestID  string
}

// AuditObserver receives every emitted event after it is logged.
type AuditObserver interface {
	ObserveAudit(ev AuditEvent)
}

// AuditService writes audit events to the audit log sink and fans them out
// to observers. Events are not retained in process.
type AuditService struct {
	logger *slog.Logger

	mu        sync.RWMutex
	observers []AuditObserver
}

// NewAuditService creates a new AuditService writing to logger.
func NewAuditService(logger *slog.Logger) *AuditService {
	return &AuditService{logger: logger}
}

// Subscribe registers an observer.
func (s *AuditService) Subscribe(o AuditObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Emit logs ev synchronously and notifies observers.
func (s *AuditService) Emit(ctx context.Context, ev AuditEvent) {
	level := slog.LevelInfo
	if ev.Status == AuditError {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", ev.Timestamp),
		slog.String("action", string(ev.Action)),
		slog.String("principal", ev.Principal),
		slog.String("ip", ev.IP),
		slog.String("user_agent", ev.UserAgent),
		slog.String("status", string(ev.Status)),
		slog.Int("status_code", ev.StatusCode),
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", ev.RequestID))
	}
	s.logger.LogAttrs(ctx, level, "audit_event", attrs...)

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, o := range observers {
		o.ObserveAudit(ev)
	}
}
