// Package anomaly watches audit events and rate-limit violations for
// suspicious volume and raises operator-facing log records. It never blocks
// requests.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/ratelimit"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

// Tracked actions beyond the audited ones.
const (
	ActionValidationFailure  = "validation_failure"
	ActionRateLimitViolation = "rate_limit_violation"
)

// Config holds windows and per-action thresholds.
type Config struct {
	ActionWindow       time.Duration
	ViolationWindow    time.Duration
	ViolationThreshold int
	Thresholds         map[string]int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ActionWindow:       time.Hour,
		ViolationWindow:    24 * time.Hour,
		ViolationThreshold: 20,
		Thresholds: map[string]int{
			string(services.ActionTestAPIKey):         10,
			ActionValidationFailure:                   5,
			string(services.ActionTranscribe):         60,
			string(services.ActionProviderCompletion): 200,
			string(services.ActionSaveAPIKey):         20,
		},
	}
}

// Monitor counts events per (principal, action) and rate-limit violations
// per IP over sliding windows.
type Monitor struct {
	cfg        Config
	actions    *ratelimit.Counter
	violations *ratelimit.Counter
	logger     *slog.Logger
}

// NewMonitor creates a Monitor. A nil clock uses time.Now.
func NewMonitor(cfg Config, logger *slog.Logger, clock ratelimit.Clock) *Monitor {
	if cfg.ActionWindow <= 0 {
		cfg.ActionWindow = time.Hour
	}
	if cfg.ViolationWindow <= 0 {
		cfg.ViolationWindow = 24 * time.Hour
	}
	return &Monitor{
		cfg:        cfg,
		actions:    ratelimit.NewCounter(cfg.ActionWindow, clock),
		violations: ratelimit.NewCounter(cfg.ViolationWindow, clock),
		logger:     logger,
	}
}

func actionKey(principal, action string) string {
	return principal + "|" + action
}

// Record counts one action by principal and raises an anomaly when the
// per-action threshold is exceeded. Actions without a threshold are counted
// but never raise.
func (m *Monitor) Record(principal, action string) {
	if principal == "" {
		principal = "anonymous"
	}
	count := m.actions.Add(actionKey(principal, action))

	threshold, ok := m.cfg.Thresholds[action]
	if !ok || threshold <= 0 || count <= threshold {
		return
	}
	m.raise(action, count, threshold, m.cfg.ActionWindow, "principal", principal)
}

// RecordRateLimitViolation counts a 429 issued to ip by tier.
func (m *Monitor) RecordRateLimitViolation(ip, tier string) {
	count := m.violations.Add(ip)
	if m.cfg.ViolationThreshold <= 0 || count <= m.cfg.ViolationThreshold {
		return
	}
	m.raise(ActionRateLimitViolation, count, m.cfg.ViolationThreshold, m.cfg.ViolationWindow, "ip", ip, "tier", tier)
}

// ObserveAudit feeds an audit event into the monitor. Rejected provider keys
// additionally count as validation failures.
func (m *Monitor) ObserveAudit(ev services.AuditEvent) {
	m.Record(ev.Principal, string(ev.Action))
	if ev.Status == services.AuditError && ev.Code == apperror.CodeProviderKeyRejected {
		m.Record(ev.Principal, ActionValidationFailure)
	}
}

// raise logs at warn up to twice the threshold and at error beyond it.
func (m *Monitor) raise(action string, count, threshold int, window time.Duration, attrs ...any) {
	level := slog.LevelWarn
	severity := "medium"
	if count >= 2*threshold {
		level = slog.LevelError
		severity = "high"
	}

	metrics.SecurityAnomalies.WithLabelValues(action).Inc()
	args := append([]any{
		"log_type", "security",
		"action", action,
		"count", count,
		"threshold", threshold,
		"window", window.String(),
		"severity", severity,
	}, attrs...)
	m.logger.Log(context.Background(), level, "security_anomaly", args...)
}

// Sweep drops empty buckets. It bounds memory only; counts are pruned on
// every access regardless.
func (m *Monitor) Sweep() int {
	return m.actions.Sweep() + m.violations.Sweep()
}

// Snapshot is a point-in-time view of the monitor's counters.
type Snapshot struct {
	Actions    map[string]int `json:"actions"`
	Violations map[string]int `json:"violations"`
}

// Snapshot returns the current non-zero counters.
func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		Actions:    m.actions.Counts(),
		Violations: m.violations.Counts(),
	}
}
