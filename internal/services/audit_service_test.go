package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	events []AuditEvent
}

func (r *recordingObserver) ObserveAudit(ev AuditEvent) {
	r.events = append(r.events, ev)
}

func TestAuditService_EmitLogsAndNotifies(t *testing.T) {
	var buf bytes.Buffer
	svc := NewAuditService(slog.New(slog.NewJSONHandler(&buf, nil)))
	obs := &recordingObserver{}
	svc.Subscribe(obs)

	ev := AuditEvent{
		Timestamp:  time.Now(),
		Action:     ActionSaveAPIKey,
		Principal:  "user-1",
		IP:         "203.0.113.7",
		UserAgent:  "test",
		Status:     AuditError,
		StatusCode: 400,
		Code:       "PROVIDER_KEY_REJECTED",
		Detail:     "status 400: PROVIDER_KEY_REJECTED",
	}
	svc.Emit(context.Background(), ev)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit_event", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "save_api_key", record["action"])
	assert.Equal(t, "status 400: PROVIDER_KEY_REJECTED", record["detail"])

	require.Len(t, obs.events, 1)
	assert.Equal(t, ev, obs.events[0])
}
