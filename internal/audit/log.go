package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"camguard.dev/internal/auth"
	"camguard.dev/internal/ids"
	"camguard.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log line enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", id.UserID))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))
	obs.Logger().Info("audit", zf...)
	return nil
}

// Entry is a persisted audit_logs row.
type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	TenantID     string         `json:"tenant_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Sink persists audit entries.
type Sink interface {
	AppendAudit(ctx context.Context, e Entry) error
}

// Recorder logs audit entries and, when a sink is configured, persists them.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder returns a Recorder. sink may be nil.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Prepare fills the id, timestamp and user of e from ctx where missing.
func (r *Recorder) Prepare(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock().UTC()
	}
	if e.UserID == "" {
		if id, ok := auth.IdentityFromContext(ctx); ok {
			e.UserID = id.UserID
		}
	}
	return e
}

// Record writes e to the log and the sink. A sink failure is logged and
// returned; the log line is always written.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil {
		return nil
	}
	e = r.Prepare(ctx, e)
	fields := map[string]any{
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
	}
	if e.TenantID != "" {
		fields["tenant_id"] = e.TenantID
	}
	for k, v := range e.Metadata {
		fields[k] = v
	}
	if err := LogEvent(ctx, e.Action, fields); err != nil {
		return err
	}
	if r.sink == nil {
		return nil
	}
	if err := r.sink.AppendAudit(ctx, e); err != nil {
		obs.Logger().Error("audit persist failed", zap.String("action", e.Action), zap.Error(err))
		return err
	}
	return nil
}

func (r *Recorder) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}
