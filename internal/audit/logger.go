package audit

import (
	"context"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry represents a structured audit event.
type Entry struct {
	TenantID   *uuid.UUID
	UserID     *uuid.UUID
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Context    map[string]any
	OccurredAt time.Time
}

// Logger writes audit entries into the database.
type Logger struct {
	repo   *store.AuditRepo
	logger *zap.Logger
}

// New constructs a Logger.
func New(repo *store.AuditRepo, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, logger: logger}
}

// Record persists an audit entry, logging failures but not interrupting flows.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.Action == "" {
		return
	}
	rec := store.AuditRecord{
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Context:    entry.Context,
		OccurredAt: timeOrDefault(entry.OccurredAt),
	}
	if err := l.repo.Insert(ctx, rec); err != nil {
		l.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// ListRecent retrieves most recent entries for debugging/ops.
func (l *Logger) ListRecent(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	return l.repo.ListRecent(ctx, limit)
}

func timeOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
