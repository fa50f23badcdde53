package audit

import (
	"context"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/pageantapi/models"
)

// DBSink writes entries to the activity_logs table.
type DBSink struct {
	db bun.IDB
}

func NewDBSink(db bun.IDB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Log(ctx context.Context, e Entry) error {
	row := &models.ActivityLog{
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		Outcome:      e.Outcome,
		CreatedAt:    e.At,
	}
	if e.Detail != "" {
		detail := e.Detail
		row.Detail = &detail
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// LogSink writes entries to a zap logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("audit")}
}

func (s *LogSink) Log(_ context.Context, e Entry) error {
	s.log.Info(e.Action,
		zap.String("resource_type", e.ResourceType),
		zap.Int64("resource_id", e.ResourceID),
		zap.Int64("actor_id", e.ActorID),
		zap.String("actor_role", e.ActorRole),
		zap.String("outcome", e.Outcome),
		zap.String("detail", e.Detail),
		zap.Time("at", e.At),
	)
	return nil
}
