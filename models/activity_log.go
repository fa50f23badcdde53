package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ActivityLog is one audit trail entry written by the audit sink.
type ActivityLog struct {
	bun.BaseModel `bun:"table:activity_logs,alias:al"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Action       string    `bun:"action,notnull" json:"action"`
	ResourceType string    `bun:"resource_type,notnull" json:"resourceType"`
	ResourceID   int64     `bun:"resource_id,notnull" json:"resourceID"`
	ActorID      int64     `bun:"actor_id,notnull" json:"actorID"`
	ActorRole    string    `bun:"actor_role,notnull" json:"actorRole"`
	Outcome      string    `bun:"outcome,notnull" json:"outcome"`
	Detail       *string   `bun:"detail" json:"detail,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
}
