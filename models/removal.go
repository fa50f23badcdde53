package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Score removal request statuses.
const (
	RemovalPending   = "pending"
	RemovalEffective = "effective"
	RemovalWithdrawn = "withdrawn"
)

// ScoreRemovalRequest proposes excluding one judge's scores from a
// subcategory's tabulation. At most one pending or effective request exists
// per (judge_id, subcategory_id); see db.CreateTables.
type ScoreRemovalRequest struct {
	bun.BaseModel `bun:"table:score_removal_requests,alias:srr"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	JudgeID       int64      `bun:"judge_id,notnull" json:"judgeID"`
	SubcategoryID int64      `bun:"subcategory_id,notnull" json:"subcategoryID"`
	Reason        string     `bun:"reason,notnull" json:"reason"`
	InitiatedBy   int64      `bun:"initiated_by,notnull" json:"initiatedBy"`
	InitiatedAt   time.Time  `bun:"initiated_at,notnull" json:"initiatedAt"`
	Status        string     `bun:"status,notnull" json:"status"`
	EffectiveAt   *time.Time `bun:"effective_at" json:"effectiveAt,omitempty"`
	WithdrawnAt   *time.Time `bun:"withdrawn_at" json:"withdrawnAt,omitempty"`

	Signatures []*ScoreRemovalSignature `bun:"rel:has-many,join:id=request_id" json:"signatures"`
}

// ScoreRemovalSignature is one co-signature on a removal request.
type ScoreRemovalSignature struct {
	bun.BaseModel `bun:"table:score_removal_signatures,alias:srs"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	RequestID int64     `bun:"request_id,notnull,unique:score_removal_signatures_no_dupes" json:"requestID"`
	Role      string    `bun:"role,notnull,unique:score_removal_signatures_no_dupes" json:"role"`
	SignerID  int64     `bun:"signer_id,notnull" json:"signerID"`
	SignedAt  time.Time `bun:"signed_at,notnull" json:"signedAt"`
}
