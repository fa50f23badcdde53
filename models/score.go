package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Score is one judge's rating of one contestant on one criterion.
// (judge_id, contestant_id, criterion_id) is unique.
type Score struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64      `bun:"subcategory_id,notnull" json:"subcategoryID"`
	CriterionID   int64      `bun:"criterion_id,notnull,unique:scores_no_dupes" json:"criterionID"`
	ContestantID  int64      `bun:"contestant_id,notnull,unique:scores_no_dupes" json:"contestantID"`
	JudgeID       int64      `bun:"judge_id,notnull,unique:scores_no_dupes" json:"judgeID"`
	Score         float64    `bun:"score,notnull" json:"score"`
	Comments      *string    `bun:"comments" json:"comments,omitempty"`
	IsSigned      bool       `bun:"is_signed,notnull,default:false" json:"isSigned"`
	SignedAt      *time.Time `bun:"signed_at" json:"signedAt,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}
