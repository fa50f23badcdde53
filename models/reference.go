package models

import "github.com/uptrace/bun"

// The tables in this file are reference data owned by the contest
// administration screens. The scoring subsystem only reads them.

// Subcategory is the unit of scoring and certification.
type Subcategory struct {
	bun.BaseModel `bun:"table:subcategories,alias:sc"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	CategoryID int64  `bun:"category_id,notnull" json:"categoryID"`
	Name       string `bun:"name,notnull" json:"name"`
}

// Criterion is one scored dimension within a subcategory.
type Criterion struct {
	bun.BaseModel `bun:"table:criteria,alias:cr"`

	ID            int64   `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64   `bun:"subcategory_id,notnull" json:"subcategoryID"`
	Name          string  `bun:"name,notnull" json:"name"`
	MaxScore      float64 `bun:"max_score,notnull" json:"maxScore"`
	Position      int     `bun:"position,notnull,default:0" json:"position"`
}

// SubcategoryJudge assigns a judge to a subcategory.
type SubcategoryJudge struct {
	bun.BaseModel `bun:"table:subcategory_judges,alias:sj"`

	ID            int64 `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64 `bun:"subcategory_id,notnull,unique:subcategory_judges_no_dupes" json:"subcategoryID"`
	JudgeID       int64 `bun:"judge_id,notnull,unique:subcategory_judges_no_dupes" json:"judgeID"`
}

// SubcategoryContestant enters a contestant into a subcategory.
type SubcategoryContestant struct {
	bun.BaseModel `bun:"table:subcategory_contestants,alias:sco"`

	ID            int64 `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64 `bun:"subcategory_id,notnull,unique:subcategory_contestants_no_dupes" json:"subcategoryID"`
	ContestantID  int64 `bun:"contestant_id,notnull,unique:subcategory_contestants_no_dupes" json:"contestantID"`
}
