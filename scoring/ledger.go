package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/padraicbc/pageantapi/models"
)

// SubmitScoreInput is a judge's rating of one contestant on one criterion.
type SubmitScoreInput struct {
	CriterionID  int64   `json:"criterionID"`
	ContestantID int64   `json:"contestantID"`
	Score        float64 `json:"score"`
	Comments     *string `json:"comments,omitempty"`
}

// The conflict clause turns a duplicate natural key into an update, but only
// while the existing row is unsigned. A signed row yields no RETURNING row.
const upsertScoreSQL = `
INSERT INTO scores (subcategory_id, criterion_id, contestant_id, judge_id, score, comments, is_signed, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)
ON CONFLICT (judge_id, contestant_id, criterion_id) DO UPDATE
SET score = EXCLUDED.score, comments = EXCLUDED.comments, updated_at = EXCLUDED.updated_at
WHERE scores.is_signed = FALSE
RETURNING *
`

// SubmitScore creates or updates the caller's score for (contestant, criterion).
// Concurrent submissions for the same key resolve to a single row holding the
// last applied value. A signed score fails with ErrScoreLocked.
func (s *Service) SubmitScore(ctx context.Context, actor Identity, in SubmitScoreInput) (*models.Score, error) {
	score, err := s.submitScore(ctx, actor, in)
	var id int64
	if score != nil {
		id = score.ID
	}
	s.record(ctx, "score.submit", "score", id, actor, err)
	return score, err
}

func (s *Service) submitScore(ctx context.Context, actor Identity, in SubmitScoreInput) (*models.Score, error) {
	if err := actor.require(CapSubmitScore); err != nil {
		return nil, err
	}
	if in.CriterionID <= 0 || in.ContestantID <= 0 {
		return nil, validation("criterionID and contestantID are required")
	}
	if math.IsNaN(in.Score) || math.IsInf(in.Score, 0) {
		return nil, validation("score must be a finite number")
	}
	if in.Comments != nil {
		trimmed := strings.TrimSpace(*in.Comments)
		in.Comments = &trimmed
		if trimmed == "" {
			in.Comments = nil
		}
	}

	criterion, err := s.roster.Criterion(ctx, in.CriterionID)
	if err != nil {
		return nil, fmt.Errorf("load criterion %d: %w", in.CriterionID, err)
	}
	if criterion == nil {
		return nil, newError(CodeNotFound, fmt.Sprintf("criterion %d not found", in.CriterionID), nil)
	}
	if in.Score < 0 || in.Score > criterion.MaxScore {
		return nil, newError(CodeOutOfRange,
			fmt.Sprintf("score %g is outside 0..%g", in.Score, criterion.MaxScore),
			map[string]any{"min": 0, "max": criterion.MaxScore, "criterionID": criterion.ID},
		)
	}

	assigned, err := s.roster.IsJudgeAssigned(ctx, actor.UserID, criterion.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("check judge assignment: %w", err)
	}
	if !assigned {
		return nil, newError(CodePermissionDenied,
			fmt.Sprintf("judge %d is not assigned to subcategory %d", actor.UserID, criterion.SubcategoryID), nil)
	}
	contestants, err := s.roster.AssignedContestants(ctx, criterion.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load contestants: %w", err)
	}
	if !contains(contestants, in.ContestantID) {
		return nil, validation(fmt.Sprintf("contestant %d is not entered in subcategory %d", in.ContestantID, criterion.SubcategoryID))
	}

	now := s.timestamp()
	score := &models.Score{}
	err = s.db.NewRaw(upsertScoreSQL,
		criterion.SubcategoryID, criterion.ID, in.ContestantID, actor.UserID,
		in.Score, in.Comments, now, now,
	).Scan(ctx, score)
	if errors.Is(err, sql.ErrNoRows) {
		existing, lookupErr := s.findScoreByKey(ctx, actor.UserID, in.ContestantID, criterion.ID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil && existing.IsSigned {
			return nil, newError(CodeScoreLocked, fmt.Sprintf("score %d is signed; unsign it before editing", existing.ID),
				map[string]any{"scoreID": existing.ID})
		}
		return nil, errors.New("upsert score returned no row")
	}
	if err != nil {
		return nil, fmt.Errorf("upsert score: %w", err)
	}

	s.invalidate(ctx, criterion.SubcategoryID)
	return score, nil
}

func (s *Service) findScoreByKey(ctx context.Context, judgeID, contestantID, criterionID int64) (*models.Score, error) {
	score := &models.Score{}
	err := s.db.NewSelect().Model(score).
		Where("judge_id = ?", judgeID).
		Where("contestant_id = ?", contestantID).
		Where("criterion_id = ?", criterionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	return score, nil
}

// GroupBy selects how ListScores groups its rows.
type GroupBy string

const (
	GroupByContestant GroupBy = "contestant"
	GroupByJudge      GroupBy = "judge"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupByContestant, GroupByJudge:
		return g, nil
	case "":
		return GroupByContestant, nil
	}
	return "", validation(fmt.Sprintf("group_by must be %q or %q", GroupByContestant, GroupByJudge))
}

// ScoreGroup is the scores sharing one contestant or one judge.
type ScoreGroup struct {
	Key    int64          `json:"key"`
	Scores []models.Score `json:"scores"`
}

// ListScores is a read-only projection of a subcategory's ledger. Judges see
// only their own scores; roles that can view results see all of them.
func (s *Service) ListScores(ctx context.Context, actor Identity, subcategoryID int64, groupBy GroupBy) ([]ScoreGroup, error) {
	ownOnly := false
	if err := actor.require(CapViewResults); err != nil {
		if actor.require(CapSubmitScore) != nil {
			return nil, err
		}
		ownOnly = true
	}

	var order []string
	switch groupBy {
	case GroupByJudge:
		order = []string{"judge_id ASC", "contestant_id ASC", "criterion_id ASC"}
	case GroupByContestant:
		order = []string{"contestant_id ASC", "judge_id ASC", "criterion_id ASC"}
	default:
		return nil, validation(fmt.Sprintf("unknown grouping %q", groupBy))
	}

	var scores []models.Score
	q := s.db.NewSelect().Model(&scores).Where("subcategory_id = ?", subcategoryID)
	if ownOnly {
		q = q.Where("judge_id = ?", actor.UserID)
	}
	if err := q.Order(order...).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	groups := []ScoreGroup{}
	for _, sc := range scores {
		key := sc.ContestantID
		if groupBy == GroupByJudge {
			key = sc.JudgeID
		}
		if n := len(groups); n == 0 || groups[n-1].Key != key {
			groups = append(groups, ScoreGroup{Key: key})
		}
		groups[len(groups)-1].Scores = append(groups[len(groups)-1].Scores, sc)
	}
	return groups, nil
}
