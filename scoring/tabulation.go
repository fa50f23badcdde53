package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Totals is the aggregate of a contestant's counted scores. Values are kept
// at full precision; DisplayPercentage is the only rounding step.
type Totals struct {
	ContestantID     int64   `json:"contestantID"`
	SubcategoryID    int64   `json:"subcategoryID,omitempty"`
	CategoryID       int64   `json:"categoryID,omitempty"`
	TotalScore       float64 `json:"totalScore"`
	MaxPossibleScore float64 `json:"maxPossibleScore"`
	Percentage       float64 `json:"percentage"`
	ScoreCount       int     `json:"scoreCount"`
}

// DisplayPercentage rounds Percentage to one decimal place.
func (t Totals) DisplayPercentage() float64 {
	return math.Round(t.Percentage*10) / 10
}

func (t *Totals) add(score, maxScore float64) {
	t.TotalScore += score
	t.MaxPossibleScore += maxScore
	t.ScoreCount++
}

func (t *Totals) finish() {
	if t.MaxPossibleScore == 0 {
		t.Percentage = 0
		return
	}
	t.Percentage = t.TotalScore * 100 / t.MaxPossibleScore
}

// Standing is one row of a ranking. Contestants with equal totals share a
// rank and are listed by ascending contestant id.
type Standing struct {
	Rank int `json:"rank"`
	Totals
}

// Counted scores are signed and do not belong to a judge with an effective
// removal in the same subcategory. The fixed ORDER BY makes the summation
// order, and so the floating point result, reproducible.
const countedScoresSQL = `
SELECT s.contestant_id, s.judge_id, s.criterion_id, s.score, c.max_score
FROM scores AS s
JOIN criteria AS c ON c.id = s.criterion_id
WHERE s.subcategory_id = ? AND s.is_signed = TRUE
  AND NOT EXISTS (
    SELECT 1 FROM score_removal_requests AS r
    WHERE r.judge_id = s.judge_id AND r.subcategory_id = s.subcategory_id AND r.status = 'effective'
  )
`

type countedScore struct {
	ContestantID int64   `bun:"contestant_id"`
	JudgeID      int64   `bun:"judge_id"`
	CriterionID  int64   `bun:"criterion_id"`
	Score        float64 `bun:"score"`
	MaxScore     float64 `bun:"max_score"`
}

func loadCountedScores(ctx context.Context, db bun.IDB, subcategoryID int64, contestantID *int64) ([]countedScore, error) {
	q := countedScoresSQL
	args := []interface{}{subcategoryID}
	if contestantID != nil {
		q += "  AND s.contestant_id = ?\n"
		args = append(args, *contestantID)
	}
	q += "ORDER BY s.contestant_id, s.judge_id, s.criterion_id"

	var rows []countedScore
	if err := db.NewRaw(q, args...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("load counted scores: %w", err)
	}
	return rows, nil
}

// CalculateContestantTotal aggregates a contestant's counted scores in a
// subcategory.
func (s *Service) CalculateContestantTotal(ctx context.Context, actor Identity, contestantID, subcategoryID int64) (Totals, error) {
	if err := actor.require(CapViewResults); err != nil {
		return Totals{}, err
	}
	if contestantID <= 0 || subcategoryID <= 0 {
		return Totals{}, validation("contestantID and subcategoryID are required")
	}

	field := fmt.Sprintf("contestant:%d", contestantID)
	var out Totals
	err := s.cached(ctx, subcategoryID, field, &out, func() (any, error) {
		rows, err := loadCountedScores(ctx, s.db, subcategoryID, &contestantID)
		if err != nil {
			return nil, err
		}
		t := Totals{ContestantID: contestantID, SubcategoryID: subcategoryID}
		for _, r := range rows {
			t.add(r.Score, r.MaxScore)
		}
		t.finish()
		return t, nil
	})
	return out, err
}

// SubcategoryRanking ranks every contestant entered in the subcategory,
// including those without counted scores.
func (s *Service) SubcategoryRanking(ctx context.Context, actor Identity, subcategoryID int64) ([]Standing, error) {
	if err := actor.require(CapViewResults); err != nil {
		return nil, err
	}
	return s.subcategoryRanking(ctx, subcategoryID)
}

func (s *Service) subcategoryRanking(ctx context.Context, subcategoryID int64) ([]Standing, error) {
	if subcategoryID <= 0 {
		return nil, validation("subcategoryID is required")
	}
	var out []Standing
	err := s.cached(ctx, subcategoryID, "ranking", &out, func() (any, error) {
		contestants, err := s.roster.AssignedContestants(ctx, subcategoryID)
		if err != nil {
			return nil, fmt.Errorf("load contestants: %w", err)
		}
		rows, err := loadCountedScores(ctx, s.db, subcategoryID, nil)
		if err != nil {
			return nil, err
		}

		byContestant := make(map[int64]*Totals, len(contestants))
		for _, id := range contestants {
			byContestant[id] = &Totals{ContestantID: id, SubcategoryID: subcategoryID}
		}
		for _, r := range rows {
			t, ok := byContestant[r.ContestantID]
			if !ok {
				// Scored but no longer entered; still shown.
				t = &Totals{ContestantID: r.ContestantID, SubcategoryID: subcategoryID}
				byContestant[r.ContestantID] = t
			}
			t.add(r.Score, r.MaxScore)
		}

		totals := make([]Totals, 0, len(byContestant))
		for _, t := range byContestant {
			t.finish()
			totals = append(totals, *t)
		}
		return rank(totals), nil
	})
	return out, err
}

// CategoryRanking sums each contestant's subcategory totals across every
// subcategory of the category and ranks the sums.
func (s *Service) CategoryRanking(ctx context.Context, actor Identity, categoryID int64) ([]Standing, error) {
	if err := actor.require(CapViewResults); err != nil {
		return nil, err
	}
	if categoryID <= 0 {
		return nil, validation("categoryID is required")
	}
	subs, err := s.roster.Subcategories(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load subcategories: %w", err)
	}

	byContestant := map[int64]*Totals{}
	for _, sub := range subs {
		standings, err := s.subcategoryRanking(ctx, sub)
		if err != nil {
			return nil, err
		}
		for _, st := range standings {
			t, ok := byContestant[st.ContestantID]
			if !ok {
				t = &Totals{ContestantID: st.ContestantID, CategoryID: categoryID}
				byContestant[st.ContestantID] = t
			}
			t.TotalScore += st.TotalScore
			t.MaxPossibleScore += st.MaxPossibleScore
			t.ScoreCount += st.ScoreCount
		}
	}

	totals := make([]Totals, 0, len(byContestant))
	for _, t := range byContestant {
		t.finish()
		totals = append(totals, *t)
	}
	return rank(totals), nil
}

// rank orders totals by TotalScore descending, then ContestantID ascending,
// and assigns competition ranks (1, 1, 3).
func rank(totals []Totals) []Standing {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].TotalScore != totals[j].TotalScore {
			return totals[i].TotalScore > totals[j].TotalScore
		}
		return totals[i].ContestantID < totals[j].ContestantID
	})
	out := make([]Standing, len(totals))
	for i, t := range totals {
		r := i + 1
		if i > 0 && t.TotalScore == totals[i-1].TotalScore {
			r = out[i-1].Rank
		}
		out[i] = Standing{Rank: r, Totals: t}
	}
	return out
}

// cached serves dst from the tabulation cache or fills it from compute.
// Cache failures fall back to computing.
func (s *Service) cached(ctx context.Context, subcategoryID int64, field string, dst any, compute func() (any, error)) error {
	gen, genErr := s.cache.Generation(ctx, subcategoryID)
	if genErr == nil {
		b, ok, err := s.cache.Get(ctx, subcategoryID, gen, field)
		if err == nil && ok && json.Unmarshal(b, dst) == nil {
			return nil
		}
		if err != nil {
			s.log.Warn("tabulation cache read failed", zap.Int64("subcategory_id", subcategoryID), zap.Error(err))
		}
	} else {
		s.log.Warn("tabulation cache generation failed", zap.Int64("subcategory_id", subcategoryID), zap.Error(genErr))
	}

	v, err := compute()
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode tabulation: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode tabulation: %w", err)
	}
	if genErr == nil {
		if err := s.cache.Set(ctx, subcategoryID, gen, field, b); err != nil {
			s.log.Warn("tabulation cache write failed", zap.Int64("subcategory_id", subcategoryID), zap.Error(err))
		}
	}
	return nil
}
