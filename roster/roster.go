// Package roster reads the reference data the scoring workflow depends on:
// criteria, judge assignments and contestant entries. The admin screens own
// these tables; the Assign/Enter/Add helpers exist for imports and fixtures.
package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/padraicbc/pageantapi/models"
)

type Store struct {
	db bun.IDB
}

func New(db bun.IDB) *Store {
	return &Store{db: db}
}

// IsJudgeAssigned reports whether judgeID scores subcategoryID.
func (s *Store) IsJudgeAssigned(ctx context.Context, judgeID, subcategoryID int64) (bool, error) {
	return s.db.NewSelect().Model((*models.SubcategoryJudge)(nil)).
		Where("subcategory_id = ?", subcategoryID).
		Where("judge_id = ?", judgeID).
		Exists(ctx)
}

// AssignedJudges returns judge ids in ascending order.
func (s *Store) AssignedJudges(ctx context.Context, subcategoryID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*models.SubcategoryJudge)(nil)).
		Column("judge_id").
		Where("subcategory_id = ?", subcategoryID).
		Order("judge_id ASC").
		Scan(ctx, &ids)
	return ids, err
}

// AssignedContestants returns contestant ids in ascending order.
func (s *Store) AssignedContestants(ctx context.Context, subcategoryID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*models.SubcategoryContestant)(nil)).
		Column("contestant_id").
		Where("subcategory_id = ?", subcategoryID).
		Order("contestant_id ASC").
		Scan(ctx, &ids)
	return ids, err
}

// Criterion returns nil when no criterion has the given id.
func (s *Store) Criterion(ctx context.Context, criterionID int64) (*models.Criterion, error) {
	c := &models.Criterion{}
	err := s.db.NewSelect().Model(c).Where("id = ?", criterionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Criteria returns a subcategory's criteria in display order.
func (s *Store) Criteria(ctx context.Context, subcategoryID int64) ([]models.Criterion, error) {
	var out []models.Criterion
	err := s.db.NewSelect().Model(&out).
		Where("subcategory_id = ?", subcategoryID).
		Order("position ASC", "id ASC").
		Scan(ctx)
	return out, err
}

// Subcategories returns the subcategory ids of a category.
func (s *Store) Subcategories(ctx context.Context, categoryID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*models.Subcategory)(nil)).
		Column("id").
		Where("category_id = ?", categoryID).
		Order("id ASC").
		Scan(ctx, &ids)
	return ids, err
}

// AddSubcategory inserts sc, keeping an existing row with the same id.
func (s *Store) AddSubcategory(ctx context.Context, sc *models.Subcategory) error {
	_, err := s.db.NewInsert().Model(sc).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return err
}

// AddCriterion inserts c, keeping an existing row with the same id.
func (s *Store) AddCriterion(ctx context.Context, c *models.Criterion) error {
	_, err := s.db.NewInsert().Model(c).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return err
}

func (s *Store) AssignJudge(ctx context.Context, subcategoryID, judgeID int64) error {
	_, err := s.db.NewInsert().
		Model(&models.SubcategoryJudge{SubcategoryID: subcategoryID, JudgeID: judgeID}).
		On("CONFLICT (subcategory_id, judge_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) EnterContestant(ctx context.Context, subcategoryID, contestantID int64) error {
	_, err := s.db.NewInsert().
		Model(&models.SubcategoryContestant{SubcategoryID: subcategoryID, ContestantID: contestantID}).
		On("CONFLICT (subcategory_id, contestant_id) DO NOTHING").
		Exec(ctx)
	return err
}

// ListSubcategories returns a category's subcategories ordered by id.
func (s *Store) ListSubcategories(ctx context.Context, categoryID int64) ([]models.Subcategory, error) {
	out := []models.Subcategory{}
	err := s.db.NewSelect().Model(&out).
		Where("category_id = ?", categoryID).
		Order("id ASC").
		Scan(ctx)
	return out, err
}
