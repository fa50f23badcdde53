package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/padraicbc/pageantapi/models"
)

// Both statements are compare-and-set on is_signed, so a concurrent sign and
// unsign of the same row cannot interleave. The score value is never touched.
const (
	signScoreSQL = `
UPDATE scores SET is_signed = TRUE, signed_at = ?, updated_at = ?
WHERE id = ? AND judge_id = ? AND is_signed = FALSE
RETURNING *
`
	unsignScoreSQL = `
UPDATE scores SET is_signed = FALSE, signed_at = NULL, updated_at = ?
WHERE id = ? AND judge_id = ? AND is_signed = TRUE
RETURNING *
`
)

// SignScore locks the caller's score. Signed scores are read-only until
// unsigned and are the only scores certification and tabulation count.
func (s *Service) SignScore(ctx context.Context, actor Identity, scoreID int64) (*models.Score, error) {
	score, err := s.setSigned(ctx, actor, scoreID, true)
	s.record(ctx, "score.sign", "score", scoreID, actor, err)
	return score, err
}

// UnsignScore returns the caller's score to the editable state. Unsigning an
// unsigned score returns it unchanged.
func (s *Service) UnsignScore(ctx context.Context, actor Identity, scoreID int64) (*models.Score, error) {
	score, err := s.setSigned(ctx, actor, scoreID, false)
	s.record(ctx, "score.unsign", "score", scoreID, actor, err)
	return score, err
}

func (s *Service) setSigned(ctx context.Context, actor Identity, scoreID int64, signed bool) (*models.Score, error) {
	if err := actor.require(CapSubmitScore); err != nil {
		return nil, err
	}
	if scoreID <= 0 {
		return nil, validation("scoreID is required")
	}

	now := s.timestamp()
	score := &models.Score{}
	var err error
	if signed {
		err = s.db.NewRaw(signScoreSQL, now, now, scoreID, actor.UserID).Scan(ctx, score)
	} else {
		err = s.db.NewRaw(unsignScoreSQL, now, scoreID, actor.UserID).Scan(ctx, score)
	}
	if err == nil {
		s.invalidate(ctx, score.SubcategoryID)
		return score, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update score %d: %w", scoreID, err)
	}

	// Nothing changed: work out why.
	existing := &models.Score{}
	if err := s.db.NewSelect().Model(existing).Where("id = ?", scoreID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(CodeNotFound, fmt.Sprintf("score %d not found", scoreID), nil)
		}
		return nil, fmt.Errorf("load score %d: %w", scoreID, err)
	}
	if existing.JudgeID != actor.UserID {
		return nil, newError(CodeNotOwner, fmt.Sprintf("score %d belongs to another judge", scoreID), nil)
	}
	if signed {
		return nil, newError(CodeAlreadySigned, fmt.Sprintf("score %d is already signed", scoreID),
			map[string]any{"signedAt": existing.SignedAt})
	}
	return existing, nil
}
