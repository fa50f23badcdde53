package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/padraicbc/pageantapi/models"
)

// InitiateRemovalInput proposes excluding a judge's scores from a subcategory.
type InitiateRemovalInput struct {
	JudgeID       int64  `json:"judgeID"`
	SubcategoryID int64  `json:"subcategoryID"`
	Reason        string `json:"reason"`
}

// CoSignInput adds the caller's signature to a pending removal under role.
type CoSignInput struct {
	RequestID int64  `json:"requestID"`
	Role      string `json:"role"`
}

// The partial unique index score_removal_requests_one_active is the conflict
// target, so a second active request for the pair inserts nothing.
const insertRemovalSQL = `
INSERT INTO score_removal_requests (judge_id, subcategory_id, reason, initiated_by, initiated_at, status)
VALUES (?, ?, ?, ?, ?, 'pending')
ON CONFLICT (judge_id, subcategory_id) WHERE status IN ('pending', 'effective') DO NOTHING
RETURNING *
`

const withdrawRemovalSQL = `
UPDATE score_removal_requests SET status = 'withdrawn', withdrawn_at = ?
WHERE id = ? AND status = 'pending'
RETURNING *
`

// InitiateRemoval opens a pending removal request. Only one pending or
// effective request may exist per judge and subcategory.
func (s *Service) InitiateRemoval(ctx context.Context, actor Identity, in InitiateRemovalInput) (*models.ScoreRemovalRequest, error) {
	req, err := s.initiateRemoval(ctx, actor, in)
	var id int64
	if req != nil {
		id = req.ID
	}
	s.record(ctx, "removal.initiate", "score_removal_request", id, actor, err)
	return req, err
}

func (s *Service) initiateRemoval(ctx context.Context, actor Identity, in InitiateRemovalInput) (*models.ScoreRemovalRequest, error) {
	if err := actor.require(CapInitiateRemoval); err != nil {
		return nil, err
	}
	if in.JudgeID <= 0 || in.SubcategoryID <= 0 {
		return nil, validation("judgeID and subcategoryID are required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, validation("reason is required")
	}
	assigned, err := s.roster.IsJudgeAssigned(ctx, in.JudgeID, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("check judge assignment: %w", err)
	}
	if !assigned {
		return nil, validation(fmt.Sprintf("judge %d is not assigned to subcategory %d", in.JudgeID, in.SubcategoryID))
	}

	req := &models.ScoreRemovalRequest{}
	err = s.db.NewRaw(insertRemovalSQL,
		in.JudgeID, in.SubcategoryID, reason, actor.UserID, s.timestamp(),
	).Scan(ctx, req)
	if errors.Is(err, sql.ErrNoRows) {
		active := &models.ScoreRemovalRequest{}
		lookupErr := s.db.NewSelect().Model(active).
			Where("judge_id = ?", in.JudgeID).
			Where("subcategory_id = ?", in.SubcategoryID).
			Where("status IN (?)", bun.In([]string{models.RemovalPending, models.RemovalEffective})).
			Scan(ctx)
		details := map[string]any{}
		if lookupErr == nil {
			details["requestID"] = active.ID
			details["status"] = active.Status
		}
		return nil, newError(CodeDuplicateRequest,
			fmt.Sprintf("judge %d already has an active removal request in subcategory %d", in.JudgeID, in.SubcategoryID), details)
	}
	if err != nil {
		return nil, fmt.Errorf("insert removal request: %w", err)
	}
	req.Signatures = []*models.ScoreRemovalSignature{}
	return req, nil
}

// CoSign adds the caller's signature under role. The request becomes
// effective on the call that completes the auditor and tally master pair;
// from then on the judge's scores no longer count in the subcategory.
func (s *Service) CoSign(ctx context.Context, actor Identity, in CoSignInput) (*models.ScoreRemovalRequest, error) {
	req, err := s.coSign(ctx, actor, in)
	s.record(ctx, "removal.cosign", "score_removal_request", in.RequestID, actor, err)
	return req, err
}

func (s *Service) coSign(ctx context.Context, actor Identity, in CoSignInput) (*models.ScoreRemovalRequest, error) {
	role, err := ParseSignatureRole(in.Role)
	if err != nil {
		return nil, err
	}
	if err := actor.require(role.capability()); err != nil {
		return nil, err
	}
	if in.RequestID <= 0 {
		return nil, validation("requestID is required")
	}

	req := &models.ScoreRemovalRequest{}
	becameEffective := false
	err = s.inTx(ctx, func(tx bun.Tx) error {
		q := tx.NewSelect().Model(req).Where("id = ?", in.RequestID)
		if err := lockingRead(tx, q, "UPDATE").Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(CodeNotFound, fmt.Sprintf("removal request %d not found", in.RequestID), nil)
			}
			return fmt.Errorf("load removal request: %w", err)
		}
		if req.Status != models.RemovalPending {
			return newError(CodeRequestClosed, fmt.Sprintf("removal request %d is %s", req.ID, req.Status),
				map[string]any{"status": req.Status})
		}
		if req.InitiatedBy == actor.UserID {
			return validation("the initiator of a removal request cannot co-sign it")
		}

		var sigs []*models.ScoreRemovalSignature
		if err := tx.NewSelect().Model(&sigs).Where("request_id = ?", req.ID).Scan(ctx); err != nil {
			return fmt.Errorf("load signatures: %w", err)
		}
		for _, sig := range sigs {
			if sig.Role == string(role) {
				return newError(CodeAlreadySigned, fmt.Sprintf("removal request %d already has a %s signature", req.ID, role),
					map[string]any{"signerID": sig.SignerID, "signedAt": sig.SignedAt})
			}
			if sig.SignerID == actor.UserID {
				return validation(fmt.Sprintf("user %d already signed removal request %d as %s", actor.UserID, req.ID, sig.Role))
			}
		}

		now := s.timestamp()
		sig := &models.ScoreRemovalSignature{RequestID: req.ID, Role: string(role), SignerID: actor.UserID, SignedAt: now}
		if _, err := tx.NewInsert().Model(sig).Exec(ctx); err != nil {
			return fmt.Errorf("insert signature: %w", err)
		}
		sigs = append(sigs, sig)

		if hasRequiredSignatures(sigs) {
			res, err := tx.NewUpdate().Model((*models.ScoreRemovalRequest)(nil)).
				Set("status = ?", models.RemovalEffective).
				Set("effective_at = ?", now).
				Where("id = ?", req.ID).
				Where("status = ?", models.RemovalPending).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("mark removal effective: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				becameEffective = true
			}
		}

		return tx.NewSelect().Model(req).
			Relation("Signatures", orderSignatures).
			Where("srr.id = ?", req.ID).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	if becameEffective {
		s.invalidate(ctx, req.SubcategoryID)
	}
	return req, nil
}

func hasRequiredSignatures(sigs []*models.ScoreRemovalSignature) bool {
	var auditor, tallyMaster bool
	for _, sig := range sigs {
		switch SignatureRole(sig.Role) {
		case SignAuditor:
			auditor = true
		case SignTallyMaster:
			tallyMaster = true
		}
	}
	return auditor && tallyMaster
}

// WithdrawRemoval closes a pending request without effect.
func (s *Service) WithdrawRemoval(ctx context.Context, actor Identity, requestID int64) (*models.ScoreRemovalRequest, error) {
	req, err := s.withdrawRemoval(ctx, actor, requestID)
	s.record(ctx, "removal.withdraw", "score_removal_request", requestID, actor, err)
	return req, err
}

func (s *Service) withdrawRemoval(ctx context.Context, actor Identity, requestID int64) (*models.ScoreRemovalRequest, error) {
	if err := actor.require(CapInitiateRemoval); err != nil {
		return nil, err
	}
	if requestID <= 0 {
		return nil, validation("requestID is required")
	}

	req := &models.ScoreRemovalRequest{}
	err := s.db.NewRaw(withdrawRemovalSQL, s.timestamp(), requestID).Scan(ctx, req)
	if errors.Is(err, sql.ErrNoRows) {
		existing := &models.ScoreRemovalRequest{}
		if err := s.db.NewSelect().Model(existing).Where("id = ?", requestID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, newError(CodeNotFound, fmt.Sprintf("removal request %d not found", requestID), nil)
			}
			return nil, fmt.Errorf("load removal request: %w", err)
		}
		return nil, newError(CodeRequestClosed, fmt.Sprintf("removal request %d is %s", requestID, existing.Status),
			map[string]any{"status": existing.Status})
	}
	if err != nil {
		return nil, fmt.Errorf("withdraw removal request: %w", err)
	}

	if err := s.db.NewSelect().Model(req).
		Relation("Signatures", orderSignatures).
		Where("srr.id = ?", requestID).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("load removal request: %w", err)
	}
	return req, nil
}

// ListRemovals returns a subcategory's removal requests with their
// signatures, oldest first. An empty status lists every request.
func (s *Service) ListRemovals(ctx context.Context, actor Identity, subcategoryID int64, status string) ([]models.ScoreRemovalRequest, error) {
	if err := actor.require(CapViewResults); err != nil {
		return nil, err
	}
	if subcategoryID <= 0 {
		return nil, validation("subcategoryID is required")
	}
	switch status {
	case "", models.RemovalPending, models.RemovalEffective, models.RemovalWithdrawn:
	default:
		return nil, validation(fmt.Sprintf("unknown removal status %q", status))
	}

	reqs := []models.ScoreRemovalRequest{}
	q := s.db.NewSelect().Model(&reqs).
		Relation("Signatures", orderSignatures).
		Where("srr.subcategory_id = ?", subcategoryID)
	if status != "" {
		q = q.Where("srr.status = ?", status)
	}
	if err := q.Order("srr.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list removal requests: %w", err)
	}
	return reqs, nil
}

func orderSignatures(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("srs.id ASC")
}
