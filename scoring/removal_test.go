package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/padraicbc/pageantapi/models"
)

func TestRemovalNeedsBothGatingSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.InitiateRemoval(ctx, asBoard, InitiateRemovalInput{JudgeID: judge1, SubcategoryID: subA, Reason: "bias"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if req.Status != models.RemovalPending || req.InitiatedBy != asBoard.UserID {
		t.Fatalf("unexpected request: %+v", req)
	}

	got, err := f.svc.CoSign(ctx, asHeadJudge, CoSignInput{RequestID: req.ID, Role: "head_judge"})
	if err != nil {
		t.Fatalf("head judge co-sign: %v", err)
	}
	if got.Status != models.RemovalPending {
		t.Fatalf("head judge must not gate the transition, got %s", got.Status)
	}

	got, err = f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: req.ID, Role: "auditor"})
	if err != nil {
		t.Fatalf("auditor co-sign: %v", err)
	}
	if got.Status != models.RemovalPending || len(got.Signatures) != 2 {
		t.Fatalf("expected pending with 2 signatures, got %+v", got)
	}

	genBefore := f.cache.gens[subA]
	got, err = f.svc.CoSign(ctx, asTally, CoSignInput{RequestID: req.ID, Role: "tally_master"})
	if err != nil {
		t.Fatalf("tally co-sign: %v", err)
	}
	if got.Status != models.RemovalEffective || got.EffectiveAt == nil {
		t.Fatalf("expected effective on the tally master call, got %+v", got)
	}
	if len(got.Signatures) != 3 || got.Signatures[2].Role != "tally_master" {
		t.Fatalf("unexpected signatures: %+v", got.Signatures)
	}
	if f.cache.gens[subA] != genBefore+1 {
		t.Fatalf("expected tabulation cache invalidated")
	}
	if e := f.auditor.last(); e.Action != "removal.cosign" || e.ResourceID != req.ID {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
}

func TestCoSignErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.InitiateRemoval(ctx, asBoard, InitiateRemovalInput{JudgeID: judge1, SubcategoryID: subA, Reason: "bias"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: req.ID, Role: "board"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: req.ID, Role: "tally_master"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for mismatched role, got %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: 9999, Role: "auditor"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: req.ID, Role: "auditor"}); err != nil {
		t.Fatalf("auditor co-sign: %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor2, CoSignInput{RequestID: req.ID, Role: "auditor"}); !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("expected already signed, got %v", err)
	}

	n, err := f.db.NewSelect().Model((*models.ScoreRemovalSignature)(nil)).Where("request_id = ?", req.ID).Count(ctx)
	if err != nil {
		t.Fatalf("count signatures: %v", err)
	}
	if n != 1 {
		t.Fatalf("rejected co-signs must not write, got %d signatures", n)
	}
}

func TestOneActiveRemovalPerJudge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := InitiateRemovalInput{JudgeID: judge2, SubcategoryID: subA, Reason: "late arrival"}

	first, err := f.svc.InitiateRemoval(ctx, asBoard, in)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.InitiateRemoval(ctx, asBoard, in); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}

	withdrawn, err := f.svc.WithdrawRemoval(ctx, asBoard, first.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Status != models.RemovalWithdrawn || withdrawn.WithdrawnAt == nil {
		t.Fatalf("unexpected withdrawn request: %+v", withdrawn)
	}
	if _, err := f.svc.WithdrawRemoval(ctx, asBoard, first.ID); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected request closed on second withdraw, got %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: first.ID, Role: "auditor"}); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("expected request closed on co-sign, got %v", err)
	}

	second, err := f.svc.InitiateRemoval(ctx, asBoard, in)
	if err != nil {
		t.Fatalf("initiate after withdraw: %v", err)
	}

	all, err := f.svc.ListRemovals(ctx, asTally, subA, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("unexpected listing: %+v", all)
	}
	pending, err := f.svc.ListRemovals(ctx, asTally, subA, models.RemovalPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("unexpected pending listing: %+v", pending)
	}
}

func TestInitiateRemovalChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.InitiateRemoval(ctx, asTally, InitiateRemovalInput{JudgeID: judge1, SubcategoryID: subA, Reason: "x"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := f.svc.InitiateRemoval(ctx, asBoard, InitiateRemovalInput{JudgeID: judge1, SubcategoryID: subA, Reason: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank reason, got %v", err)
	}
	if _, err := f.svc.InitiateRemoval(ctx, asBoard, InitiateRemovalInput{JudgeID: judge2, SubcategoryID: subB, Reason: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unassigned judge, got %v", err)
	}
}
