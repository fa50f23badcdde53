package scoring

import (
	"context"
	"errors"
	"testing"
)

func TestSignThenUnsignKeepsValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comment := "clean lines"
	sc, err := f.svc.SubmitScore(ctx, asJudge1, SubmitScoreInput{
		CriterionID: critA1, ContestantID: contestant1, Score: 8.25, Comments: &comment,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	signed, err := f.svc.SignScore(ctx, asJudge1, sc.ID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signed.IsSigned || signed.SignedAt == nil || !signed.SignedAt.Equal(fixedNow) {
		t.Fatalf("expected signed at %v, got %+v", fixedNow, signed)
	}

	unsigned, err := f.svc.UnsignScore(ctx, asJudge1, sc.ID)
	if err != nil {
		t.Fatalf("unsign: %v", err)
	}
	if unsigned.IsSigned || unsigned.SignedAt != nil {
		t.Fatalf("expected unsigned score, got %+v", unsigned)
	}
	if unsigned.Score != 8.25 || unsigned.Comments == nil || *unsigned.Comments != comment {
		t.Fatalf("unsign changed the score: %+v", unsigned)
	}

	// Editable again.
	f.submit(t, asJudge1, critA1, contestant1, 9)
}

func TestSignErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sc := f.submitSigned(t, asJudge1, critA1, contestant1, 5)

	if _, err := f.svc.SignScore(ctx, asJudge1, sc.ID); !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("expected already signed, got %v", err)
	}
	if _, err := f.svc.SignScore(ctx, asJudge2, sc.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner on sign, got %v", err)
	}
	if _, err := f.svc.UnsignScore(ctx, asJudge2, sc.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner on unsign, got %v", err)
	}
	if _, err := f.svc.SignScore(ctx, asJudge1, 4040); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.SignScore(ctx, asAuditor, sc.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestUnsignOfUnsignedScoreIsNoop(t *testing.T) {
	f := newFixture(t)

	sc := f.submit(t, asJudge1, critA1, contestant1, 4)
	got, err := f.svc.UnsignScore(context.Background(), asJudge1, sc.ID)
	if err != nil {
		t.Fatalf("unsign: %v", err)
	}
	if got.ID != sc.ID || got.IsSigned || got.Score != 4 {
		t.Fatalf("unexpected score: %+v", got)
	}
}
