package scoring

import (
	"context"
	"errors"
	"testing"
)

func missingOf(t *testing.T, err error) []MissingItem {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected domain error, got %v", err)
	}
	details, ok := e.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", e.Details)
	}
	missing, ok := details["missing"].([]MissingItem)
	if !ok {
		t.Fatalf("expected missing items, got %T", details["missing"])
	}
	return missing
}

func TestCertifyJudgeRequiresEverySignedScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submitSigned(t, asJudge1, critA1, contestant1, 7)
	f.submit(t, asJudge1, critA2, contestant1, 7)

	_, err := f.svc.CertifyJudge(ctx, asJudge1, CertifyJudgeInput{SubcategoryID: subA, ContestantID: contestant1, SignatureName: "J. One"})
	if !errors.Is(err, ErrIncompletePrerequisite) {
		t.Fatalf("expected incomplete prerequisite, got %v", err)
	}
	missing := missingOf(t, err)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing items, got %+v", missing)
	}
	if missing[0].CriterionID != critA2 || missing[0].Reason != "score_unsigned" {
		t.Fatalf("unexpected first item: %+v", missing[0])
	}
	if missing[1].CriterionID != critA3 || missing[1].Reason != "score_missing" {
		t.Fatalf("unexpected second item: %+v", missing[1])
	}

	n, err := f.db.NewSelect().Table("judge_certifications").Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no certification written, got %d", n)
	}
}

func TestCertifyJudgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, crit := range allCriteriaA {
		f.submitSigned(t, asJudge1, crit, contestant1, 8)
	}
	in := CertifyJudgeInput{SubcategoryID: subA, ContestantID: contestant1, SignatureName: " J. One "}
	first, err := f.svc.CertifyJudge(ctx, asJudge1, in)
	if err != nil {
		t.Fatalf("certify: %v", err)
	}
	if first.SignatureName != "J. One" || first.JudgeID != judge1 {
		t.Fatalf("unexpected certification: %+v", first)
	}
	second, err := f.svc.CertifyJudge(ctx, asJudge1, in)
	if err != nil {
		t.Fatalf("re-certify: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing row %d, got %d", first.ID, second.ID)
	}
}

func TestCertifyJudgeChecksInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CertifyJudge(ctx, asJudge1, CertifyJudgeInput{SubcategoryID: subA, ContestantID: contestant1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank signature, got %v", err)
	}
	if _, err := f.svc.CertifyJudge(ctx, asTally, CertifyJudgeInput{SubcategoryID: subA, ContestantID: contestant1, SignatureName: "T"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	outsider := Identity{UserID: 999, Role: RoleJudge}
	if _, err := f.svc.CertifyJudge(ctx, outsider, CertifyJudgeInput{SubcategoryID: subA, ContestantID: contestant1, SignatureName: "X"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for unassigned judge, got %v", err)
	}
}

func TestCertifyTallyFailsWhenAJudgeHasNotCertified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []int64{contestant1, contestant2, contestant3} {
		for _, crit := range allCriteriaA {
			f.submitSigned(t, asJudge1, crit, c, 5)
		}
		if _, err := f.svc.CertifyJudge(ctx, asJudge1, CertifyJudgeInput{SubcategoryID: subA, ContestantID: c, SignatureName: "J1"}); err != nil {
			t.Fatalf("certify judge: %v", err)
		}
	}

	_, err := f.svc.CertifyTally(ctx, asTally, CertifyInput{SubcategoryID: subA, SignatureName: "Tally"})
	if !errors.Is(err, ErrIncompletePrerequisite) {
		t.Fatalf("expected incomplete prerequisite, got %v", err)
	}
	missing := missingOf(t, err)
	if len(missing) != 3 {
		t.Fatalf("expected judge 2 missing for 3 contestants, got %+v", missing)
	}
	for i, m := range missing {
		if m.JudgeID != judge2 || m.ContestantID != []int64{contestant1, contestant2, contestant3}[i] {
			t.Fatalf("unexpected missing item %d: %+v", i, m)
		}
	}
}

func TestCertifyAuditRequiresTally(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CertifyAudit(context.Background(), asAuditor, CertifyInput{SubcategoryID: subA, SignatureName: "Aud"})
	if !errors.Is(err, ErrIncompletePrerequisite) {
		t.Fatalf("expected incomplete prerequisite, got %v", err)
	}
}

func TestCertificationChainAndStaleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Status(ctx, asBoard, subA)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != StageScoring || len(st.MissingJudgeCertifications) != 6 {
		t.Fatalf("expected scoring stage with 6 missing pairs, got %+v", st)
	}

	f.certifyAllJudges(t)
	if st, _ = f.svc.Status(ctx, asBoard, subA); st.Stage != StageJudgeCertified {
		t.Fatalf("expected judge_certified, got %s", st.Stage)
	}

	tally, err := f.svc.CertifyTally(ctx, asTally, CertifyInput{SubcategoryID: subA, SignatureName: "Tally"})
	if err != nil {
		t.Fatalf("certify tally: %v", err)
	}
	if tally.Revision != 1 || tally.RemovalEpoch != 0 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	again, err := f.svc.CertifyTally(ctx, asTally, CertifyInput{SubcategoryID: subA, SignatureName: "Tally"})
	if err != nil || again.ID != tally.ID || again.Revision != 1 {
		t.Fatalf("expected no-op re-certification, got %+v %v", again, err)
	}

	aud, err := f.svc.CertifyAudit(ctx, asAuditor, CertifyInput{SubcategoryID: subA, SignatureName: "Auditor"})
	if err != nil {
		t.Fatalf("certify audit: %v", err)
	}
	if aud.TallyRevision != 1 {
		t.Fatalf("unexpected audit: %+v", aud)
	}
	st, err = f.svc.Status(ctx, asBoard, subA)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != StageAudited || !st.Final || st.RecertificationRequired {
		t.Fatalf("expected final audited status, got %+v", st)
	}

	// Removing judge 2 makes both sign-offs stale.
	req, err := f.svc.InitiateRemoval(ctx, asBoard, InitiateRemovalInput{JudgeID: judge2, SubcategoryID: subA, Reason: "related to contestant"})
	if err != nil {
		t.Fatalf("initiate removal: %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asAuditor, CoSignInput{RequestID: req.ID, Role: "auditor"}); err != nil {
		t.Fatalf("auditor co-sign: %v", err)
	}
	if _, err := f.svc.CoSign(ctx, asTally, CoSignInput{RequestID: req.ID, Role: "tally_master"}); err != nil {
		t.Fatalf("tally co-sign: %v", err)
	}

	st, err = f.svc.Status(ctx, asBoard, subA)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.TallyStale || !st.AuditStale || !st.RecertificationRequired || st.Final {
		t.Fatalf("expected stale certifications, got %+v", st)
	}
	if st.Stage != StageJudgeCertified || len(st.RemovedJudges) != 1 || st.RemovedJudges[0] != judge2 {
		t.Fatalf("unexpected stage or removed judges: %+v", st)
	}

	if _, err := f.svc.CertifyAudit(ctx, asAuditor, CertifyInput{SubcategoryID: subA, SignatureName: "Auditor"}); !errors.Is(err, ErrIncompletePrerequisite) {
		t.Fatalf("expected audit to wait for tally re-certification, got %v", err)
	}

	tally2, err := f.svc.CertifyTally(ctx, asTally, CertifyInput{SubcategoryID: subA, SignatureName: "Tally"})
	if err != nil {
		t.Fatalf("re-certify tally: %v", err)
	}
	if tally2.ID != tally.ID || tally2.Revision != 2 || tally2.RemovalEpoch != 1 {
		t.Fatalf("unexpected re-certified tally: %+v", tally2)
	}
	if st, _ = f.svc.Status(ctx, asBoard, subA); st.TallyStale || !st.AuditStale || st.Stage != StageTallyCertified {
		t.Fatalf("expected current tally and stale audit, got %+v", st)
	}

	aud2, err := f.svc.CertifyAudit(ctx, asAuditor2, CertifyInput{SubcategoryID: subA, SignatureName: "Second Auditor"})
	if err != nil {
		t.Fatalf("re-certify audit: %v", err)
	}
	if aud2.Revision != 2 || aud2.TallyRevision != 2 || aud2.CertifiedBy != asAuditor2.UserID {
		t.Fatalf("unexpected re-certified audit: %+v", aud2)
	}
	st, err = f.svc.Status(ctx, asBoard, subA)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != StageAudited || !st.Final || st.RecertificationRequired {
		t.Fatalf("expected final status after re-certification, got %+v", st)
	}
}
