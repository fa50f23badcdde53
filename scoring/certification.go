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

// Certification stages of a subcategory, in order.
const (
	StageScoring        = "scoring"
	StageJudgeCertified = "judge_certified"
	StageTallyCertified = "tally_certified"
	StageAudited        = "audited"
)

// CertifyJudgeInput is a judge's attestation of every score they gave one
// contestant in a subcategory.
type CertifyJudgeInput struct {
	SubcategoryID int64  `json:"subcategoryID"`
	ContestantID  int64  `json:"contestantID"`
	SignatureName string `json:"signatureName"`
}

// CertifyInput is a subcategory-wide sign-off by the tally master or auditor.
type CertifyInput struct {
	SubcategoryID int64  `json:"subcategoryID"`
	SignatureName string `json:"signatureName"`
}

func cleanSignature(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validation("signatureName is required")
	}
	return name, nil
}

// CertifyJudge records that the caller has signed a score on every criterion
// of the subcategory for the contestant. Re-certifying returns the existing
// row unchanged.
func (s *Service) CertifyJudge(ctx context.Context, actor Identity, in CertifyJudgeInput) (*models.JudgeCertification, error) {
	cert, err := s.certifyJudge(ctx, actor, in)
	var id int64
	if cert != nil {
		id = cert.ID
	}
	s.record(ctx, "certification.judge", "judge_certification", id, actor, err)
	return cert, err
}

func (s *Service) certifyJudge(ctx context.Context, actor Identity, in CertifyJudgeInput) (*models.JudgeCertification, error) {
	if err := actor.require(CapCertifyJudge); err != nil {
		return nil, err
	}
	if in.SubcategoryID <= 0 || in.ContestantID <= 0 {
		return nil, validation("subcategoryID and contestantID are required")
	}
	signature, err := cleanSignature(in.SignatureName)
	if err != nil {
		return nil, err
	}

	assigned, err := s.roster.IsJudgeAssigned(ctx, actor.UserID, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("check judge assignment: %w", err)
	}
	if !assigned {
		return nil, newError(CodePermissionDenied,
			fmt.Sprintf("judge %d is not assigned to subcategory %d", actor.UserID, in.SubcategoryID), nil)
	}
	contestants, err := s.roster.AssignedContestants(ctx, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load contestants: %w", err)
	}
	if !contains(contestants, in.ContestantID) {
		return nil, validation(fmt.Sprintf("contestant %d is not entered in subcategory %d", in.ContestantID, in.SubcategoryID))
	}
	criteria, err := s.roster.Criteria(ctx, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	if len(criteria) == 0 {
		return nil, incomplete("subcategory has no criteria", []MissingItem{{Reason: "no_criteria"}})
	}

	cert := &models.JudgeCertification{}
	err = s.inTx(ctx, func(tx bun.Tx) error {
		// Shared locks keep the scores from being unsigned until commit.
		var scores []models.Score
		q := tx.NewSelect().Model(&scores).
			Where("subcategory_id = ?", in.SubcategoryID).
			Where("contestant_id = ?", in.ContestantID).
			Where("judge_id = ?", actor.UserID)
		if err := lockingRead(tx, q, "SHARE").Scan(ctx); err != nil {
			return fmt.Errorf("load scores: %w", err)
		}
		byCriterion := make(map[int64]models.Score, len(scores))
		for _, sc := range scores {
			byCriterion[sc.CriterionID] = sc
		}

		var missing []MissingItem
		for _, c := range criteria {
			sc, ok := byCriterion[c.ID]
			switch {
			case !ok:
				missing = append(missing, MissingItem{JudgeID: actor.UserID, ContestantID: in.ContestantID, CriterionID: c.ID, Reason: "score_missing"})
			case !sc.IsSigned:
				missing = append(missing, MissingItem{JudgeID: actor.UserID, ContestantID: in.ContestantID, CriterionID: c.ID, Reason: "score_unsigned"})
			}
		}
		if len(missing) > 0 {
			return incomplete(fmt.Sprintf("%d of %d criteria are not signed", len(missing), len(criteria)), missing)
		}

		row := &models.JudgeCertification{
			SubcategoryID: in.SubcategoryID,
			ContestantID:  in.ContestantID,
			JudgeID:       actor.UserID,
			SignatureName: signature,
			CertifiedAt:   s.timestamp(),
		}
		if _, err := tx.NewInsert().Model(row).
			On("CONFLICT (subcategory_id, contestant_id, judge_id) DO NOTHING").
			Exec(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert judge certification: %w", err)
		}
		return tx.NewSelect().Model(cert).
			Where("subcategory_id = ?", in.SubcategoryID).
			Where("contestant_id = ?", in.ContestantID).
			Where("judge_id = ?", actor.UserID).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// The conflict clause only rewrites a record that an effective removal has
// made stale. Otherwise RETURNING yields nothing and the current row stands.
const (
	upsertTallySQL = `
INSERT INTO tally_master_certifications (subcategory_id, certified_by, signature_name, certified_at, removal_epoch, revision)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT (subcategory_id) DO UPDATE
SET certified_by = EXCLUDED.certified_by, signature_name = EXCLUDED.signature_name,
    certified_at = EXCLUDED.certified_at, removal_epoch = EXCLUDED.removal_epoch,
    revision = tally_master_certifications.revision + 1
WHERE tally_master_certifications.removal_epoch < EXCLUDED.removal_epoch
RETURNING *
`
	upsertAuditSQL = `
INSERT INTO auditor_certifications (subcategory_id, certified_by, signature_name, certified_at, removal_epoch, tally_revision, revision)
VALUES (?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (subcategory_id) DO UPDATE
SET certified_by = EXCLUDED.certified_by, signature_name = EXCLUDED.signature_name,
    certified_at = EXCLUDED.certified_at, removal_epoch = EXCLUDED.removal_epoch,
    tally_revision = EXCLUDED.tally_revision,
    revision = auditor_certifications.revision + 1
WHERE auditor_certifications.removal_epoch < EXCLUDED.removal_epoch
   OR auditor_certifications.tally_revision <> EXCLUDED.tally_revision
RETURNING *
`
)

// CertifyTally records the tally master's sign-off for a subcategory once
// every assigned judge has certified every entered contestant. Judges with an
// effective removal are not required.
func (s *Service) CertifyTally(ctx context.Context, actor Identity, in CertifyInput) (*models.TallyMasterCertification, error) {
	cert, err := s.certifyTally(ctx, actor, in)
	var id int64
	if cert != nil {
		id = cert.ID
	}
	s.record(ctx, "certification.tally", "tally_master_certification", id, actor, err)
	return cert, err
}

func (s *Service) certifyTally(ctx context.Context, actor Identity, in CertifyInput) (*models.TallyMasterCertification, error) {
	if err := actor.require(CapCertifyTally); err != nil {
		return nil, err
	}
	if in.SubcategoryID <= 0 {
		return nil, validation("subcategoryID is required")
	}
	signature, err := cleanSignature(in.SignatureName)
	if err != nil {
		return nil, err
	}
	judges, err := s.roster.AssignedJudges(ctx, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load judges: %w", err)
	}
	contestants, err := s.roster.AssignedContestants(ctx, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load contestants: %w", err)
	}

	cert := &models.TallyMasterCertification{}
	err = s.inTx(ctx, func(tx bun.Tx) error {
		removed, err := effectiveRemovals(ctx, tx, in.SubcategoryID, true)
		if err != nil {
			return err
		}
		epoch := len(removed)

		existing, err := findTally(ctx, tx, in.SubcategoryID, "UPDATE")
		if err != nil {
			return err
		}
		if existing != nil && existing.RemovalEpoch >= epoch {
			*cert = *existing
			return nil
		}

		certs, err := judgeCertifications(ctx, tx, in.SubcategoryID)
		if err != nil {
			return err
		}
		active := activeJudges(judges, removed)
		switch {
		case len(active) == 0:
			return incomplete("no judges are assigned to the subcategory", []MissingItem{{Reason: "no_judges"}})
		case len(contestants) == 0:
			return incomplete("no contestants are entered in the subcategory", []MissingItem{{Reason: "no_contestants"}})
		}
		if missing := missingJudgeCertifications(active, contestants, certs); len(missing) > 0 {
			return incomplete(fmt.Sprintf("%d judge certifications are missing", len(missing)), missing)
		}

		err = tx.NewRaw(upsertTallySQL,
			in.SubcategoryID, actor.UserID, signature, s.timestamp(), epoch,
		).Scan(ctx, cert)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.NewSelect().Model(cert).Where("subcategory_id = ?", in.SubcategoryID).Scan(ctx)
		}
		if err != nil {
			return fmt.Errorf("upsert tally certification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// CertifyAudit records the auditor's sign-off on a current tally
// certification.
func (s *Service) CertifyAudit(ctx context.Context, actor Identity, in CertifyInput) (*models.AuditorCertification, error) {
	cert, err := s.certifyAudit(ctx, actor, in)
	var id int64
	if cert != nil {
		id = cert.ID
	}
	s.record(ctx, "certification.audit", "auditor_certification", id, actor, err)
	return cert, err
}

func (s *Service) certifyAudit(ctx context.Context, actor Identity, in CertifyInput) (*models.AuditorCertification, error) {
	if err := actor.require(CapCertifyAudit); err != nil {
		return nil, err
	}
	if in.SubcategoryID <= 0 {
		return nil, validation("subcategoryID is required")
	}
	signature, err := cleanSignature(in.SignatureName)
	if err != nil {
		return nil, err
	}

	cert := &models.AuditorCertification{}
	err = s.inTx(ctx, func(tx bun.Tx) error {
		removed, err := effectiveRemovals(ctx, tx, in.SubcategoryID, true)
		if err != nil {
			return err
		}
		epoch := len(removed)

		tally, err := findTally(ctx, tx, in.SubcategoryID, "SHARE")
		if err != nil {
			return err
		}
		if tally == nil {
			return incomplete("tally master certification is missing", []MissingItem{{Reason: "tally_missing"}})
		}
		if tally.RemovalEpoch < epoch {
			return incomplete("tally master certification is stale after a score removal", []MissingItem{{Reason: "tally_stale"}})
		}

		existing := &models.AuditorCertification{}
		q := tx.NewSelect().Model(existing).Where("subcategory_id = ?", in.SubcategoryID)
		err = lockingRead(tx, q, "UPDATE").Scan(ctx)
		switch {
		case err == nil:
			if existing.RemovalEpoch >= epoch && existing.TallyRevision == tally.Revision {
				*cert = *existing
				return nil
			}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("load auditor certification: %w", err)
		}

		err = tx.NewRaw(upsertAuditSQL,
			in.SubcategoryID, actor.UserID, signature, s.timestamp(), epoch, tally.Revision,
		).Scan(ctx, cert)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.NewSelect().Model(cert).Where("subcategory_id = ?", in.SubcategoryID).Scan(ctx)
		}
		if err != nil {
			return fmt.Errorf("upsert auditor certification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// CertificationStatus is the board's view of where a subcategory stands in
// the certification chain.
type CertificationStatus struct {
	SubcategoryID              int64                            `json:"subcategoryID"`
	Stage                      string                           `json:"stage"`
	RemovedJudges              []int64                          `json:"removedJudges"`
	JudgeCertifications        []models.JudgeCertification      `json:"judgeCertifications"`
	MissingJudgeCertifications []MissingItem                    `json:"missingJudgeCertifications"`
	Tally                      *models.TallyMasterCertification `json:"tally,omitempty"`
	TallyStale                 bool                             `json:"tallyStale"`
	Audit                      *models.AuditorCertification     `json:"audit,omitempty"`
	AuditStale                 bool                             `json:"auditStale"`
	RecertificationRequired    bool                             `json:"recertificationRequired"`
	Final                      bool                             `json:"final"`
}

// Status reports the certification stage of a subcategory. Results are
// final only when a current audit rests on a current tally.
func (s *Service) Status(ctx context.Context, actor Identity, subcategoryID int64) (*CertificationStatus, error) {
	if err := actor.require(CapViewResults); err != nil {
		return nil, err
	}
	if subcategoryID <= 0 {
		return nil, validation("subcategoryID is required")
	}
	judges, err := s.roster.AssignedJudges(ctx, subcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load judges: %w", err)
	}
	contestants, err := s.roster.AssignedContestants(ctx, subcategoryID)
	if err != nil {
		return nil, fmt.Errorf("load contestants: %w", err)
	}

	removed, err := effectiveRemovals(ctx, s.db, subcategoryID, false)
	if err != nil {
		return nil, err
	}
	certs, err := judgeCertifications(ctx, s.db, subcategoryID)
	if err != nil {
		return nil, err
	}
	tally, err := findTally(ctx, s.db, subcategoryID, "")
	if err != nil {
		return nil, err
	}
	audit := &models.AuditorCertification{}
	if err := s.db.NewSelect().Model(audit).Where("subcategory_id = ?", subcategoryID).Scan(ctx); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load auditor certification: %w", err)
		}
		audit = nil
	}

	active := activeJudges(judges, removed)
	st := &CertificationStatus{
		SubcategoryID:              subcategoryID,
		Stage:                      StageScoring,
		RemovedJudges:              removed,
		JudgeCertifications:        certs,
		MissingJudgeCertifications: missingJudgeCertifications(active, contestants, certs),
		Tally:                      tally,
		Audit:                      audit,
	}
	epoch := len(removed)
	if tally != nil {
		st.TallyStale = tally.RemovalEpoch < epoch
	}
	if audit != nil {
		st.AuditStale = audit.RemovalEpoch < epoch || tally == nil || audit.TallyRevision != tally.Revision
	}
	st.RecertificationRequired = st.TallyStale || st.AuditStale

	switch {
	case audit != nil && !st.AuditStale && !st.TallyStale:
		st.Stage = StageAudited
		st.Final = true
	case tally != nil && !st.TallyStale:
		st.Stage = StageTallyCertified
	case len(active) > 0 && len(contestants) > 0 && len(st.MissingJudgeCertifications) == 0:
		st.Stage = StageJudgeCertified
	}
	return st, nil
}

// effectiveRemovals returns the judges with an effective removal in the
// subcategory, ascending. Its length is the subcategory's removal epoch.
func effectiveRemovals(ctx context.Context, db bun.IDB, subcategoryID int64, lock bool) ([]int64, error) {
	judges := []int64{}
	q := db.NewSelect().Model((*models.ScoreRemovalRequest)(nil)).
		Column("judge_id").
		Where("subcategory_id = ?", subcategoryID).
		Where("status = ?", models.RemovalEffective).
		Order("judge_id ASC")
	if lock {
		q = lockingRead(db, q, "SHARE")
	}
	if err := q.Scan(ctx, &judges); err != nil {
		return nil, fmt.Errorf("load effective removals: %w", err)
	}
	return judges, nil
}

// findTally returns nil when the subcategory has no tally certification.
// A non-empty lock mode locks the row on Postgres.
func findTally(ctx context.Context, db bun.IDB, subcategoryID int64, lock string) (*models.TallyMasterCertification, error) {
	tally := &models.TallyMasterCertification{}
	q := db.NewSelect().Model(tally).Where("subcategory_id = ?", subcategoryID)
	if lock != "" {
		q = lockingRead(db, q, lock)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tally certification: %w", err)
	}
	return tally, nil
}

func judgeCertifications(ctx context.Context, db bun.IDB, subcategoryID int64) ([]models.JudgeCertification, error) {
	certs := []models.JudgeCertification{}
	err := db.NewSelect().Model(&certs).
		Where("subcategory_id = ?", subcategoryID).
		Order("judge_id ASC", "contestant_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load judge certifications: %w", err)
	}
	return certs, nil
}

func activeJudges(judges, removed []int64) []int64 {
	active := make([]int64, 0, len(judges))
	for _, j := range judges {
		if !contains(removed, j) {
			active = append(active, j)
		}
	}
	return active
}

// missingJudgeCertifications lists the (judge, contestant) pairs without a
// certification, ordered by judge then contestant.
func missingJudgeCertifications(judges, contestants []int64, certs []models.JudgeCertification) []MissingItem {
	type pair struct{ judge, contestant int64 }
	have := make(map[pair]bool, len(certs))
	for _, c := range certs {
		have[pair{c.JudgeID, c.ContestantID}] = true
	}
	missing := []MissingItem{}
	for _, j := range judges {
		for _, c := range contestants {
			if !have[pair{j, c}] {
				missing = append(missing, MissingItem{JudgeID: j, ContestantID: c, Reason: "judge_certification_missing"})
			}
		}
	}
	return missing
}
