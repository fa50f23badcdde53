package models

import (
	"time"

	"github.com/uptrace/bun"
)

// JudgeCertification records a judge's attestation of every score for one
// contestant in a subcategory.
type JudgeCertification struct {
	bun.BaseModel `bun:"table:judge_certifications,alias:jc"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64     `bun:"subcategory_id,notnull,unique:judge_certifications_no_dupes" json:"subcategoryID"`
	ContestantID  int64     `bun:"contestant_id,notnull,unique:judge_certifications_no_dupes" json:"contestantID"`
	JudgeID       int64     `bun:"judge_id,notnull,unique:judge_certifications_no_dupes" json:"judgeID"`
	SignatureName string    `bun:"signature_name,notnull" json:"signatureName"`
	CertifiedAt   time.Time `bun:"certified_at,notnull" json:"certifiedAt"`
}

// TallyMasterCertification is the per-subcategory tally sign-off.
// RemovalEpoch is the number of effective score removals in the subcategory
// when it was written; Revision increases on every re-certification.
type TallyMasterCertification struct {
	bun.BaseModel `bun:"table:tally_master_certifications,alias:tmc"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64     `bun:"subcategory_id,notnull,unique" json:"subcategoryID"`
	CertifiedBy   int64     `bun:"certified_by,notnull" json:"certifiedBy"`
	SignatureName string    `bun:"signature_name,notnull" json:"signatureName"`
	CertifiedAt   time.Time `bun:"certified_at,notnull" json:"certifiedAt"`
	RemovalEpoch  int       `bun:"removal_epoch,notnull,default:0" json:"removalEpoch"`
	Revision      int       `bun:"revision,notnull,default:1" json:"revision"`
}

// AuditorCertification is the per-subcategory audit sign-off. TallyRevision
// pins the tally certification it attested.
type AuditorCertification struct {
	bun.BaseModel `bun:"table:auditor_certifications,alias:ac"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SubcategoryID int64     `bun:"subcategory_id,notnull,unique" json:"subcategoryID"`
	CertifiedBy   int64     `bun:"certified_by,notnull" json:"certifiedBy"`
	SignatureName string    `bun:"signature_name,notnull" json:"signatureName"`
	CertifiedAt   time.Time `bun:"certified_at,notnull" json:"certifiedAt"`
	RemovalEpoch  int       `bun:"removal_epoch,notnull,default:0" json:"removalEpoch"`
	TallyRevision int       `bun:"tally_revision,notnull" json:"tallyRevision"`
	Revision      int       `bun:"revision,notnull,default:1" json:"revision"`
}
