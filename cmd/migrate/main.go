// cmd/migrate/main.go
// Imports scoring data from the legacy MySQL contest database into the
// scoring store selected by DB_DRIVER.
//
// Usage:
//
//	MYSQL_DSN="user:pass@tcp(host:3306)/pageant?parseTime=true" \
//	DB_PASS="pgpass" JWT_SECRET=unused \
//	go run ./cmd/migrate
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/padraicbc/pageantapi/config"
	bundb "github.com/padraicbc/pageantapi/db"
	"github.com/padraicbc/pageantapi/models"
	"github.com/padraicbc/pageantapi/scoring"
)

const batchSize = 500

func main() {
	ctx := context.Background()

	cfg := config.Load()

	// --- MySQL ---
	if cfg.MySQLDSN == "" {
		log.Fatal("MYSQL_DSN required, e.g.: user:pass@tcp(host:3306)/pageant?parseTime=true")
	}
	myDB, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer myDB.Close()
	myDB.SetMaxOpenConns(4)
	if err := myDB.PingContext(ctx); err != nil {
		log.Fatalf("ping mysql: %v", err)
	}
	log.Println("connected to MySQL")

	// --- scoring store ---
	dst := bundb.Setup(cfg)
	defer dst.Close()
	log.Printf("connected to %s", cfg.DBDriver)

	if err := bundb.CreateTables(ctx, dst); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	var skippedCerts int
	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"users", func() (int, error) { return migrateUsers(ctx, myDB, dst) }},
		{"subcategories", func() (int, error) { return migrateSubcategories(ctx, myDB, dst) }},
		{"criteria", func() (int, error) { return migrateCriteria(ctx, myDB, dst) }},
		{"judges", func() (int, error) { return migrateJudgeAssignments(ctx, myDB, dst) }},
		{"contestants", func() (int, error) { return migrateContestantEntries(ctx, myDB, dst) }},
		{"scores", func() (int, error) { return migrateScores(ctx, myDB, dst) }},
		{"judge_certs", func() (int, error) {
			n, skipped, err := migrateJudgeCertifications(ctx, myDB, dst)
			skippedCerts = skipped
			return n, err
		}},
		{"tally_certs", func() (int, error) { return migrateTallyCertifications(ctx, myDB, dst) }},
		{"audit_certs", func() (int, error) { return migrateAuditorCertifications(ctx, myDB, dst) }},
	}

	for _, s := range steps {
		n, err := s.fn()
		if err != nil {
			log.Fatalf("migrate %s: %v", s.name, err)
		}
		log.Printf("%-15s  %d rows migrated", s.name, n)
	}
	if skippedCerts > 0 {
		log.Printf("skipped %d judge certifications without a contestant; those judges must re-certify", skippedCerts)
	}

	if dst.Dialect().Name() == dialect.PG {
		resetSequences(ctx, dst)
	}
	log.Println("migration complete")
}

// --- helpers ---

func nullStr(n sql.NullString) *string {
	if !n.Valid || strings.TrimSpace(n.String) == "" {
		return nil
	}
	return &n.String
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// normalizeRole maps legacy role names onto the closed role set.
func normalizeRole(legacy string) (string, error) {
	r := strings.ToLower(strings.TrimSpace(legacy))
	r = strings.NewReplacer(" ", "_", "-", "_").Replace(r)
	switch r {
	case "tallymaster", "tally":
		r = string(scoring.RoleTallyMaster)
	case "headjudge", "head":
		r = string(scoring.RoleHeadJudge)
	case "organizer", "organiser":
		r = string(scoring.RoleAdmin)
	}
	role, err := scoring.ParseRole(r)
	return string(role), err
}

// bulkInsert inserts a batch, skipping rows that already exist (idempotent re-runs).
func bulkInsert[T any](ctx context.Context, db *bun.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

// copyRows runs query against MySQL and inserts the rows scan produces in
// batches. scan returns ok=false to skip a row.
func copyRows[T any](ctx context.Context, myDB *sql.DB, db *bun.DB, query string, scan func(*sql.Rows) (T, bool, error)) (int, int, error) {
	rows, err := myDB.QueryContext(ctx, query)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var batch []T
	total, skipped := 0, 0
	for rows.Next() {
		r, ok, err := scan(rows)
		if err != nil {
			return total, skipped, err
		}
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, db, batch); err != nil {
				return total, skipped, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, db, batch); err != nil {
		return total, skipped, err
	}
	return total + len(batch), skipped, rows.Err()
}

// --- per-table migrations ---

func migrateUsers(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, skipped, err := copyRows(ctx, myDB, db,
		"SELECT id, username, password, role FROM users",
		func(rows *sql.Rows) (models.User, bool, error) {
			var (
				r    models.User
				role string
			)
			if err := rows.Scan(&r.ID, &r.Username, &r.Password, &role); err != nil {
				return r, false, err
			}
			normalized, err := normalizeRole(role)
			if err != nil {
				log.Printf("user %d (%s): %v, skipped", r.ID, r.Username, err)
				return r, false, nil
			}
			r.Role = normalized
			return r, true, nil
		})
	if skipped > 0 {
		log.Printf("skipped %d users with unknown roles", skipped)
	}
	return n, err
}

func migrateSubcategories(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT id, category_id, name FROM subcategories",
		func(rows *sql.Rows) (models.Subcategory, bool, error) {
			var r models.Subcategory
			err := rows.Scan(&r.ID, &r.CategoryID, &r.Name)
			return r, err == nil, err
		})
	return n, err
}

func migrateCriteria(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT id, subcategory_id, name, max_score, COALESCE(order_num, 0) FROM criteria",
		func(rows *sql.Rows) (models.Criterion, bool, error) {
			var r models.Criterion
			err := rows.Scan(&r.ID, &r.SubcategoryID, &r.Name, &r.MaxScore, &r.Position)
			return r, err == nil, err
		})
	return n, err
}

func migrateJudgeAssignments(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT subcategory_id, judge_id FROM subcategory_judges",
		func(rows *sql.Rows) (models.SubcategoryJudge, bool, error) {
			var r models.SubcategoryJudge
			err := rows.Scan(&r.SubcategoryID, &r.JudgeID)
			return r, err == nil, err
		})
	return n, err
}

func migrateContestantEntries(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT subcategory_id, contestant_id FROM subcategory_contestants",
		func(rows *sql.Rows) (models.SubcategoryContestant, bool, error) {
			var r models.SubcategoryContestant
			err := rows.Scan(&r.SubcategoryID, &r.ContestantID)
			return r, err == nil, err
		})
	return n, err
}

// migrateScores derives subcategory_id from the criterion, as the ledger does.
func migrateScores(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		`SELECT s.id, c.subcategory_id, s.criterion_id, s.contestant_id, s.judge_id,
		        s.score, s.comments, s.is_signed, s.signed_at, s.created_at, s.updated_at
		 FROM scores s
		 INNER JOIN criteria c ON c.id = s.criterion_id`,
		func(rows *sql.Rows) (models.Score, bool, error) {
			var (
				r        models.Score
				comments sql.NullString
				signedAt sql.NullTime
			)
			if err := rows.Scan(&r.ID, &r.SubcategoryID, &r.CriterionID, &r.ContestantID, &r.JudgeID,
				&r.Score, &comments, &r.IsSigned, &signedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
				return r, false, err
			}
			r.Comments = nullStr(comments)
			r.SignedAt = nullTime(signedAt)
			if !r.IsSigned {
				r.SignedAt = nil
			}
			r.CreatedAt = r.CreatedAt.UTC()
			r.UpdatedAt = r.UpdatedAt.UTC()
			return r, true, nil
		})
	return n, err
}

// migrateJudgeCertifications keeps three-column certifications only. Rows
// written in the two-column form carry no contestant and are counted as
// skipped.
func migrateJudgeCertifications(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, int, error) {
	return copyRows(ctx, myDB, db,
		"SELECT id, subcategory_id, contestant_id, judge_id, signature_name, certified_at FROM judge_certifications",
		func(rows *sql.Rows) (models.JudgeCertification, bool, error) {
			var (
				r          models.JudgeCertification
				contestant sql.NullInt64
			)
			if err := rows.Scan(&r.ID, &r.SubcategoryID, &contestant, &r.JudgeID, &r.SignatureName, &r.CertifiedAt); err != nil {
				return r, false, err
			}
			if !contestant.Valid || contestant.Int64 <= 0 {
				return r, false, nil
			}
			r.ContestantID = contestant.Int64
			r.CertifiedAt = r.CertifiedAt.UTC()
			return r, true, nil
		})
}

// Legacy sign-offs predate score removal, so they import at epoch 0,
// revision 1.
func migrateTallyCertifications(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT id, subcategory_id, certified_by, signature_name, certified_at FROM tally_master_certifications",
		func(rows *sql.Rows) (models.TallyMasterCertification, bool, error) {
			r := models.TallyMasterCertification{Revision: 1}
			err := rows.Scan(&r.ID, &r.SubcategoryID, &r.CertifiedBy, &r.SignatureName, &r.CertifiedAt)
			r.CertifiedAt = r.CertifiedAt.UTC()
			return r, err == nil, err
		})
	return n, err
}

func migrateAuditorCertifications(ctx context.Context, myDB *sql.DB, db *bun.DB) (int, error) {
	n, _, err := copyRows(ctx, myDB, db,
		"SELECT id, subcategory_id, certified_by, signature_name, certified_at FROM auditor_certifications",
		func(rows *sql.Rows) (models.AuditorCertification, bool, error) {
			r := models.AuditorCertification{Revision: 1, TallyRevision: 1}
			err := rows.Scan(&r.ID, &r.SubcategoryID, &r.CertifiedBy, &r.SignatureName, &r.CertifiedAt)
			r.CertifiedAt = r.CertifiedAt.UTC()
			return r, err == nil, err
		})
	return n, err
}

// resetSequences advances each PG sequence to MAX(id) so new inserts don't conflict.
func resetSequences(ctx context.Context, db *bun.DB) {
	tables := []string{
		"users", "subcategories", "criteria", "subcategory_judges", "subcategory_contestants",
		"scores", "judge_certifications", "tally_master_certifications", "auditor_certifications",
	}
	for _, table := range tables {
		seq := table + "_id_seq"
		q := fmt.Sprintf(
			"SELECT setval('%s', COALESCE((SELECT MAX(id) FROM %s), 1))",
			seq, table,
		)
		if _, err := db.ExecContext(ctx, q); err != nil {
			log.Printf("reset seq %s: %v", seq, err)
		}
	}
	log.Println("sequences reset")
}
