// Package scoring implements the judging workflow: the score ledger, score
// signing, tabulation, the certification chain and the score removal
// workflow.
//
// Every operation takes the caller's Identity explicitly and runs as a single
// statement or a single transaction against the store. Audit entries are
// handed to an Auditor after the outcome is known and never affect it.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"

	"github.com/padraicbc/pageantapi/audit"
	"github.com/padraicbc/pageantapi/models"
)

// Roster is the external source of assignments and criteria.
type Roster interface {
	IsJudgeAssigned(ctx context.Context, judgeID, subcategoryID int64) (bool, error)
	AssignedJudges(ctx context.Context, subcategoryID int64) ([]int64, error)
	AssignedContestants(ctx context.Context, subcategoryID int64) ([]int64, error)
	// Criterion returns nil, nil when the criterion does not exist.
	Criterion(ctx context.Context, criterionID int64) (*models.Criterion, error)
	Criteria(ctx context.Context, subcategoryID int64) ([]models.Criterion, error)
	Subcategories(ctx context.Context, categoryID int64) ([]int64, error)
}

// Auditor receives an entry for every mutating operation. Implementations
// must not block on the write.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// TotalsCache stores computed tabulation results per subcategory generation.
type TotalsCache interface {
	Generation(ctx context.Context, subcategoryID int64) (int64, error)
	Get(ctx context.Context, subcategoryID, gen int64, field string) ([]byte, bool, error)
	Set(ctx context.Context, subcategoryID, gen int64, field string, value []byte) error
	Invalidate(ctx context.Context, subcategoryID int64) error
}

type Service struct {
	db     *bun.DB
	roster Roster
	audit  Auditor
	cache  TotalsCache
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

func WithCache(c TotalsCache) Option { return func(s *Service) { s.cache = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the time source; tests use it for fixed timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(db *bun.DB, roster Roster, opts ...Option) *Service {
	s := &Service{
		db:     db,
		roster: roster,
		audit:  nopAuditor{},
		cache:  nopCache{},
		log:    zap.L(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp returns the current time at the store's precision.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// inTx runs fn in a transaction and commits when it returns nil.
// Everything inside fn must go through tx.
func (s *Service) inTx(ctx context.Context, fn func(tx bun.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// lockingRead applies a row lock on Postgres. SQLite serializes writers, so
// there it is a no-op.
func lockingRead(db bun.IDB, q *bun.SelectQuery, mode string) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For(mode)
	}
	return q
}

// record hands an audit entry to the auditor and logs the outcome.
func (s *Service) record(ctx context.Context, action, resourceType string, resourceID int64, actor Identity, err error) {
	e := audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actor.UserID,
		ActorRole:    string(actor.Role),
		Outcome:      audit.OutcomeOK,
		At:           s.timestamp(),
	}
	if err != nil {
		code := GetCode(err)
		e.Outcome = string(code)
		e.Detail = err.Error()
		if code == CodeUnknown {
			s.log.Error(action+" failed", zap.Int64("resource_id", resourceID), zap.Int64("actor_id", actor.UserID), zap.Error(err))
		} else {
			s.log.Debug(action+" rejected", zap.Int64("resource_id", resourceID), zap.String("code", string(code)), zap.Error(err))
		}
	}
	s.audit.Record(ctx, e)
}

func (s *Service) invalidate(ctx context.Context, subcategoryID int64) {
	if err := s.cache.Invalidate(ctx, subcategoryID); err != nil {
		s.log.Warn("tabulation cache invalidation failed", zap.Int64("subcategory_id", subcategoryID), zap.Error(err))
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Entry) {}

type nopCache struct{}

func (nopCache) Generation(context.Context, int64) (int64, error) { return 0, nil }

func (nopCache) Get(context.Context, int64, int64, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (nopCache) Set(context.Context, int64, int64, string, []byte) error { return nil }

func (nopCache) Invalidate(context.Context, int64) error { return nil }
