package scoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/pageantapi/audit"
	"github.com/padraicbc/pageantapi/db"
	"github.com/padraicbc/pageantapi/models"
	"github.com/padraicbc/pageantapi/roster"
)

// Fixture ids. Subcategories 1 and 2 both belong to category 1.
const (
	subA int64 = 1
	subB int64 = 2

	critA1 int64 = 11
	critA2 int64 = 12
	critA3 int64 = 13
	critB1 int64 = 21

	judge1 int64 = 101
	judge2 int64 = 102

	contestant1 int64 = 201
	contestant2 int64 = 202
	contestant3 int64 = 203
)

var (
	asJudge1     = Identity{UserID: judge1, Role: RoleJudge}
	asJudge2     = Identity{UserID: judge2, Role: RoleJudge}
	asTally      = Identity{UserID: 301, Role: RoleTallyMaster}
	asAuditor    = Identity{UserID: 401, Role: RoleAuditor}
	asAuditor2   = Identity{UserID: 402, Role: RoleAuditor}
	asBoard      = Identity{UserID: 501, Role: RoleBoard}
	asHeadJudge  = Identity{UserID: 601, Role: RoleHeadJudge}
	fixedNow     = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	fixedClock   = func() time.Time { return fixedNow }
	allCriteriaA = []int64{critA1, critA2, critA3}
)

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditor) Record(_ context.Context, e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeAuditor) last() audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return audit.Entry{}
	}
	return f.entries[len(f.entries)-1]
}

// memCache is an in-process TotalsCache with the same generation semantics
// as the Redis cache.
type memCache struct {
	mu      sync.Mutex
	gens    map[int64]int64
	entries map[string][]byte
	hits    int
}

func newMemCache() *memCache {
	return &memCache{gens: map[int64]int64{}, entries: map[string][]byte{}}
}

func memKey(sub, gen int64, field string) string {
	return fmt.Sprintf("%d/%d/%s", sub, gen, field)
}

func (m *memCache) Generation(_ context.Context, sub int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[sub], nil
}

func (m *memCache) Get(_ context.Context, sub, gen int64, field string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.entries[memKey(sub, gen, field)]
	if ok {
		m.hits++
	}
	return b, ok, nil
}

func (m *memCache) Set(_ context.Context, sub, gen int64, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey(sub, gen, field)] = value
	return nil
}

func (m *memCache) Invalidate(_ context.Context, sub int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[sub]++
	return nil
}

type fixture struct {
	db      *bun.DB
	svc     *Service
	auditor *fakeAuditor
	cache   *memCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	bdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { bdb.Close() })
	if err := db.CreateTables(ctx, bdb); err != nil {
		t.Fatalf("create tables: %v", err)
	}

	store := roster.New(bdb)
	for _, sc := range []*models.Subcategory{
		{ID: subA, CategoryID: 1, Name: "Evening Gown"},
		{ID: subB, CategoryID: 1, Name: "Interview"},
	} {
		if err := store.AddSubcategory(ctx, sc); err != nil {
			t.Fatalf("add subcategory: %v", err)
		}
	}
	for i, c := range []*models.Criterion{
		{ID: critA1, SubcategoryID: subA, Name: "Poise", MaxScore: 10, Position: 1},
		{ID: critA2, SubcategoryID: subA, Name: "Presence", MaxScore: 10, Position: 2},
		{ID: critA3, SubcategoryID: subA, Name: "Styling", MaxScore: 10, Position: 3},
		{ID: critB1, SubcategoryID: subB, Name: "Answer", MaxScore: 10, Position: 1},
	} {
		if err := store.AddCriterion(ctx, c); err != nil {
			t.Fatalf("add criterion %d: %v", i, err)
		}
	}
	for _, j := range []int64{judge1, judge2} {
		if err := store.AssignJudge(ctx, subA, j); err != nil {
			t.Fatalf("assign judge: %v", err)
		}
	}
	if err := store.AssignJudge(ctx, subB, judge1); err != nil {
		t.Fatalf("assign judge: %v", err)
	}
	for _, c := range []int64{contestant1, contestant2, contestant3} {
		if err := store.EnterContestant(ctx, subA, c); err != nil {
			t.Fatalf("enter contestant: %v", err)
		}
	}
	for _, c := range []int64{contestant1, contestant2} {
		if err := store.EnterContestant(ctx, subB, c); err != nil {
			t.Fatalf("enter contestant: %v", err)
		}
	}

	aud := &fakeAuditor{}
	cache := newMemCache()
	svc := NewService(bdb, store,
		WithAuditor(aud),
		WithCache(cache),
		WithLogger(zap.NewNop()),
		WithClock(fixedClock),
	)
	return &fixture{db: bdb, svc: svc, auditor: aud, cache: cache}
}

func (f *fixture) submit(t *testing.T, who Identity, criterionID, contestantID int64, value float64) *models.Score {
	t.Helper()
	sc, err := f.svc.SubmitScore(context.Background(), who, SubmitScoreInput{
		CriterionID: criterionID, ContestantID: contestantID, Score: value,
	})
	if err != nil {
		t.Fatalf("submit score %g for criterion %d contestant %d: %v", value, criterionID, contestantID, err)
	}
	return sc
}

func (f *fixture) submitSigned(t *testing.T, who Identity, criterionID, contestantID int64, value float64) *models.Score {
	t.Helper()
	sc := f.submit(t, who, criterionID, contestantID, value)
	signed, err := f.svc.SignScore(context.Background(), who, sc.ID)
	if err != nil {
		t.Fatalf("sign score %d: %v", sc.ID, err)
	}
	return signed
}

// certifyAllJudges signs a full ledger for every judge and contestant in
// subcategory A and certifies each pair.
func (f *fixture) certifyAllJudges(t *testing.T) {
	t.Helper()
	for _, who := range []Identity{asJudge1, asJudge2} {
		for _, c := range []int64{contestant1, contestant2, contestant3} {
			for _, crit := range allCriteriaA {
				f.submitSigned(t, who, crit, c, 7)
			}
			if _, err := f.svc.CertifyJudge(context.Background(), who, CertifyJudgeInput{
				SubcategoryID: subA, ContestantID: c, SignatureName: "Judge",
			}); err != nil {
				t.Fatalf("certify judge %d contestant %d: %v", who.UserID, c, err)
			}
		}
	}
}

func (f *fixture) countScores(t *testing.T, judgeID, contestantID, criterionID int64) int {
	t.Helper()
	n, err := f.db.NewSelect().Model((*models.Score)(nil)).
		Where("judge_id = ?", judgeID).
		Where("contestant_id = ?", contestantID).
		Where("criterion_id = ?", criterionID).
		Count(context.Background())
	if err != nil {
		t.Fatalf("count scores: %v", err)
	}
	return n
}
