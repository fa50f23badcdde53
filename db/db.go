package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"github.com/padraicbc/pageantapi/config"
	"github.com/padraicbc/pageantapi/models"
)

// Setup opens the scoring store selected by cfg.DBDriver.
func Setup(cfg *config.Config) *bun.DB {
	var db *bun.DB
	switch cfg.DBDriver {
	case config.DriverSQLite:
		var err error
		db, err = OpenSQLite(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.SQLitePath))
		if err != nil {
			log.Fatal("failed to open sqlite database:", err)
		}
	default:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	return db
}

// OpenSQLite opens an embedded SQLite database. SQLite allows a single
// writer, so the pool is capped at one connection; ":memory:" databases also
// depend on that to stay alive between queries.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateTables creates all tables and indexes in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Subcategory)(nil),
		(*models.Criterion)(nil),
		(*models.SubcategoryJudge)(nil),
		(*models.SubcategoryContestant)(nil),
		(*models.Score)(nil),
		(*models.JudgeCertification)(nil),
		(*models.TallyMasterCertification)(nil),
		(*models.AuditorCertification)(nil),
		(*models.ScoreRemovalRequest)(nil),
		(*models.ScoreRemovalSignature)(nil),
		(*models.ActivityLog)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		// One pending or effective removal per judge and subcategory. Removal
		// initiation relies on this index as its conflict target.
		db.NewCreateIndex().Model((*models.ScoreRemovalRequest)(nil)).
			Index("score_removal_requests_one_active").Unique().
			Column("judge_id", "subcategory_id").
			Where("status IN ('pending', 'effective')"),
		db.NewCreateIndex().Model((*models.Score)(nil)).
			Index("scores_subcategory_contestant_idx").
			Column("subcategory_id", "contestant_id"),
		db.NewCreateIndex().Model((*models.Criterion)(nil)).
			Index("criteria_subcategory_idx").
			Column("subcategory_id"),
		db.NewCreateIndex().Model((*models.ActivityLog)(nil)).
			Index("activity_logs_resource_idx").
			Column("resource_type", "resource_id"),
	}
	for _, q := range indexes {
		if _, err := q.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}
