// Package sqlstore persists daily statistics through database/sql. SQLite is
// served by the pure Go modernc driver and Postgres by pgx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/viant/triage/model"
	"github.com/viant/triage/service/stats"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var sqlOpen = sql.Open

// Store upserts per-day counters into SQL tables.
type Store struct {
	db     *sql.DB
	driver string
	dayOf  stats.DayFunc
}

// Open connects to the database and creates the schema when missing.
func Open(ctx context.Context, driver, dsn string, dayOf stats.DayFunc) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := New(db, driver, dayOf)
	if err = s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database.
func New(db *sql.DB, driver string, dayOf stats.DayFunc) *Store {
	if dayOf == nil {
		dayOf = func(model.Tick) int { return 0 }
	}
	return &Store{db: db, driver: driver, dayOf: dayOf}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

var dailyColumns = []string{
	"visits", "alive", "dead", "lost", "ambulance", "emergency", "blood_work", "xray",
	"surgeries", "surgery_success", "code_blue", "code_blue_survived",
	"surge_patients", "surge_alive", "surge_dead", "surge_lost",
	"wait_total", "wait_count", "wait_max",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS daily_stats (
		day INTEGER PRIMARY KEY,
		` + strings.Join(dailyColumns, " INTEGER NOT NULL DEFAULT 0,\n\t\t") + ` INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS department_visits (
		day INTEGER NOT NULL,
		name TEXT NOT NULL,
		visits INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, name)
	)`,
	`CREATE TABLE IF NOT EXISTS condition_counts (
		day INTEGER NOT NULL,
		name TEXT NOT NULL,
		visits INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, name)
	)`,
}

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Record adds the case to its day in a single transaction.
func (s *Store) Record(ctx context.Context, c *model.Case) (err error) {
	if c == nil || !c.Outcome().Terminal() {
		return stats.ErrUnresolved
	}
	delta := stats.Delta(s.dayOf(c.Resolved()), c)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	if _, err = tx.ExecContext(ctx, s.dailyUpsert(), dailyArgs(delta)...); err != nil {
		return fmt.Errorf("upsert daily_stats: %w", err)
	}
	if err = s.upsertCounts(ctx, tx, "department_visits", delta.Day, delta.Departments); err != nil {
		return err
	}
	if err = s.upsertCounts(ctx, tx, "condition_counts", delta.Day, delta.Conditions); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) upsertCounts(ctx context.Context, tx *sql.Tx, table string, day int, counts map[string]int) error {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	stmt := fmt.Sprintf(`INSERT INTO %s (day, name, visits) VALUES (%s, %s, %s)
		ON CONFLICT (day, name) DO UPDATE SET visits = %s.visits + excluded.visits`,
		table, s.bind(1), s.bind(2), s.bind(3), table)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, stmt, day, name, counts[name]); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) dailyUpsert() string {
	placeholders := make([]string, 0, len(dailyColumns)+1)
	updates := make([]string, 0, len(dailyColumns))
	for i := 0; i <= len(dailyColumns); i++ {
		placeholders = append(placeholders, s.bind(i+1))
	}
	for _, col := range dailyColumns {
		if col == "wait_max" {
			updates = append(updates, "wait_max = CASE WHEN excluded.wait_max > daily_stats.wait_max THEN excluded.wait_max ELSE daily_stats.wait_max END")
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = daily_stats.%s + excluded.%s", col, col, col))
	}
	return fmt.Sprintf(`INSERT INTO daily_stats (day, %s) VALUES (%s)
		ON CONFLICT (day) DO UPDATE SET %s`,
		strings.Join(dailyColumns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func dailyArgs(b stats.Bucket) []interface{} {
	return []interface{}{
		b.Day, b.Visits, b.Alive, b.Dead, b.Lost, b.Ambulance, b.Emergency, b.BloodWork, b.XRay,
		b.Surgeries, b.SurgerySuccess, b.CodeBlue, b.CodeBlueSurvived,
		b.Surge.Patients, b.Surge.Alive, b.Surge.Dead, b.Surge.Lost,
		int64(b.Waiting.Total), b.Waiting.Count, int64(b.Waiting.Max),
	}
}

func (s *Store) bind(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var _ stats.Sink = (*Store)(nil)
