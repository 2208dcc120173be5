package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/headline-goat/adlift/internal/stats"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ab_tests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    dimension TEXT NOT NULL DEFAULT 'creative',
    status TEXT NOT NULL DEFAULT 'draft',
    confidence_level REAL NOT NULL DEFAULT 0.95,
    min_sample_size INTEGER NOT NULL CHECK (min_sample_size > 0),
    offer_id INTEGER,
    start_date INTEGER NOT NULL,
    end_date INTEGER,
    winner_variant_id INTEGER,
    statistical_confidence REAL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_ab_tests_status ON ab_tests(status);

CREATE TABLE IF NOT EXISTS ab_test_variants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ab_test_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    variant_name TEXT NOT NULL,
    variant_label TEXT NOT NULL DEFAULT '',
    is_control INTEGER NOT NULL DEFAULT 0,
    campaign_ids TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'active',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (ab_test_id) REFERENCES ab_tests(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_test ON ab_test_variants(ab_test_id, position);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_one_control ON ab_test_variants(ab_test_id) WHERE is_control = 1;

CREATE TABLE IF NOT EXISTS campaign_performance (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    campaign_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    impressions INTEGER,
    clicks INTEGER,
    conversions INTEGER,
    cost REAL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_performance_campaign_date ON campaign_performance(campaign_id, date);
`

func Open(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		// Writes take the lock up front so a busy writer waits instead of
		// failing on a stale snapshot.
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db.DB
}

type testRow struct {
	ID                    int64           `db:"id"`
	Name                  string          `db:"name"`
	Dimension             string          `db:"dimension"`
	Status                string          `db:"status"`
	ConfidenceLevel       float64         `db:"confidence_level"`
	MinSampleSize         int64           `db:"min_sample_size"`
	OfferID               sql.NullInt64   `db:"offer_id"`
	StartDate             int64           `db:"start_date"`
	EndDate               sql.NullInt64   `db:"end_date"`
	WinnerVariantID       sql.NullInt64   `db:"winner_variant_id"`
	StatisticalConfidence sql.NullFloat64 `db:"statistical_confidence"`
	CreatedAt             int64           `db:"created_at"`
	UpdatedAt             int64           `db:"updated_at"`
}

const testColumns = `id, name, dimension, status, confidence_level, min_sample_size, offer_id,
	start_date, end_date, winner_variant_id, statistical_confidence, created_at, updated_at`

// toTest resolves the stored strings into typed values once, at load time.
func (r testRow) toTest() (*ABTest, error) {
	dim, err := ParseDimension(r.Dimension)
	if err != nil {
		return nil, fmt.Errorf("test %d: %w", r.ID, err)
	}
	status, err := ParseTestStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("test %d: %w", r.ID, err)
	}
	level, err := stats.ParseConfidenceLevel(r.ConfidenceLevel)
	if err != nil {
		return nil, fmt.Errorf("test %d: %w", r.ID, err)
	}

	test := &ABTest{
		ID:              r.ID,
		Name:            r.Name,
		Dimension:       dim,
		Status:          status,
		ConfidenceLevel: level,
		MinSampleSize:   r.MinSampleSize,
		StartDate:       time.Unix(r.StartDate, 0).UTC(),
		CreatedAt:       time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.OfferID.Valid {
		id := r.OfferID.Int64
		test.OfferID = &id
	}
	if r.EndDate.Valid {
		end := time.Unix(r.EndDate.Int64, 0).UTC()
		test.EndDate = &end
	}
	if r.WinnerVariantID.Valid {
		w := r.WinnerVariantID.Int64
		test.WinnerVariantID = &w
	}
	if r.StatisticalConfidence.Valid {
		c := r.StatisticalConfidence.Float64
		test.StatisticalConfidence = &c
	}
	return test, nil
}

type variantRow struct {
	ID          int64  `db:"id"`
	TestID      int64  `db:"ab_test_id"`
	Position    int    `db:"position"`
	Name        string `db:"variant_name"`
	Label       string `db:"variant_label"`
	IsControl   bool   `db:"is_control"`
	CampaignIDs string `db:"campaign_ids"`
	Status      string `db:"status"`
}

func (r variantRow) toVariant() (Variant, error) {
	v := Variant{
		ID:        r.ID,
		TestID:    r.TestID,
		Position:  r.Position,
		Name:      r.Name,
		Label:     r.Label,
		IsControl: r.IsControl,
		Status:    r.Status,
	}
	if err := json.Unmarshal([]byte(r.CampaignIDs), &v.CampaignIDs); err != nil {
		return Variant{}, fmt.Errorf("failed to unmarshal campaign ids: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) CreateTest(ctx context.Context, nt NewTest) (*ABTest, []Variant, error) {
	if err := nt.Validate(); err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var endDate sql.NullInt64
	if nt.EndDate != nil {
		endDate = sql.NullInt64{Int64: nt.EndDate.Unix(), Valid: true}
	}
	var offerID sql.NullInt64
	if nt.OfferID != nil {
		offerID = sql.NullInt64{Int64: *nt.OfferID, Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ab_tests (name, dimension, status, confidence_level, min_sample_size, offer_id, start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, 'draft', ?, ?, ?, ?, ?, ?, ?)`,
		nt.Name, nt.Dimension, nt.ConfidenceLevel, nt.MinSampleSize, offerID, nt.StartDate.Unix(), endDate, now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert test: %w", err)
	}

	testID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i, v := range nt.Variants {
		campaignsJSON, err := json.Marshal(v.CampaignIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal campaign ids: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ab_test_variants (ab_test_id, position, variant_name, variant_label, is_control, campaign_ids, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			testID, i, v.Name, v.Label, v.IsControl, string(campaignsJSON), now,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert variant %q: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit test: %w", err)
	}

	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return nil, nil, err
	}
	variants, err := s.ListVariants(ctx, testID)
	if err != nil {
		return nil, nil, err
	}
	return test, variants, nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, id int64) (*ABTest, error) {
	var row testRow
	err := s.db.GetContext(ctx, &row, `SELECT `+testColumns+` FROM ab_tests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return row.toTest()
}

func (s *SQLiteStore) ListTests(ctx context.Context) ([]*ABTest, error) {
	var rows []testRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+testColumns+` FROM ab_tests ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return toTests(rows)
}

func (s *SQLiteStore) ListTestsByStatus(ctx context.Context, status TestStatus) ([]*ABTest, error) {
	var rows []testRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+testColumns+` FROM ab_tests WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tests: %w", status, err)
	}
	return toTests(rows)
}

func toTests(rows []testRow) ([]*ABTest, error) {
	tests := make([]*ABTest, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTest()
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}

// ListVariants returns the variants of a test in stored order.
func (s *SQLiteStore) ListVariants(ctx context.Context, testID int64) ([]Variant, error) {
	var rows []variantRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, ab_test_id, position, variant_name, variant_label, is_control, campaign_ids, status
		 FROM ab_test_variants WHERE ab_test_id = ? ORDER BY position, id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}

	variants := make([]Variant, 0, len(rows))
	for _, r := range rows {
		v, err := r.toVariant()
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// SetStatus moves a test to a new status when its current status is one of from.
func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, from []TestStatus, to TestStatus) error {
	if to == StatusConcluded {
		return fmt.Errorf("%w: use ConcludeTest to conclude a test", ErrInvalidTransition)
	}

	query, args, err := sqlx.In(
		`UPDATE ab_tests SET status = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		string(to), time.Now().Unix(), id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update test status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		test, err := s.GetTest(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, test.Status, to)
	}
	return nil
}

// ConcludeTest atomically moves a test to concluded and locks the winner.
// It reports false without error when the test was already concluded, so
// concurrent callers lock at most one winner.
func (s *SQLiteStore) ConcludeTest(ctx context.Context, id int64, c Conclusion) (bool, error) {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}

	var winner sql.NullInt64
	if c.WinnerVariantID != nil {
		winner = sql.NullInt64{Int64: *c.WinnerVariantID, Valid: true}
	}
	var confidence sql.NullFloat64
	if c.StatisticalConfidence != nil {
		confidence = sql.NullFloat64{Float64: *c.StatisticalConfidence, Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE ab_tests
		 SET status = 'concluded',
		     winner_variant_id = ?,
		     statistical_confidence = ?,
		     end_date = COALESCE(end_date, ?),
		     updated_at = ?
		 WHERE id = ? AND status <> 'concluded'`,
		winner, confidence, at.Unix(), at.Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to conclude test: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM ab_tests WHERE id = ?`, id)
		if err != nil {
			return false, fmt.Errorf("failed to check test: %w", err)
		}
		if exists == 0 {
			return false, ErrNotFound
		}
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit conclusion: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) AppendPerformance(ctx context.Context, rows []LedgerRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO campaign_performance (campaign_id, date, impressions, clicks, conversions, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.CampaignID, r.Date.UTC().Format(DateLayout), r.Impressions, r.Clicks, r.Conversions, r.Cost, now)
		if err != nil {
			return fmt.Errorf("failed to record performance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit performance: %w", err)
	}
	return nil
}

type ledgerRow struct {
	CampaignID  int64   `db:"campaign_id"`
	Date        string  `db:"date"`
	Impressions int64   `db:"impressions"`
	Clicks      int64   `db:"clicks"`
	Conversions int64   `db:"conversions"`
	Cost        float64 `db:"cost"`
}

// PerformanceRows reads ledger rows for the campaigns with from <= date <= to
// (day granularity). Missing counters read as 0.
func (s *SQLiteStore) PerformanceRows(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]LedgerRow, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT
			campaign_id,
			date,
			COALESCE(impressions, 0) AS impressions,
			COALESCE(clicks, 0) AS clicks,
			COALESCE(conversions, 0) AS conversions,
			COALESCE(cost, 0.0) AS cost
		FROM campaign_performance
		WHERE campaign_id IN (?) AND date >= ? AND date <= ?
		ORDER BY date, id
	`, campaignIDs, from.UTC().Format(DateLayout), to.UTC().Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger query: %w", err)
	}

	var raw []ledgerRow
	if err := s.db.SelectContext(ctx, &raw, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	rows := make([]LedgerRow, 0, len(raw))
	for _, r := range raw {
		day, err := time.Parse(DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("ledger row for campaign %d: bad date %q: %w", r.CampaignID, r.Date, err)
		}
		rows = append(rows, LedgerRow{
			CampaignID:  r.CampaignID,
			Date:        day,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Conversions: r.Conversions,
			Cost:        r.Cost,
		})
	}
	return rows, nil
}
