package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// for single-user CLI runs; postgres serves the hosted API.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	item       TEXT NOT NULL,
	category   TEXT,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS votes (
	id               TEXT PRIMARY KEY,
	analysis_id      TEXT NOT NULL REFERENCES analyses(id),
	provider_id      TEXT NOT NULL,
	stage            TEXT NOT NULL,
	item_name        TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	estimated_value  REAL NOT NULL DEFAULT 0,
	decision         TEXT NOT NULL,
	confidence       REAL NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	raw_response     TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ground_truths (
	analysis_id  TEXT PRIMARY KEY REFERENCES analyses(id),
	price        REAL NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	confirmed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS benchmark_records (
	id                  TEXT PRIMARY KEY,
	vote_id             TEXT NOT NULL,
	analysis_id         TEXT NOT NULL,
	provider_id         TEXT NOT NULL,
	stage               TEXT NOT NULL,
	ground_truth_price  REAL,
	price_error_dollars REAL,
	price_error_percent REAL,
	price_direction     TEXT,
	decision_correct    BOOLEAN,
	scored_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	analysis_id    TEXT NOT NULL,
	ground_truth   TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_votes_analysis_id ON votes(analysis_id);
CREATE INDEX IF NOT EXISTS idx_votes_provider_id ON votes(provider_id);
CREATE INDEX IF NOT EXISTS idx_benchmark_provider ON benchmark_records(provider_id);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, item model.Item) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal item")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, item, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(itemJSON), string(model.AnalysisStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}

	return &model.Analysis{
		ID:        id,
		Item:      item,
		Status:    model.AnalysisStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateAnalysisCategory(ctx context.Context, analysisID string, det model.CategoryDetection) error {
	detJSON, err := json.Marshal(det)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal category")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET category = ?, updated_at = ? WHERE id = ?`,
		string(detJSON), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis category %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

func (s *SQLiteStore) UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis status %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

func (s *SQLiteStore) UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.ConsensusResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.AnalysisStatusComplete), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis result %s", analysisID)
	}
	return checkRowsAffected(res, "analysis", analysisID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	var a model.Analysis
	var itemJSON string
	var categoryJSON, resultJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, item, category, status, result, created_at, updated_at FROM analyses WHERE id = ?`,
		analysisID,
	).Scan(&a.ID, &itemJSON, &categoryJSON, &a.Status, &resultJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", analysisID)
	}

	if err := json.Unmarshal([]byte(itemJSON), &a.Item); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal item")
	}
	if categoryJSON.Valid {
		if err := json.Unmarshal([]byte(categoryJSON.String), &a.Category); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal category")
		}
	}
	if resultJSON.Valid {
		a.Result = &model.ConsensusResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), a.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT id, item, category, status, result, created_at, updated_at FROM analyses WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		var itemJSON string
		var categoryJSON, resultJSON sql.NullString

		if err := rows.Scan(&a.ID, &itemJSON, &categoryJSON, &a.Status, &resultJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		if err := json.Unmarshal([]byte(itemJSON), &a.Item); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal item")
		}
		if categoryJSON.Valid {
			if err := json.Unmarshal([]byte(categoryJSON.String), &a.Category); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal category")
			}
		}
		if resultJSON.Valid {
			a.Result = &model.ConsensusResult{}
			if err := json.Unmarshal([]byte(resultJSON.String), a.Result); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal result")
			}
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) SaveVotes(ctx context.Context, votes []model.Vote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save votes")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO votes (id, analysis_id, provider_id, stage, item_name, category, estimated_value, decision, confidence, response_time_ms, raw_response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save votes")
	}
	defer stmt.Close()

	for _, v := range votes {
		if _, err := stmt.ExecContext(ctx,
			v.ID, v.AnalysisID, v.ProviderID, string(v.Stage), v.ItemName, v.Category,
			v.EstimatedValue, string(v.Decision), v.Confidence, v.ResponseTimeMs,
			string(v.RawResponse), v.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert vote %s", v.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save votes")
}

func (s *SQLiteStore) VotesByAnalysis(ctx context.Context, analysisID string) ([]model.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, provider_id, stage, item_name, category, estimated_value, decision, confidence, response_time_ms, raw_response, created_at
		 FROM votes WHERE analysis_id = ? ORDER BY created_at`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: votes for analysis %s", analysisID)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		var raw sql.NullString
		if err := rows.Scan(&v.ID, &v.AnalysisID, &v.ProviderID, &v.Stage, &v.ItemName, &v.Category,
			&v.EstimatedValue, &v.Decision, &v.Confidence, &v.ResponseTimeMs, &raw, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vote")
		}
		if raw.Valid {
			v.RawResponse = json.RawMessage(raw.String)
		}
		votes = append(votes, v)
	}
	return votes, eris.Wrap(rows.Err(), "sqlite: votes iterate")
}

func (s *SQLiteStore) SaveGroundTruth(ctx context.Context, truth model.GroundTruth) error {
	confirmedAt := truth.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ground_truths (analysis_id, price, source, confirmed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (analysis_id) DO UPDATE SET price = excluded.price, source = excluded.source, confirmed_at = excluded.confirmed_at`,
		truth.AnalysisID, truth.Price, truth.Source, confirmedAt,
	)
	return eris.Wrap(err, "sqlite: save ground truth")
}

func (s *SQLiteStore) GetGroundTruth(ctx context.Context, analysisID string) (*model.GroundTruth, error) {
	var gt model.GroundTruth
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_id, price, source, confirmed_at FROM ground_truths WHERE analysis_id = ?`,
		analysisID,
	).Scan(&gt.AnalysisID, &gt.Price, &gt.Source, &gt.ConfirmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get ground truth %s", analysisID)
	}
	return &gt, nil
}

func (s *SQLiteStore) SaveBenchmarkRecords(ctx context.Context, records []model.BenchmarkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save benchmark records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO benchmark_records (id, vote_id, analysis_id, provider_id, stage, ground_truth_price, price_error_dollars, price_error_percent, price_direction, decision_correct, scored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save benchmark records")
	}
	defer stmt.Close()

	for _, r := range records {
		var direction *string
		if r.PriceDirection != nil {
			d := string(*r.PriceDirection)
			direction = &d
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.VoteID, r.AnalysisID, r.ProviderID, string(r.Stage),
			r.GroundTruthPrice, r.PriceErrorDollars, r.PriceErrorPercent,
			direction, r.DecisionCorrect, r.ScoredAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert benchmark record %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save benchmark records")
}

func (s *SQLiteStore) BenchmarkRecords(ctx context.Context, providerID string) ([]model.BenchmarkRecord, error) {
	query := `SELECT id, vote_id, analysis_id, provider_id, stage, ground_truth_price, price_error_dollars, price_error_percent, price_direction, decision_correct, scored_at
	          FROM benchmark_records`
	args := []any{}
	if providerID != "" {
		query += ` WHERE provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY scored_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list benchmark records")
	}
	defer rows.Close()

	var records []model.BenchmarkRecord
	for rows.Next() {
		var r model.BenchmarkRecord
		var direction sql.NullString
		if err := rows.Scan(&r.ID, &r.VoteID, &r.AnalysisID, &r.ProviderID, &r.Stage,
			&r.GroundTruthPrice, &r.PriceErrorDollars, &r.PriceErrorPercent,
			&direction, &r.DecisionCorrect, &r.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan benchmark record")
		}
		if direction.Valid {
			d := model.PriceDirection(direction.String)
			r.PriceDirection = &d
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: benchmark records iterate")
}

func (s *SQLiteStore) SaveDLQEntry(ctx context.Context, entry resilience.DLQEntry) error {
	truthJSON, err := json.Marshal(entry.GroundTruth)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq ground truth")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, analysis_id, ground_truth, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.AnalysisID, string(truthJSON), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: save dlq entry")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, analysis_id, ground_truth, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= datetime('now') AND retry_count < max_retries`
	args := []any{}

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var truthJSON string
		if err := rows.Scan(&e.ID, &e.AnalysisID, &truthJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(truthJSON), &e.GroundTruth); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq ground truth")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = datetime('now')
		 WHERE id = ?`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// checkRowsAffected converts a zero-row update into a not-found error.
func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
