package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/db"
	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_analysis":        `INSERT INTO analyses (id, item, category, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_analysis_status": `UPDATE analyses SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_analysis_result": `UPDATE analyses SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_analysis":           `SELECT id, item, category, status, result, created_at, updated_at FROM analyses WHERE id = $1`,
	"votes_by_analysis":      `SELECT id, analysis_id, provider_id, stage, item_name, category, estimated_value, decision, confidence, response_time_ms, raw_response, created_at FROM votes WHERE analysis_id = $1 ORDER BY created_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	item       JSONB NOT NULL,
	category   JSONB,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS votes (
	id               TEXT PRIMARY KEY,
	analysis_id      TEXT NOT NULL REFERENCES analyses(id),
	provider_id      TEXT NOT NULL,
	stage            TEXT NOT NULL,
	item_name        TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	estimated_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	decision         TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	raw_response     JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ground_truths (
	analysis_id  TEXT PRIMARY KEY REFERENCES analyses(id),
	price        DOUBLE PRECISION NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	confirmed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS benchmark_records (
	id                  TEXT PRIMARY KEY,
	vote_id             TEXT NOT NULL,
	analysis_id         TEXT NOT NULL,
	provider_id         TEXT NOT NULL,
	stage               TEXT NOT NULL,
	ground_truth_price  DOUBLE PRECISION,
	price_error_dollars DOUBLE PRECISION,
	price_error_percent DOUBLE PRECISION,
	price_direction     TEXT,
	decision_correct    BOOLEAN,
	scored_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	analysis_id    TEXT NOT NULL,
	ground_truth   JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_votes_analysis_id ON votes(analysis_id);
CREATE INDEX IF NOT EXISTS idx_votes_provider_id ON votes(provider_id);
CREATE INDEX IF NOT EXISTS idx_benchmark_provider ON benchmark_records(provider_id);
CREATE INDEX IF NOT EXISTS idx_benchmark_analysis ON benchmark_records(analysis_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, item model.Item) (*model.Analysis, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal item")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, item, category, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, itemJSON, nil, string(model.AnalysisStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}

	return &model.Analysis{
		ID:        id,
		Item:      item,
		Status:    model.AnalysisStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateAnalysisCategory(ctx context.Context, analysisID string, det model.CategoryDetection) error {
	detJSON, err := json.Marshal(det)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal category")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET category = $1, updated_at = $2 WHERE id = $3`,
		detJSON, time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis category %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis status %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.ConsensusResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.AnalysisStatusComplete), time.Now().UTC(), analysisID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis result %s", analysisID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis not found: %s", analysisID)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	var a model.Analysis
	var itemJSON []byte
	var categoryJSON, resultJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, item, category, status, result, created_at, updated_at FROM analyses WHERE id = $1`,
		analysisID,
	).Scan(&a.ID, &itemJSON, &categoryJSON, &a.Status, &resultJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", analysisID)
	}

	if err := json.Unmarshal(itemJSON, &a.Item); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal item")
	}
	if categoryJSON != nil {
		if err := json.Unmarshal(*categoryJSON, &a.Category); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal category")
		}
	}
	if resultJSON != nil {
		a.Result = &model.ConsensusResult{}
		if err := json.Unmarshal(*resultJSON, a.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	query := `SELECT id, item, category, status, result, created_at, updated_at FROM analyses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		var itemJSON []byte
		var categoryJSON, resultJSON *[]byte

		if err := rows.Scan(&a.ID, &itemJSON, &categoryJSON, &a.Status, &resultJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		if err := json.Unmarshal(itemJSON, &a.Item); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal item")
		}
		if categoryJSON != nil {
			if err := json.Unmarshal(*categoryJSON, &a.Category); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal category")
			}
		}
		if resultJSON != nil {
			a.Result = &model.ConsensusResult{}
			if err := json.Unmarshal(*resultJSON, a.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

var voteColumns = []string{
	"id", "analysis_id", "provider_id", "stage", "item_name", "category",
	"estimated_value", "decision", "confidence", "response_time_ms",
	"raw_response", "created_at",
}

func (s *PostgresStore) SaveVotes(ctx context.Context, votes []model.Vote) error {
	rows := make([][]any, len(votes))
	for i, v := range votes {
		rows[i] = []any{
			v.ID, v.AnalysisID, v.ProviderID, string(v.Stage), v.ItemName, v.Category,
			v.EstimatedValue, string(v.Decision), v.Confidence, v.ResponseTimeMs,
			[]byte(v.RawResponse), v.CreatedAt,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "votes", voteColumns, rows)
	return eris.Wrap(err, "postgres: save votes")
}

func (s *PostgresStore) VotesByAnalysis(ctx context.Context, analysisID string) ([]model.Vote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, analysis_id, provider_id, stage, item_name, category, estimated_value, decision, confidence, response_time_ms, raw_response, created_at
		 FROM votes WHERE analysis_id = $1 ORDER BY created_at`,
		analysisID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: votes for analysis %s", analysisID)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		var raw *[]byte
		if err := rows.Scan(&v.ID, &v.AnalysisID, &v.ProviderID, &v.Stage, &v.ItemName, &v.Category,
			&v.EstimatedValue, &v.Decision, &v.Confidence, &v.ResponseTimeMs, &raw, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vote")
		}
		if raw != nil {
			v.RawResponse = *raw
		}
		votes = append(votes, v)
	}
	return votes, eris.Wrap(rows.Err(), "postgres: votes iterate")
}

func (s *PostgresStore) SaveGroundTruth(ctx context.Context, truth model.GroundTruth) error {
	confirmedAt := truth.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ground_truths (analysis_id, price, source, confirmed_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (analysis_id) DO UPDATE SET price = $2, source = $3, confirmed_at = $4`,
		truth.AnalysisID, truth.Price, truth.Source, confirmedAt,
	)
	return eris.Wrap(err, "postgres: save ground truth")
}

func (s *PostgresStore) GetGroundTruth(ctx context.Context, analysisID string) (*model.GroundTruth, error) {
	var gt model.GroundTruth
	err := s.pool.QueryRow(ctx,
		`SELECT analysis_id, price, source, confirmed_at FROM ground_truths WHERE analysis_id = $1`,
		analysisID,
	).Scan(&gt.AnalysisID, &gt.Price, &gt.Source, &gt.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get ground truth %s", analysisID)
	}
	return &gt, nil
}

var benchmarkColumns = []string{
	"id", "vote_id", "analysis_id", "provider_id", "stage",
	"ground_truth_price", "price_error_dollars", "price_error_percent",
	"price_direction", "decision_correct", "scored_at",
}

func (s *PostgresStore) SaveBenchmarkRecords(ctx context.Context, records []model.BenchmarkRecord) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		var direction *string
		if r.PriceDirection != nil {
			d := string(*r.PriceDirection)
			direction = &d
		}
		rows[i] = []any{
			r.ID, r.VoteID, r.AnalysisID, r.ProviderID, string(r.Stage),
			r.GroundTruthPrice, r.PriceErrorDollars, r.PriceErrorPercent,
			direction, r.DecisionCorrect, r.ScoredAt,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "benchmark_records", benchmarkColumns, rows)
	return eris.Wrap(err, "postgres: save benchmark records")
}

func (s *PostgresStore) BenchmarkRecords(ctx context.Context, providerID string) ([]model.BenchmarkRecord, error) {
	query := `SELECT id, vote_id, analysis_id, provider_id, stage, ground_truth_price, price_error_dollars, price_error_percent, price_direction, decision_correct, scored_at
	          FROM benchmark_records`
	args := []any{}
	if providerID != "" {
		query += ` WHERE provider_id = $1`
		args = append(args, providerID)
	}
	query += ` ORDER BY scored_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list benchmark records")
	}
	defer rows.Close()

	var records []model.BenchmarkRecord
	for rows.Next() {
		var r model.BenchmarkRecord
		var direction *string
		if err := rows.Scan(&r.ID, &r.VoteID, &r.AnalysisID, &r.ProviderID, &r.Stage,
			&r.GroundTruthPrice, &r.PriceErrorDollars, &r.PriceErrorPercent,
			&direction, &r.DecisionCorrect, &r.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan benchmark record")
		}
		if direction != nil {
			d := model.PriceDirection(*direction)
			r.PriceDirection = &d
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: benchmark records iterate")
}

// Dead letter queue methods

func (s *PostgresStore) SaveDLQEntry(ctx context.Context, entry resilience.DLQEntry) error {
	truthJSON, err := json.Marshal(entry.GroundTruth)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq ground truth")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, analysis_id, ground_truth, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, entry.AnalysisID, truthJSON, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: save dlq entry")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, analysis_id, ground_truth, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var truthJSON []byte
		if err := rows.Scan(&e.ID, &e.AnalysisID, &truthJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(truthJSON, &e.GroundTruth); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq ground truth")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
