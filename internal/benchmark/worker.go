package benchmark

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// Store is the persistence surface the worker needs. The full store
// implementation satisfies it.
type Store interface {
	VotesByAnalysis(ctx context.Context, analysisID string) ([]model.Vote, error)
	SaveGroundTruth(ctx context.Context, truth model.GroundTruth) error
	SaveBenchmarkRecords(ctx context.Context, records []model.BenchmarkRecord) error
	SaveDLQEntry(ctx context.Context, entry resilience.DLQEntry) error
}

const (
	defaultQueueSize  = 256
	defaultWorkers    = 2
	defaultMaxRetries = 3
	jobTimeout        = 30 * time.Second
)

// dlqSchedule spaces dead-letter redeliveries: 1h, 2h, 4h, capped at a day.
var dlqSchedule = resilience.RetryConfig{
	InitialBackoff: time.Hour,
	MaxBackoff:     24 * time.Hour,
	Multiplier:     2.0,
}

// Config tunes the grading worker pool.
type Config struct {
	// QueueSize bounds the pending-job buffer; a full queue dead-letters.
	QueueSize int
	// Workers is the number of grading goroutines.
	Workers int
	// MaxRetries bounds both in-process grading attempts and dead-letter
	// redeliveries.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// Worker grades analyses against ground truth off the request path. Grading
// is fire-and-forget: a confirmed price is enqueued and the caller moves on;
// failures are logged and dead-lettered, never surfaced to the analysis flow.
type Worker struct {
	store Store
	cfg   Config
	retry resilience.RetryConfig

	jobs chan model.GroundTruth
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorker starts a pool of grading workers.
func NewWorker(store Store, cfg Config) *Worker {
	cfg = cfg.withDefaults()

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries

	w := &Worker{
		store: store,
		cfg:   cfg,
		retry: retry,
		jobs:  make(chan model.GroundTruth, cfg.QueueSize),
	}
	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.run()
	}
	return w
}

// Enqueue submits a confirmed price for grading. It never blocks and never
// panics: a full queue or an already-closed worker dead-letters the job
// instead of failing the caller.
func (w *Worker) Enqueue(truth model.GroundTruth) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		zap.L().Warn("benchmark: enqueue after close, dead-lettering job",
			zap.String("analysis_id", truth.AnalysisID),
		)
		w.deadLetter(truth, eris.New("benchmark: worker closed"))
		return
	}
	select {
	case w.jobs <- truth:
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		zap.L().Warn("benchmark: queue full, dead-lettering job",
			zap.String("analysis_id", truth.AnalysisID),
		)
		w.deadLetter(truth, eris.New("benchmark: queue full"))
	}
}

// Close stops accepting jobs and drains the queue. Safe to call twice.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for truth := range w.jobs {
		w.grade(truth)
	}
}

func (w *Worker) grade(truth model.GroundTruth) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	err := resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return gradeAnalysis(ctx, w.store, truth)
	})
	if err != nil {
		zap.L().Error("benchmark: grading failed",
			zap.String("analysis_id", truth.AnalysisID),
			zap.Error(err),
		)
		w.deadLetter(truth, err)
		return
	}

	zap.L().Info("benchmark: analysis graded",
		zap.String("analysis_id", truth.AnalysisID),
		zap.Float64("ground_truth_price", truth.Price),
	)
}

// gradeAnalysis performs one grading pass: load votes, persist the ground
// truth, score, persist records. Shared by the worker and the DLQ sweep.
func gradeAnalysis(ctx context.Context, st Store, truth model.GroundTruth) error {
	votes, err := st.VotesByAnalysis(ctx, truth.AnalysisID)
	if err != nil {
		return eris.Wrap(err, "benchmark: load votes")
	}
	if len(votes) == 0 {
		return eris.Errorf("benchmark: analysis %s has no votes", truth.AnalysisID)
	}

	if err := st.SaveGroundTruth(ctx, truth); err != nil {
		return eris.Wrap(err, "benchmark: save ground truth")
	}

	records := ScoreAnalysis(votes, &truth)
	if err := st.SaveBenchmarkRecords(ctx, records); err != nil {
		return eris.Wrap(err, "benchmark: save records")
	}
	return nil
}

func (w *Worker) deadLetter(truth model.GroundTruth, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	now := time.Now().UTC()
	entry := resilience.DLQEntry{
		ID:           uuid.NewString(),
		AnalysisID:   truth.AnalysisID,
		GroundTruth:  truth,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		MaxRetries:   w.cfg.MaxRetries,
		NextRetryAt:  now.Add(dlqSchedule.Backoff(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := w.store.SaveDLQEntry(ctx, entry); err != nil {
		// Nothing left to do but log; the grade is lost.
		zap.L().Error("benchmark: dead letter write failed",
			zap.String("analysis_id", truth.AnalysisID),
			zap.Error(err),
		)
	}
}
