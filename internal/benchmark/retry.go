package benchmark

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// RetryStore extends Store with the dead-letter queue operations the sweep
// needs.
type RetryStore interface {
	Store
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// RetrySummary reports the outcome of one dead-letter sweep.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Graded    int `json:"graded"`
	Requeued  int `json:"requeued"`
}

// RetryDLQ replays dead-lettered grades that are due for another attempt.
// Successful grades leave the queue; failures are rescheduled with a longer
// backoff until the entry exhausts its retry budget.
func RetryDLQ(ctx context.Context, st RetryStore, limit int) (RetrySummary, error) {
	var summary RetrySummary

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: limit})
	if err != nil {
		return summary, eris.Wrap(err, "benchmark: dequeue dlq")
	}

	for _, e := range entries {
		summary.Attempted++

		if err := gradeAnalysis(ctx, st, e.GroundTruth); err != nil {
			next := time.Now().UTC().Add(dlqSchedule.Backoff(e.RetryCount + 1))
			if ierr := st.IncrementDLQRetry(ctx, e.ID, next, err.Error()); ierr != nil {
				return summary, eris.Wrap(ierr, "benchmark: reschedule dlq entry")
			}
			if e.RetryCount+1 >= e.MaxRetries {
				zap.L().Warn("benchmark: dead letter exhausted its retries",
					zap.String("analysis_id", e.AnalysisID),
					zap.Int("retry_count", e.RetryCount+1),
				)
			}
			summary.Requeued++
			continue
		}

		if err := st.RemoveDLQ(ctx, e.ID); err != nil {
			return summary, eris.Wrap(err, "benchmark: remove dlq entry")
		}
		summary.Graded++

		zap.L().Info("benchmark: dead letter graded",
			zap.String("analysis_id", e.AnalysisID),
			zap.Int("retry_count", e.RetryCount),
		)
	}

	return summary, nil
}
