// Package monitoring collects health metrics over recent analyses and fires
// webhook alerts when failure or quality thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Analysis metrics (within lookback window).
	AnalysisTotal    int     `json:"analysis_total"`
	AnalysisComplete int     `json:"analysis_complete"`
	AnalysisFailed   int     `json:"analysis_failed"`
	AnalysisRunning  int     `json:"analysis_running"`
	AnalysisFailRate float64 `json:"analysis_fail_rate"`
	AvgConfidence    float64 `json:"avg_confidence"`

	// Result quality breakdown for completed analyses.
	QualityOptimal  int     `json:"quality_optimal"`
	QualityDegraded int     `json:"quality_degraded"`
	QualityFallback int     `json:"quality_fallback"`
	FallbackRate    float64 `json:"fallback_rate"`

	// Benchmark dead-letter queue depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	analyses, err := c.store.ListAnalyses(ctx, store.AnalysisFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list analyses")
	}

	snap.AnalysisTotal = len(analyses)
	var totalConfidence int
	var scored int

	for _, a := range analyses {
		switch a.Status {
		case model.AnalysisStatusComplete:
			snap.AnalysisComplete++
		case model.AnalysisStatusFailed:
			snap.AnalysisFailed++
		case model.AnalysisStatusRunning:
			snap.AnalysisRunning++
		}
		if a.Result == nil {
			continue
		}
		totalConfidence += a.Result.Confidence
		scored++
		switch a.Result.Quality {
		case model.QualityOptimal:
			snap.QualityOptimal++
		case model.QualityDegraded:
			snap.QualityDegraded++
		case model.QualityFallback:
			snap.QualityFallback++
		}
	}

	finished := snap.AnalysisComplete + snap.AnalysisFailed
	if finished > 0 {
		snap.AnalysisFailRate = float64(snap.AnalysisFailed) / float64(finished)
	}
	if scored > 0 {
		snap.AvgConfidence = float64(totalConfidence) / float64(scored)
		snap.FallbackRate = float64(snap.QualityFallback) / float64(scored)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
