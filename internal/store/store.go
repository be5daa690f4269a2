// Package store persists analyses, votes, and benchmark grades behind a
// driver-agnostic interface with postgres and sqlite implementations.
package store

import (
	"context"
	"time"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/resilience"
)

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	Status       model.AnalysisStatus `json:"status,omitempty"`
	CreatedAfter time.Time            `json:"created_after,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the appraisal pipeline.
type Store interface {
	// Analyses
	CreateAnalysis(ctx context.Context, item model.Item) (*model.Analysis, error)
	UpdateAnalysisCategory(ctx context.Context, analysisID string, det model.CategoryDetection) error
	UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error
	UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.ConsensusResult) error
	GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error)

	// Votes
	SaveVotes(ctx context.Context, votes []model.Vote) error
	VotesByAnalysis(ctx context.Context, analysisID string) ([]model.Vote, error)

	// Benchmark grading
	SaveGroundTruth(ctx context.Context, truth model.GroundTruth) error
	GetGroundTruth(ctx context.Context, analysisID string) (*model.GroundTruth, error)
	SaveBenchmarkRecords(ctx context.Context, records []model.BenchmarkRecord) error
	BenchmarkRecords(ctx context.Context, providerID string) ([]model.BenchmarkRecord, error)

	// Dead letter queue
	SaveDLQEntry(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
