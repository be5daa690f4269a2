package model

import "time"

// AnalysisStatus represents the current state of an analysis run.
type AnalysisStatus string

const (
	AnalysisStatusRunning  AnalysisStatus = "running"
	AnalysisStatusComplete AnalysisStatus = "complete"
	AnalysisStatusFailed   AnalysisStatus = "failed"
)

// Item describes the physical item a user pointed the app at.
type Item struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	CategoryHint string   `json:"category_hint,omitempty"`
	ImageRefs    []string `json:"image_refs,omitempty"`
	AskingPrice  float64  `json:"asking_price,omitempty"`
}

// Analysis is one appraisal request and its outcome.
type Analysis struct {
	ID        string            `json:"id"`
	Item      Item              `json:"item"`
	Category  CategoryDetection `json:"category"`
	Status    AnalysisStatus    `json:"status"`
	Result    *ConsensusResult  `json:"result,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
