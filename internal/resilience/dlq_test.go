package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/flipscout/appraisal-cli/internal/model"
)

func TestDLQEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{"below max", 0, 3, true},
		{"one below max", 2, 3, true},
		{"at max", 3, 3, false},
		{"above max", 5, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DLQEntry{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			assert.Equal(t, tt.want, e.CanRetry())
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server error", eris.New("ebay: unexpected status 503: busy"), "transient"},
		{"connection reset", eris.New("connection reset by peer"), "transient"},
		{"missing votes", eris.New("benchmark: analysis a-1 has no votes"), "permanent"},
		{"bad auth", eris.New("openrouter: unexpected status 401"), "permanent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestDLQEntry_CarriesGroundTruth(t *testing.T) {
	e := DLQEntry{
		AnalysisID:  "a-1",
		GroundTruth: model.GroundTruth{AnalysisID: "a-1", Price: 24.5, Source: "ebay_sold"},
	}
	assert.Equal(t, 24.5, e.GroundTruth.Price)
}
