package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/appraisal-cli/internal/analysis"
	"github.com/flipscout/appraisal-cli/internal/benchmark"
	"github.com/flipscout/appraisal-cli/internal/category"
	"github.com/flipscout/appraisal-cli/internal/config"
	"github.com/flipscout/appraisal-cli/internal/consensus"
	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/monitoring"
	"github.com/flipscout/appraisal-cli/internal/provider"
	"github.com/flipscout/appraisal-cli/internal/reference"
	"github.com/flipscout/appraisal-cli/internal/store"
)

// newTestEnv builds a serving environment over a temp sqlite store with no
// providers registered, so appraisals resolve to the fallback consensus.
func newTestEnv(t *testing.T) *appraisalEnv {
	t.Helper()

	cfg = &config.Config{
		Providers:  config.ProvidersConfig{DefaultWeight: 1.0, CallTimeoutSecs: 5},
		Analysis:   config.AnalysisConfig{MaxConcurrent: 4},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	providers := provider.NewRegistry()
	detector := category.NewDetector(nil)
	router := category.NewRouter(0)
	refExec := reference.NewExecutor(reference.NewRegistry(), 0, 0)
	engine := consensus.NewEngine(consensus.DefaultConfig())

	env := &appraisalEnv{
		Store:     st,
		Providers: providers,
		Detector:  detector,
		Router:    router,
		Engine:    engine,
		Pipeline:  analysis.New(cfg, st, providers, detector, router, refExec, engine, nil),
		Worker:    benchmark.NewWorker(st, benchmark.Config{QueueSize: 8}),
	}
	t.Cleanup(env.Close)
	return env
}

func newTestRouter(t *testing.T) (http.Handler, *appraisalEnv) {
	env := newTestEnv(t)
	return buildRouter(env, monitoring.NewCollector(env.Store)), env
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Status(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.AnalysisTotal)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestRouter_Analyze_MissingName(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader([]byte(`{"description":"no name"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Analyze_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader([]byte(`{nope`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Analyze_NoProviders(t *testing.T) {
	r, _ := newTestRouter(t)

	payload, _ := json.Marshal(model.Item{Name: "Old brass lamp"})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var result analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.NotEmpty(t, result.AnalysisID)
	assert.Equal(t, model.DecisionSell, result.Consensus.Decision)
	assert.Equal(t, 0, result.Consensus.Confidence)
	assert.Equal(t, model.QualityFallback, result.Consensus.Quality)
}

func TestRouter_GetAnalysis(t *testing.T) {
	r, env := newTestRouter(t)

	created, err := env.Store.CreateAnalysis(context.Background(), model.Item{Name: "Fender Stratocaster"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/"+created.ID, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var a model.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
	assert.Equal(t, created.ID, a.ID)
	assert.Equal(t, "Fender Stratocaster", a.Item.Name)
}

func TestRouter_GetAnalysis_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/missing", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_GroundTruth_Accepted(t *testing.T) {
	r, env := newTestRouter(t)

	created, err := env.Store.CreateAnalysis(context.Background(), model.Item{Name: "Vinyl record"})
	require.NoError(t, err)

	payload := []byte(`{"price": 42.50, "source": "sold_listings"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/"+created.ID+"/ground-truth", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, created.ID, body["analysis_id"])
}

func TestRouter_GroundTruth_RejectsNonPositivePrice(t *testing.T) {
	r, env := newTestRouter(t)

	created, err := env.Store.CreateAnalysis(context.Background(), model.Item{Name: "Vinyl record"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/"+created.ID+"/ground-truth", bytes.NewReader([]byte(`{"price": 0}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_GroundTruth_UnknownAnalysis(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses/missing/ground-truth", bytes.NewReader([]byte(`{"price": 10}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
