package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the appraisal HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)

		// Background health checks with webhook alerts.
		go monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring).Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env, collector),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the HTTP API over an initialized environment.
func buildRouter(env *appraisalEnv, collector *monitoring.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "collect metrics")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Post("/v1/analyze", func(w http.ResponseWriter, req *http.Request) {
		var item model.Item
		if err := json.NewDecoder(req.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if item.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		result, err := env.Pipeline.Run(req.Context(), item)
		if err != nil {
			zap.L().Error("api appraisal failed",
				zap.String("item", item.Name),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "appraisal failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, req *http.Request) {
		a, err := env.Store.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		writeJSON(w, http.StatusOK, a)
	})

	r.Post("/v1/analyses/{id}/ground-truth", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		var body struct {
			Price  float64 `json:"price"`
			Source string  `json:"source"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Price <= 0 {
			writeError(w, http.StatusBadRequest, "price must be positive")
			return
		}

		if _, err := env.Store.GetAnalysis(req.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}

		source := body.Source
		if source == "" {
			source = "manual"
		}
		env.Worker.Enqueue(model.GroundTruth{
			AnalysisID:  id,
			Price:       body.Price,
			Source:      source,
			ConfirmedAt: time.Now().UTC(),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"analysis_id": id,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
