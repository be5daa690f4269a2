package main

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/benchmark"
	"github.com/flipscout/appraisal-cli/internal/model"
	"github.com/flipscout/appraisal-cli/pkg/ebay"
)

var benchProvider string

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Print per-provider accuracy scorecards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.BenchmarkRecords(ctx, benchProvider)
		if err != nil {
			return eris.Wrap(err, "load benchmark records")
		}

		byProvider := make(map[string][]model.BenchmarkRecord)
		for _, rec := range records {
			byProvider[rec.ProviderID] = append(byProvider[rec.ProviderID], rec)
		}

		cards := make([]model.ProviderScorecard, 0, len(byProvider))
		for providerID, recs := range byProvider {
			cards = append(cards, benchmark.Scorecard(providerID, recs))
		}
		sort.Slice(cards, func(i, j int) bool { return cards[i].ProviderID < cards[j].ProviderID })

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cards)
	},
}

var (
	gradeAnalysisID string
	gradePrice      float64
	gradeSource     string
	gradeResolve    bool
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade an analysis against a confirmed sale price",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Store.GetAnalysis(ctx, gradeAnalysisID)
		if err != nil {
			return eris.Wrap(err, "load analysis")
		}

		price := gradePrice
		source := gradeSource
		if gradeResolve {
			price, err = resolveSoldPrice(cmd, a.Item.Name)
			if err != nil {
				return err
			}
			if source == "" {
				source = "sold_listings"
			}
		}
		if price <= 0 {
			return eris.New("a positive --price or --resolve is required")
		}
		if source == "" {
			source = "manual"
		}

		existing, err := env.Store.GetGroundTruth(ctx, gradeAnalysisID)
		if err != nil {
			return eris.Wrap(err, "load ground truth")
		}
		if existing != nil {
			zap.L().Warn("analysis already graded, replacing ground truth",
				zap.String("analysis_id", gradeAnalysisID),
				zap.Float64("previous_price", existing.Price),
			)
		}

		env.Worker.Enqueue(model.GroundTruth{
			AnalysisID:  gradeAnalysisID,
			Price:       price,
			Source:      source,
			ConfirmedAt: time.Now().UTC(),
		})
		env.Worker.Close() // drain before reading records back

		records, err := env.Store.BenchmarkRecords(ctx, "")
		if err != nil {
			return eris.Wrap(err, "load benchmark records")
		}
		graded := records[:0:0]
		for _, rec := range records {
			if rec.AnalysisID == gradeAnalysisID {
				graded = append(graded, rec)
			}
		}

		zap.L().Info("analysis graded",
			zap.String("analysis_id", gradeAnalysisID),
			zap.Float64("price", price),
			zap.String("source", source),
			zap.Int("records", len(graded)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(graded)
	},
}

var retryLimit int

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay dead-lettered grading jobs that are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		summary, err := benchmark.RetryDLQ(ctx, st, retryLimit)
		if err != nil {
			return err
		}

		zap.L().Info("dead letter sweep finished",
			zap.Int("attempted", summary.Attempted),
			zap.Int("graded", summary.Graded),
			zap.Int("requeued", summary.Requeued),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// resolveSoldPrice looks up recent sold listings for the item and returns the
// median sale price.
func resolveSoldPrice(cmd *cobra.Command, itemName string) (float64, error) {
	if cfg.Ebay.Key == "" {
		return 0, eris.New("--resolve requires APPRAISE_EBAY_KEY")
	}
	client := ebay.NewClient(cfg.Ebay.Key, ebay.WithBaseURL(cfg.Ebay.BaseURL))

	listings, err := client.SearchSold(cmd.Context(), itemName, cfg.Ebay.MaxResults)
	if err != nil {
		return 0, eris.Wrap(err, "search sold listings")
	}

	median, low, high, n, ok := ebay.PriceSummary(listings)
	if !ok {
		return 0, eris.Errorf("no sold listings found for %q", itemName)
	}
	zap.L().Info("resolved sold price",
		zap.String("item", itemName),
		zap.Float64("median", median),
		zap.Float64("low", low),
		zap.Float64("high", high),
		zap.Int("sample_size", n),
	)
	return median, nil
}

func init() {
	benchmarkCmd.Flags().StringVar(&benchProvider, "provider", "", "limit scorecards to one provider")

	gradeCmd.Flags().StringVar(&gradeAnalysisID, "analysis", "", "analysis id to grade (required)")
	gradeCmd.Flags().Float64Var(&gradePrice, "price", 0, "confirmed real sale price")
	gradeCmd.Flags().StringVar(&gradeSource, "source", "", "where the price came from")
	gradeCmd.Flags().BoolVar(&gradeResolve, "resolve", false, "resolve the price from recent sold listings")
	_ = gradeCmd.MarkFlagRequired("analysis")
	benchmarkCmd.AddCommand(gradeCmd)

	retryCmd.Flags().IntVar(&retryLimit, "limit", 50, "maximum dead letters to replay")
	benchmarkCmd.AddCommand(retryCmd)

	rootCmd.AddCommand(benchmarkCmd)
}
