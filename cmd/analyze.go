package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flipscout/appraisal-cli/internal/model"
)

var (
	analyzeName        string
	analyzeDescription string
	analyzeCategory    string
	analyzeImages      []string
	analyzeAsking      float64
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a consensus appraisal for a single item",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		item := model.Item{
			Name:         analyzeName,
			Description:  analyzeDescription,
			CategoryHint: analyzeCategory,
			ImageRefs:    analyzeImages,
			AskingPrice:  analyzeAsking,
		}

		result, err := env.Pipeline.Run(ctx, item)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("appraisal finished",
			zap.String("analysis_id", result.AnalysisID),
			zap.String("decision", string(result.Consensus.Decision)),
			zap.Float64("estimated_value", result.Consensus.EstimatedValue),
			zap.Int("confidence", result.Consensus.Confidence),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "item name (required)")
	analyzeCmd.Flags().StringVar(&analyzeDescription, "description", "", "item description")
	analyzeCmd.Flags().StringVar(&analyzeCategory, "category", "", "category hint, overrides detection")
	analyzeCmd.Flags().StringSliceVar(&analyzeImages, "image", nil, "image URL or path, repeatable")
	analyzeCmd.Flags().Float64Var(&analyzeAsking, "asking-price", 0, "seller asking price")
	_ = analyzeCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(analyzeCmd)
}
