package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/flipscout/appraisal-cli/internal/category"
	"github.com/flipscout/appraisal-cli/internal/model"
)

var (
	catName        string
	catDescription string
	catHint        string
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Detect an item's category and show its reference-source cascade",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := loadTables()
		if err != nil {
			return err
		}
		detector := category.NewDetector(tables)
		router := category.NewRouter(cfg.Reference.MaxCascadeLength)

		detection := detector.Detect(category.Input{
			Name:        catName,
			Description: catDescription,
			UserHint:    catHint,
		})

		out := struct {
			Detection model.CategoryDetection `json:"detection"`
			Cascade   []string                `json:"cascade"`
		}{
			Detection: detection,
			Cascade:   router.Route(detection.Category),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	categoriesCmd.Flags().StringVar(&catName, "name", "", "item name (required)")
	categoriesCmd.Flags().StringVar(&catDescription, "description", "", "item description")
	categoriesCmd.Flags().StringVar(&catHint, "hint", "", "user-supplied category hint")
	_ = categoriesCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(categoriesCmd)
}
