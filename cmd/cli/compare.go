package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/db"
	"github.com/sevigo/patch-warden/internal/storage"
)

var (
	compareDiff int
	compareMode string
	compareJSON bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "List known, unresolved or closed issues of a stored diff",
	Example: `  warden-cli compare --diff 1234 --mode unresolved
  warden-cli compare --diff 1234 --mode known --json`,
	RunE: runCompare,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	compareCmd.Flags().IntVar(&compareDiff, "diff", 0, "Diff id")
	compareCmd.Flags().StringVar(&compareMode, "mode", string(compare.ModeUnresolved), "Comparison mode: known, unresolved or closed")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Output the result as JSON")
	_ = compareCmd.MarkFlagRequired("diff")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, _ []string) error {
	mode, err := compare.ParseMode(compareMode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := db.Open(ctx, &cfg.Database, newLogger())
	if err != nil {
		return err
	}
	defer conn.Close()

	scope, err := storage.NewStore(conn.DB).LoadComparisonScope(ctx, compareDiff)
	if err != nil {
		return err
	}
	result, err := scope.Query(compareDiff, mode)
	if err != nil {
		return err
	}

	if compareJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	titleColor.Printf("%s issues of diff %d\n", mode, compareDiff)
	if result.PreviousDiffID != nil {
		dimColor.Printf("previous diff: %d\n", *result.PreviousDiffID)
	} else {
		dimColor.Println("first diff of its revision")
	}
	if len(result.Issues) == 0 {
		successColor.Println("no issues")
		return nil
	}
	for _, issue := range result.Issues {
		fmt.Printf("  %s  %s\n", boldColor.Sprint(issue.ID), dimColor.Sprint(issue.Hash))
	}
	return nil
}
