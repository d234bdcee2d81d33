package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/treestatus"
)

var treeStatusURL string

var treeStatusCmd = &cobra.Command{
	Use:   "tree-status",
	Short: "Show whether the try tree accepts pushes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		client := treestatus.NewClient(treeStatusURL, nil, newLogger())
		status, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read tree status: %w", err)
		}

		fmt.Printf("%s: ", treeStatusURL)
		switch status {
		case "open":
			successColor.Println(status)
		case "closed":
			errorColor.Println(status)
		default:
			warnColor.Println(status)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	treeStatusCmd.Flags().StringVar(&treeStatusURL, "url", "https://treestatus.mozilla-releng.net/trees/try", "Tree status endpoint")
	rootCmd.AddCommand(treeStatusCmd)
}
