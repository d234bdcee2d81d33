package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/phabricator"
)

var stackCmd = &cobra.Command{
	Use:   "stack <revision>",
	Short: "Show the patch stack the bot would apply for a revision",
	Example: `  warden-cli stack D1234
  warden-cli stack https://phabricator.services.mozilla.com/D1234`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		id, err := phabricator.ParseRevisionRef(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client := phabricator.NewClient(cfg.Phabricator.URL, cfg.Phabricator.Token, nil, newLogger())

		rev, err := client.LoadRevision(ctx, id)
		if err != nil {
			return err
		}
		diff, err := client.LatestDiff(ctx, rev.PHID)
		if err != nil {
			return err
		}
		stack, err := client.LoadStack(ctx, diff)
		if err != nil {
			return err
		}

		titleColor.Printf("D%d: %s\n", rev.ID, rev.Title)
		dimColor.Printf("%s\n\n", client.RevisionURL(rev.ID))
		for i, patch := range stack {
			line := fmt.Sprintf("%2d. diff %d on %s", i+1, patch.ID, patch.BaseRevision)
			if patch.Merged {
				dimColor.Println(line + " (merged)")
				continue
			}
			boldColor.Print(line)
			if len(patch.Commits) > 0 {
				fmt.Printf("  %s", strings.SplitN(patch.Commits[0].Message, "\n", 2)[0])
			}
			fmt.Println()
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(stackCmd)
}
