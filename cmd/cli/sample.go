package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/sampling"
)

var sampleRatio float64

var sampleCmd = &cobra.Command{
	Use:   "sample <revision>...",
	Short: "Tell whether revisions are selected for test selection",
	Example: `  warden-cli sample --ratio 0.1 D1234 D5678
  warden-cli sample --ratio 0.5 https://phabricator.services.mozilla.com/D1234`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if sampleRatio < 0 || sampleRatio > 1 {
			return fmt.Errorf("ratio must be within [0, 1], got %v", sampleRatio)
		}
		for _, arg := range args {
			id, err := phabricator.ParseRevisionRef(arg)
			if err != nil {
				return err
			}
			fmt.Printf("D%-8d %.6f ", id, sampling.Position(id))
			if sampling.Sample(id, sampleRatio) {
				successColor.Println("selected")
			} else {
				dimColor.Println("skipped")
			}
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	sampleCmd.Flags().Float64Var(&sampleRatio, "ratio", 0.1, "Share of revisions selected")
	rootCmd.AddCommand(sampleCmd)
}
