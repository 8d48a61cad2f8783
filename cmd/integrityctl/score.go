package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/interview-coach/internal/integrity"
)

var (
	scoreWarnings  int
	scoreAbsenceMs int64
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the integrity score and verdict for given totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoreWarnings < 0 || scoreAbsenceMs < 0 {
			return fmt.Errorf("--warnings and --absence-ms must not be negative")
		}
		score, verdict := integrity.Evaluate(integrity.Totals{
			WarningCount:           scoreWarnings,
			TotalAbsenceDurationMs: scoreAbsenceMs,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "score=%d verdict=%q\n", score, verdict)
		return nil
	},
}

func init() {
	scoreCmd.Flags().IntVar(&scoreWarnings, "warnings", 0, "number of warnings raised")
	scoreCmd.Flags().Int64Var(&scoreAbsenceMs, "absence-ms", 0, "total face absence in milliseconds")
	rootCmd.AddCommand(scoreCmd)
}
