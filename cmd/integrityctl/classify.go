package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stemsi/interview-coach/internal/integrity"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>...",
	Short: "Classify saved camera frames with the configured thresholds",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	analyzer := integrity.NewFrameAnalyzer(integrity.NewConfig(cfg.Integrity).Thresholds)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tRESULT\tMEAN\tVARIANCE\tSKIN")

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		img, err := analyzer.Decode(integrity.FrameSample{Data: data})
		if err != nil {
			failed++
			log.Warn().Err(err).Str("file", path).Msg("Skipping undecodable frame")
			fmt.Fprintf(w, "%s\tskipped\t-\t-\t-\n", path)
			continue
		}
		class, stats := analyzer.ClassifyWithStats(img)
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%.3f\n", path, class, stats.MeanLuminance, stats.Variance, stats.SkinRatio)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed == len(args) {
		return fmt.Errorf("no frame could be decoded")
	}
	return nil
}
