package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/predict"
)

var (
	predictMinProbability float64
	predictJSON           bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast cognitive decline for every patient",
	Long: "Fit a trend to each patient's session scores and rank patients by the probability of " +
		"decline over the next month.",
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().Float64Var(&predictMinProbability, "min-probability", -1, "only show patients at or above this probability (default from config)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print predictions as JSON")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	minProb := cfg.Prediction.MinProbability
	if cmd.Flags().Changed("min-probability") {
		minProb = predictMinProbability
	}
	if minProb < 0 || minProb > 1 {
		return fmt.Errorf("--min-probability must be between 0 and 1, got %v", minProb)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	batch, err := predict.NewScorer(db, cfg.Prediction.TTL).PredictAll(context.Background(), minProb)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if predictJSON {
		return printJSON(out, batch)
	}
	if len(batch.Predictions) == 0 {
		fmt.Fprintf(out, "No patients at or above %s decline probability.\n", pct(minProb))
		return nil
	}

	rows := make([][]string, 0, len(batch.Predictions))
	for _, p := range batch.Predictions {
		rows = append(rows, []string{
			p.PatientID,
			p.Name,
			fmt.Sprintf("%.1f", p.CurrentScore),
			fmt.Sprintf("%.1f", p.PredictedNextMonth),
			pct(p.DeclineProbability),
			p.Trend,
			p.Confidence,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Patient", "Name", "Current", "Next month", "Decline", "Trend", "Confidence"}, rows))
	fmt.Fprintf(out, "%d patients, computed %s\n", len(batch.Predictions), humanize.Time(batch.ComputedAt))
	return nil
}
