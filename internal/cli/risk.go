package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/risk"
)

var (
	riskThreshold float64
	riskJSON      bool
	declineJSON   bool
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "List patients at risk of cognitive decline",
	Args:  cobra.NoArgs,
	RunE:  runRisk,
}

var declineCmd = &cobra.Command{
	Use:   "decline <patient-id>",
	Short: "Explain a patient's recent decline pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecline,
}

func init() {
	riskCmd.Flags().Float64Var(&riskThreshold, "threshold", -1, "score below which a patient is at risk (default from config)")
	riskCmd.Flags().BoolVar(&riskJSON, "json", false, "print flags as JSON")
	declineCmd.Flags().BoolVar(&declineJSON, "json", false, "print the report as JSON")
}

func runRisk(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	threshold := cfg.Risk.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = riskThreshold
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("--threshold must be between 0 and 1, got %v", threshold)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	histories, err := db.AllHistories(context.Background())
	if err != nil {
		return err
	}
	flags := risk.FindAtRisk(histories, threshold)

	out := cmd.OutOrStdout()
	if riskJSON {
		return printJSON(out, flags)
	}
	if len(flags) == 0 {
		fmt.Fprintf(out, "No patients below %s among %s.\n", pct(threshold), humanize.Comma(int64(len(histories))))
		return nil
	}

	rows := make([][]string, 0, len(flags))
	for _, f := range flags {
		rows = append(rows, []string{
			f.PatientID,
			f.Name,
			strings.ToUpper(f.RiskLevel),
			pct(f.AverageScore),
			pct(f.LatestScore),
			f.Trend,
			strings.Join(f.Reasons, "; "),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Patient", "Name", "Risk", "Average", "Latest", "Trend", "Reasons"}, rows))
	fmt.Fprintf(out, "%d of %s patients at risk\n", len(flags), humanize.Comma(int64(len(histories))))
	return nil
}

func runDecline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	history, err := db.ScoreHistory(context.Background(), args[0])
	if err != nil {
		return err
	}
	report := risk.AnalyzeDecline(history)

	out := cmd.OutOrStdout()
	if declineJSON {
		return printJSON(out, report)
	}
	if report.InsufficientData {
		fmt.Fprintln(out, report.Reason)
		return nil
	}

	fmt.Fprintf(out, "%s  risk %s over %d sessions\n",
		headerStyle.Render(args[0]), strings.ToUpper(report.RiskLevel), report.SessionsAnalyzed)
	fmt.Fprintf(out, "Recent average %s, earlier %s, decline %.1f%%, %.1f days between sessions\n",
		pct(report.RecentAverage), pct(report.EarlierAverage), report.DeclineRate, report.AverageGapDays)
	if last, ok := history.Latest(); ok {
		fmt.Fprintf(out, "Last session %s\n", humanize.Time(last.Timestamp))
	}
	for _, f := range report.Findings {
		fmt.Fprintf(out, "  [%s] %s: %s\n", strings.ToUpper(f.Severity), f.Finding, f.Detail)
	}
	if len(report.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return nil
}
