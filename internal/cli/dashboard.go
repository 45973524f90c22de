package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/dashboard"
	"github.com/mindmate/cognition/internal/metrics"
)

var (
	dashboardDaysBack int
	dashboardJSON     bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <patient-id>",
	Short: "Show a patient's dashboard",
	Args:  cobra.ExactArgs(1),
	RunE:  runDashboard,
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardDaysBack, "days-back", dashboard.DefaultDaysBack, "days of metric history to include")
	dashboardCmd.Flags().BoolVar(&dashboardJSON, "json", false, "print the dashboard as JSON")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, closeCache, err := sharedCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	b := dashboard.New(db, cache, metrics.New(), cfg.Cache.TTL)
	e, cached, err := b.Get(context.Background(), args[0], dashboardDaysBack)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dashboardJSON {
		return printJSON(out, map[string]any{"cached": cached, "dashboard": e})
	}

	name := e.PatientName
	if name == "" {
		name = e.PatientID
	}
	fmt.Fprintf(out, "%s  updated %s", headerStyle.Render(name), humanize.Time(e.LastUpdated))
	if cached {
		fmt.Fprintf(out, "  (cached, expires %s)", humanize.Time(e.ExpiresAt))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Overall cognitive score: %s   Memory retention: %s\n\n",
		pct(e.OverallCognitiveScore), pct(e.MemoryRetentionRate))

	var rows [][]string
	e.BrainRegions.Each(func(region string, v float64) {
		rows = append(rows, []string{region, score3(v)})
	})
	fmt.Fprintln(out, renderTable([]string{"Region", "Score"}, rows))

	if len(e.RecentSessions) == 0 {
		fmt.Fprintln(out, "\nNo sessions recorded.")
		return nil
	}
	rows = rows[:0]
	for _, s := range e.RecentSessions {
		rows = append(rows, []string{
			humanize.Time(s.Date),
			s.ExerciseType,
			pct(s.Score),
			humanize.Comma(int64(len(s.NotableEvents))),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Session", "Exercise", "Score", "Notable"}, rows))
	return nil
}
