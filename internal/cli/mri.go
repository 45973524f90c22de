package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/brain"
)

var (
	mriBaseline string
	mriPatient  string
	mriDate     string
	mriJSON     bool
)

var mriCmd = &cobra.Command{
	Use:   "mri <volumes.csv>",
	Short: "Map MRI volumetrics to brain-region scores",
	Long: "Map a FreeSurfer-style volume table (Structure, Volume_mm3, Normalized_Volume) to brain-region " +
		"health scores. --baseline compares against an earlier table; --patient stores the scan.",
	Args: cobra.ExactArgs(1),
	RunE: runMRI,
}

func init() {
	mriCmd.Flags().StringVar(&mriBaseline, "baseline", "", "baseline volume table to compare against")
	mriCmd.Flags().StringVarP(&mriPatient, "patient", "p", "", "store the scan for this patient")
	mriCmd.Flags().StringVar(&mriDate, "date", "", "scan date (RFC 3339 or 2006-01-02); defaults to now")
	mriCmd.Flags().BoolVar(&mriJSON, "json", false, "print the raw result as JSON")
}

func readTable(path string) (brain.Measurements, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open volume table: %w", err)
	}
	defer f.Close()

	m, err := brain.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

type mriOutput struct {
	ScanID       int64             `json:"scan_id,omitempty"`
	BrainRegions brain.Regions     `json:"brain_regions"`
	Alerts       []brain.Alert     `json:"alerts"`
	Comparison   *brain.Comparison `json:"comparison,omitempty"`
}

func runMRI(cmd *cobra.Command, args []string) error {
	current, err := readTable(args[0])
	if err != nil {
		return err
	}
	at, err := parseDate(mriDate)
	if err != nil {
		return err
	}

	regions := brain.Map(current)
	res := mriOutput{
		BrainRegions: regions,
		Alerts:       brain.DetectAlerts(regions, brain.DefaultAlertThreshold),
	}
	if mriBaseline != "" {
		base, err := readTable(mriBaseline)
		if err != nil {
			return err
		}
		cmp := brain.Compare(brain.Map(base), regions)
		res.Comparison = &cmp
	}

	if mriPatient != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if at.IsZero() {
			at = time.Now().UTC()
		}
		if res.ScanID, err = db.SaveMRIScan(mriPatient, at, current, regions); err != nil {
			return err
		}

		cache, closeCache, err := sharedCache(cfg)
		if err != nil {
			return err
		}
		defer closeCache()
		if cache != nil {
			if _, err := cache.Invalidate(context.Background(), mriPatient); err != nil {
				fmt.Fprintf(os.Stderr, "warning: invalidate dashboard cache: %v\n", err)
			}
		}
	}

	out := cmd.OutOrStdout()
	if mriJSON {
		return printJSON(out, res)
	}

	headers := []string{"Region", "Score"}
	if res.Comparison != nil {
		headers = append(headers, "Baseline", "Change")
	}
	var rows [][]string
	regions.Each(func(name string, v float64) {
		row := []string{name, score3(v)}
		if res.Comparison != nil {
			c := res.Comparison.Changes[name]
			row = append(row, score3(c.Baseline), fmt.Sprintf("%+.1f%%", c.PercentChange))
		}
		rows = append(rows, row)
	})
	fmt.Fprintln(out, renderTable(headers, rows))

	for _, a := range res.Alerts {
		fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(a.Severity), a.Message)
	}
	if res.Comparison != nil {
		fmt.Fprintf(out, "\nRecommendation: %s\n", res.Comparison.Recommendation)
	}
	if res.ScanID != 0 {
		fmt.Fprintf(out, "Stored scan %d for %s\n", res.ScanID, mriPatient)
	}
	return nil
}
