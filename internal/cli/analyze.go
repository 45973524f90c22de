package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/analyzer"
	"github.com/mindmate/cognition/internal/patient"
	"github.com/mindmate/cognition/internal/transcript"
)

var (
	analyzePatient  string
	analyzeName     string
	analyzeExercise string
	analyzeDate     string
	analyzeSave     bool
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <transcript-file>",
	Short: "Score a session transcript",
	Long: "Score a session transcript (plain text or JSONL turns) for memory metrics and cognitive tests. " +
		"The patient's stored profile and recent sessions are used when present; --save stores the result.",
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzePatient, "patient", "p", "", "patient ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "patient name; updates the stored profile")
	analyzeCmd.Flags().StringVar(&analyzeExercise, "exercise", patient.DefaultExerciseType, "exercise type")
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "session date (RFC 3339 or 2006-01-02); defaults to now")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "store the analyzed session")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the raw analysis as JSON")
	analyzeCmd.MarkFlagRequired("patient")
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want RFC 3339 or YYYY-MM-DD", s)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	turns, err := transcript.ParseFile(args[0])
	if err != nil {
		return err
	}
	text := transcript.Condense(turns)
	if text == "" {
		return fmt.Errorf("transcript %s has no usable turns", args[0])
	}
	at, err := parseDate(analyzeDate)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	req := analyzer.Request{
		PatientID:    analyzePatient,
		Transcript:   text,
		ExerciseType: analyzeExercise,
		Timestamp:    at,
	}
	stored, err := db.GetPatient(analyzePatient)
	if err != nil {
		return err
	}
	if stored != nil {
		req.Profile = stored.Profile
	}
	if analyzeName != "" {
		req.Profile.Name = analyzeName
		if analyzeSave {
			if err := db.UpsertPatient(analyzePatient, req.Profile); err != nil {
				return err
			}
		}
	}
	if req.Previous, err = db.ListSessions(analyzePatient, 3); err != nil {
		return err
	}

	var a *analyzer.Analyzer
	if analyzeSave {
		cache, closeCache, err := sharedCache(cfg)
		if err != nil {
			return err
		}
		defer closeCache()
		a = analyzer.New(nil, cache)
		a.Sessions = db
	} else {
		a = analyzer.New(nil, nil)
	}

	sess, err := a.Analyze(context.Background(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		return printJSON(out, sess)
	}

	fmt.Fprintf(out, "%s  session %s  (%d patient turns)\n",
		headerStyle.Render("Patient "+sess.PatientID), sess.ID, transcript.CountPatientTurns(turns))
	fmt.Fprintf(out, "Overall score: %s\n\n", pct(sess.OverallScore))

	var rows [][]string
	sess.MemoryMetrics.Each(func(name string, v float64) {
		rows = append(rows, []string{name, score3(v)})
	})
	fmt.Fprintln(out, renderTable([]string{"Metric", "Score"}, rows))

	rows = rows[:0]
	for _, t := range sess.CognitiveTests {
		rows = append(rows, []string{t.Test, fmt.Sprintf("%.1f / %.0f", t.Score, t.MaxScore)})
	}
	fmt.Fprintln(out, renderTable([]string{"Cognitive test", "Score"}, rows))

	if len(sess.Alerts) > 0 {
		fmt.Fprintln(out, "\nAlerts:")
		for _, al := range sess.Alerts {
			fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(al.Severity), al.Message)
		}
	}
	if sess.RequiresReview {
		fmt.Fprintln(out, "\nRequires doctor review.")
	}
	if analyzeSave {
		fmt.Fprintf(out, "\nSaved to %s\n", db.Path)
	}
	return nil
}
