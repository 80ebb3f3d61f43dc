package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragflow/internal/domain"
)

var runsJSON bool

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Inspect recorded pipeline runs",
	Long: `Without arguments, list all recorded runs, newest first. With a run id,
show that run and its recorded steps.

Examples:
  ragflow runs
  ragflow runs 2f1c9a3e-... --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "output as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	log := newLogger(GetConfig())
	exec, closeRuns, err := newExecutor(GetConfig(), GetRootDir(), log)
	if err != nil {
		return err
	}
	defer closeRuns()

	if len(args) == 1 {
		return showRun(cmd, exec.Store(), args[0])
	}

	runs, err := exec.Store().ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if runsJSON {
		output, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, statusText(r.Status),
			r.StartedAt.Local().Format(time.DateTime), runDuration(r))
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, store interface {
	GetRun(id string) (domain.Run, error)
	ListSteps(runID string) ([]domain.StepRecord, error)
}, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return fmt.Errorf("run not found: %w", err)
	}
	steps, err := store.ListSteps(id)
	if err != nil {
		return fmt.Errorf("failed to list steps: %w", err)
	}

	if runsJSON {
		output, err := json.MarshalIndent(struct {
			Run   domain.Run          `json:"run"`
			Steps []domain.StepRecord `json:"steps"`
		}{run, steps}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Kind:     %s\n", run.Kind)
	fmt.Printf("Status:   %s\n", statusText(run.Status))
	fmt.Printf("Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s (%s)\n",
			run.FinishedAt.Local().Format(time.DateTime), runDuration(run))
	}
	if run.Error != "" {
		color.Red("Error:    %s", run.Error)
	}

	if len(steps) == 0 {
		fmt.Println("\nNo steps recorded.")
		return nil
	}

	fmt.Println("\nSteps:")
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, s := range steps {
		fmt.Fprintf(w, "  %s\t%s\t%d bytes\n",
			s.Step, s.RecordedAt.Local().Format(time.DateTime), len(s.Output))
	}
	return w.Flush()
}

func statusText(s domain.RunStatus) string {
	switch s {
	case domain.StatusCompleted:
		return color.GreenString(string(s))
	case domain.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func runDuration(r domain.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
