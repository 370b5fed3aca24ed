package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipdocket/ipdocket/internal/bootstrap"
	domainmatter "github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

func newEventsCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Record matter events",
	}
	cmd.AddCommand(newEventsRecordCmd(opts))
	return cmd
}

// withApp builds the full service graph scoped to one command run.  Commands
// that touch the rule engine need it whole: the engine takes the matter lock
// and resolves linked matters during cascades.
func withApp(opts *RootOptions, fn func(cmd *cobra.Command, app *bootstrap.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		app, err := bootstrap.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, app)
	}
}

func newEventsRecordCmd(opts *RootOptions) *cobra.Command {
	var (
		caseref    string
		code       string
		date       string
		detail     string
		altCaseref string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an event against a matter and run the rule engine",
		RunE: withApp(opts, func(cmd *cobra.Command, app *bootstrap.App) error {
			eventDate, err := time.Parse("2006-01-02", date)
			if err != nil {
				return errors.Newf(errors.CodeInvalidParam, "invalid --date %q, want YYYY-MM-DD", date)
			}
			res, err := app.Matters.RecordEventByCaseref(cmd.Context(),
				caseref, domainmatter.EventCode(code), eventDate, detail, altCaseref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "event %d recorded on matter %d\n", res.EventID, res.MatterID)
			fmt.Fprintf(out, "rules matched: %d, tasks created: %d, tasks cleared: %d\n",
				res.RulesMatched, res.TasksCreated, res.TasksCleared)
			if res.MatterKilled {
				fmt.Fprintln(out, "matter closed by this event")
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&caseref, "caseref", "", "matter caseref (required)")
	cmd.Flags().StringVar(&code, "code", "", "event code, e.g. FIL, GRT, REN (required)")
	cmd.Flags().StringVar(&date, "date", "", "event date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail")
	cmd.Flags().StringVar(&altCaseref, "alt-caseref", "", "caseref of the linked matter, for priority claims")
	cmd.MarkFlagRequired("caseref")
	cmd.MarkFlagRequired("code")
	cmd.MarkFlagRequired("date")
	return cmd
}
