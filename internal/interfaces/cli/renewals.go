package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipdocket/ipdocket/internal/bootstrap"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

func newRenewalsCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renewals",
		Short: "Inspect and advance renewal tasks",
	}
	cmd.AddCommand(newRenewalsListCmd(opts), newRenewalsAdvanceCmd(opts))
	return cmd
}

func newRenewalsListCmd(opts *RootOptions) *cobra.Command {
	var (
		step      int
		dueWithin int
		page      int
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open renewal tasks",
		RunE: withApp(opts, func(cmd *cobra.Command, app *bootstrap.App) error {
			filter := docket.TaskFilter{RenewalOnly: true, OpenOnly: true}
			if cmd.Flags().Changed("step") {
				filter.Step = &step
			}
			if dueWithin > 0 {
				due := time.Now().AddDate(0, 0, dueWithin)
				filter.DueTo = &due
			}
			tasks, total, err := app.Tasks.List(cmd.Context(), filter,
				common.Pagination{Page: page, PageSize: pageSize})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-10s %-12s %-6s %-6s %s\n",
				"ID", "MATTER", "DUE", "YEAR", "STEP", "GRACE")
			for _, t := range tasks {
				grace := ""
				if t.GracePeriodApplied {
					grace = "yes"
				}
				fmt.Fprintf(out, "%-8d %-10d %-12s %-6d %-6d %s\n",
					t.ID, t.MatterID, t.DueDate.Format("2006-01-02"),
					t.AnnuityYear, t.Step, grace)
			}
			fmt.Fprintf(out, "%d of %d task(s)\n", len(tasks), total)
			return nil
		}),
	}

	cmd.Flags().IntVar(&step, "step", 0, "only tasks at this workflow step")
	cmd.Flags().IntVar(&dueWithin, "due-within", 0, "only tasks due within N days")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "size", 50, "page size")
	return cmd
}

func newRenewalsAdvanceCmd(opts *RootOptions) *cobra.Command {
	var (
		step  int
		actor string
	)

	cmd := &cobra.Command{
		Use:   "advance TASK_ID...",
		Short: "Move renewal tasks to a workflow step",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, app *bootstrap.App) error {
			ids := make([]int64, 0, len(cmd.Flags().Args()))
			for _, arg := range cmd.Flags().Args() {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return errors.Newf(errors.CodeInvalidParam, "invalid task id %q", arg)
				}
				ids = append(ids, id)
			}
			res, err := app.Workflow.UpdateStep(cmd.Context(), ids, domainrenewal.Step(step), actor)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "updated %d task(s)\n", res.Count)
			for _, be := range res.Errors {
				fmt.Fprintf(out, "task %s failed: %s (%s)\n", be.ItemID, be.Message, be.Code)
			}
			if !res.Success {
				return errors.Newf(errors.ErrCodeInvalidStep, "%d task(s) failed", len(res.Errors))
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&step, "step", 0, "target workflow step (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "user recorded in the transition log (required)")
	cmd.MarkFlagRequired("step")
	cmd.MarkFlagRequired("actor")
	return cmd
}
