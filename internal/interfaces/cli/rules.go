package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	"github.com/ipdocket/ipdocket/internal/infrastructure/database/postgres"
	"github.com/ipdocket/ipdocket/internal/infrastructure/database/postgres/repositories"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

func newRulesCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the task rule configuration",
	}
	cmd.AddCommand(newRulesValidateCmd(opts), newRulesListCmd(opts))
	return cmd
}

// withRuleAdmin opens a database connection scoped to one command run.
func withRuleAdmin(opts *RootOptions, fn func(cmd *cobra.Command, svc *appdocket.RuleAdminService) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		conn, err := postgres.NewConnection(cfg.Database, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := appdocket.NewRuleAdminService(repositories.NewTaskRuleRepository(conn.DB(), logger), logger)
		return fn(cmd, svc)
	}
}

func newRulesValidateCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the rule table for structural problems and conflicts",
		RunE: withRuleAdmin(opts, func(cmd *cobra.Command, svc *appdocket.RuleAdminService) error {
			report, err := svc.ValidateAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rules checked: %d\n", report.RuleCount)
			if report.Valid() {
				fmt.Fprintln(out, "no problems found")
				return nil
			}
			for _, p := range report.Problems {
				fmt.Fprintf(out, "problem: %s\n", p)
			}
			return errors.Newf(errors.ErrCodeRuleConflict, "%d problem(s) found", len(report.Problems))
		}),
	}
}

func newRulesListCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the rule table",
		RunE: withRuleAdmin(opts, func(cmd *cobra.Command, svc *appdocket.RuleAdminService) error {
			rules, err := svc.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-6s %-8s %-8s %-8s %-8s %s\n", "ID", "TASK", "TRIGGER", "ACTION", "ACTIVE", "DIMENSIONS")
			for _, r := range rules {
				dims := ""
				if r.ForCountry != "" {
					dims += " country=" + r.ForCountry
				}
				if r.ForOrigin != "" {
					dims += " origin=" + r.ForOrigin
				}
				if r.ForCategory != "" {
					dims += " category=" + string(r.ForCategory)
				}
				if r.ForType != "" {
					dims += " type=" + r.ForType
				}
				fmt.Fprintf(out, "%-6d %-8s %-8s %-8s %-8v%s\n",
					r.ID, r.TaskCode, r.Trigger, r.Action, r.Active, dims)
			}
			return nil
		}),
	}
}
