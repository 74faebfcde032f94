package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExplainCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <request.yaml>",
		Short: "Show the join plan of a query request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := rt.readRequests(cmd, args)
			if err != nil {
				return err
			}
			s, err := rt.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			plan, err := s.svc.Explain(cmd.Context(), reqs[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, plan)
			}

			PrintDetail(out, map[string]interface{}{
				"aggregated":   plan.Aggregated,
				"deduplicated": plan.DeduplicationRequired,
				"joins":        len(plan.Joins),
			})
			if len(plan.Joins) > 0 {
				_, _ = fmt.Fprintln(out)
				rows := make([][]string, len(plan.Joins))
				for i, j := range plan.Joins {
					rows[i] = []string{
						j.Path, j.Alias, j.Kind,
						fmt.Sprint(j.Duplicating),
						strings.Join(j.Sources, ","),
						j.Condition,
					}
				}
				PrintTable(out, []string{"path", "alias", "kind", "duplicating", "sources", "condition"}, rows)
			}
			_, _ = fmt.Fprintln(out)
			printCompiled(out, plan.Query)
			return nil
		},
	}
}
