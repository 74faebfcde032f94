package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"duck-semantic/internal/engine"
)

func newRunCmd(rt *runtime) *cobra.Command {
	var duckdbPath string

	cmd := &cobra.Command{
		Use:   "run <request.yaml>",
		Short: "Compile a query request and execute it on DuckDB",
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

			path := rt.cfg.DuckDBPath
			if cmd.Flags().Changed("duckdb") {
				path = duckdbPath
			}
			duck, err := engine.OpenDuckDB(path)
			if err != nil {
				return err
			}
			defer func() { _ = duck.Close() }()
			s.svc.SetQueryExecutor(engine.NewDuckDBExecutor(duck))

			res, err := s.svc.Run(cmd.Context(), reqs[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, res.Result)
			}

			rows := make([][]string, len(res.Result.Rows))
			for i, r := range res.Result.Rows {
				rows[i] = formatRow(r)
			}
			PrintTable(out, res.Result.Columns, rows)
			if res.Result.TotalCount != nil {
				_, _ = fmt.Fprintf(out, "\n%d of %d row(s)\n", res.Result.RowCount, *res.Result.TotalCount)
			} else {
				_, _ = fmt.Fprintf(out, "\n%d row(s)\n", res.Result.RowCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&duckdbPath, "duckdb", "", "DuckDB database file; empty for in-memory (env DUCKDB_PATH)")
	return cmd
}
