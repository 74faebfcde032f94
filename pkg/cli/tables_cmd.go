package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
)

func newTablesCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var defs []domain.TableDefinition
			if rt.fromMetastore {
				s, err := rt.openMetastore()
				if err != nil {
					return err
				}
				defer func() { _ = s.Close() }()
				if defs, err = s.repo.List(cmd.Context()); err != nil {
					return fmt.Errorf("list semantic tables: %w", err)
				}
			} else {
				var err error
				if defs, err = declarative.LoadSchemaDir(rt.cfg.SchemaDir, rt.loadOptions()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				type tableSummary struct {
					Name          string `json:"name"`
					PhysicalName  string `json:"physical_name"`
					Columns       int    `json:"columns"`
					Relationships int    `json:"relationships"`
				}
				summaries := make([]tableSummary, len(defs))
				for i, d := range defs {
					summaries[i] = tableSummary{d.Name, d.PhysicalName, len(d.Columns), len(d.Relationships)}
				}
				return PrintJSON(out, summaries)
			}

			rows := make([][]string, len(defs))
			for i, d := range defs {
				rows[i] = []string{d.Name, d.PhysicalName, fmt.Sprint(len(d.Columns)), fmt.Sprint(len(d.Relationships))}
			}
			PrintTable(out, []string{"name", "physical_name", "columns", "relationships"}, rows)
			return nil
		},
	}
}
