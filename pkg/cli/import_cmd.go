package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"duck-semantic/internal/declarative"
)

func newImportCmd(rt *runtime) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import [schema-dir]",
		Short: "Store schema files in the metastore",
		Long:  "Loads and binds the YAML table definitions, then writes them to the SQLite metastore. Nothing is written when the schema does not bind.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rt.cfg.SchemaDir
			if len(args) == 1 {
				dir = args[0]
			}
			defs, err := declarative.LoadSchemaDir(dir, rt.loadOptions())
			if err != nil {
				return err
			}

			s, err := rt.openMetastore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			stored, err := s.svc.Import(cmd.Context(), defs, replace)
			if err != nil {
				return fmt.Errorf("import %s: %w", dir, err)
			}
			rt.logger.Info("schema imported", "dir", dir, "tables", len(stored), "metastore", rt.cfg.MetaDBPath)

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				names := make([]string, len(stored))
				for i, d := range stored {
					names[i] = d.Name
				}
				return PrintJSON(out, map[string]interface{}{
					"status":    "ok",
					"metastore": rt.cfg.MetaDBPath,
					"tables":    names,
				})
			}
			rows := make([][]string, len(stored))
			for i, d := range stored {
				rows[i] = []string{d.Name, d.ID}
			}
			PrintTable(out, []string{"name", "id"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace tables that already exist in the metastore")
	return cmd
}
