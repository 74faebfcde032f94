package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"duck-semantic/internal/declarative"
)

func newExportCmd(rt *runtime) *cobra.Command {
	var (
		dir       string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the metastore as YAML table definitions",
		Long:  "Reads every table definition stored in the metastore and writes one YAML document per table, to --dir or to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.openMetastore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			defs, err := s.repo.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list semantic tables: %w", err)
			}

			out := cmd.OutOrStdout()
			if dir == "" {
				for i := range defs {
					data, err := declarative.MarshalTable(&defs[i])
					if err != nil {
						return err
					}
					if i > 0 {
						_, _ = fmt.Fprintln(out, "---")
					}
					_, _ = out.Write(data)
				}
				return nil
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			written := make([]string, 0, len(defs))
			for i := range defs {
				path := filepath.Join(dir, defs[i].Name+".yaml")
				if !overwrite {
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists (use --overwrite)", path)
					} else if !errors.Is(err, fs.ErrNotExist) {
						return fmt.Errorf("stat %s: %w", path, err)
					}
				}
				data, err := declarative.MarshalTable(&defs[i])
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // schema files are not secret
					return fmt.Errorf("write %s: %w", path, err)
				}
				written = append(written, path)
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, map[string]interface{}{
					"status": "ok",
					"path":   dir,
					"files":  written,
				})
			}
			_, _ = fmt.Fprintf(out, "Exported %d table(s) to %s\n", len(written), dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Output directory; stdout when empty")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing files in the output directory")
	return cmd
}
