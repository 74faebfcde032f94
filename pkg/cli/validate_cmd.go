package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"duck-semantic/internal/declarative"
	"duck-semantic/internal/metadata"
)

func newValidateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate schema files offline",
		Long:  "Reads the YAML table definitions, binds them into a metadata graph and reports every error found.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rt.cfg.SchemaDir
			if len(args) == 1 {
				dir = args[0]
			}

			files, errs := declarative.ValidateDir(dir, rt.loadOptions(),
				metadata.WithMaxExpansionDepth(rt.cfg.MaxExpansionDepth))

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := declarative.FormatJSON(out, files, errs); err != nil {
					return err
				}
			} else {
				noColor := out != os.Stdout || !term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
				declarative.FormatText(out, files, errs, noColor)
			}

			if len(errs) > 0 {
				rt.logger.Debug("schema validation failed", "dir", dir, "errors", len(errs))
				return errReported
			}
			return nil
		},
	}
}
