package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"duck-semantic/internal/metrics"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics.BuildInfo.WithLabelValues(version, commit).Set(1)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "semq version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
