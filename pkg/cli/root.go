// Package cli implements the semq command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"duck-semantic/internal/config"
	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
	"duck-semantic/internal/logger"
	"duck-semantic/internal/service/semantic"
)

var (
	version = "dev"
	commit  = "none"
)

// errReported marks a failure whose details were already written to the output.
var errReported = errors.New("reported")

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errReported) {
			return 1
		}
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = PrintJSON(os.Stdout, map[string]interface{}{
				"error": err.Error(),
				"kind":  domain.ErrorKind(err),
			})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// runtime is the state shared by every command after flag and config resolution.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	fromMetastore      bool
	allowUnknownFields bool
}

func (r *runtime) loadOptions() declarative.LoadOptions {
	return declarative.LoadOptions{AllowUnknownFields: r.allowUnknownFields}
}

func (r *runtime) serviceOptions() semantic.Options {
	return semantic.Options{
		MaxExpansionDepth: r.cfg.MaxExpansionDepth,
		MaxPageSize:       r.cfg.MaxPageSize,
		Parallelism:       r.cfg.CompileParallelism,
	}
}

func newRootCmd() *cobra.Command {
	var (
		output    string
		schemaDir string
		metaDB    string
		logLevel  string
	)
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "semq",
		Short:         "Semantic query compiler",
		Long:          "Compiles declarative analytic requests over a semantic schema into parameterized SQL and runs them on DuckDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("SEMQ_OUTPUT"); v != "" {
					output = v
				} else {
					output = defaultOutputFormat(os.Stdout)
				}
				_ = cmd.Root().PersistentFlags().Set("output", output)
			}
			if err := validateOutputFormat(output); err != nil {
				return err
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Apply precedence: flag > env > default
			if cmd.Flags().Changed("schema-dir") {
				cfg.SchemaDir = schemaDir
			}
			if cmd.Flags().Changed("meta-db") {
				cfg.MetaDBPath = metaDB
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			rt.cfg = cfg

			noColor := !term.IsTerminal(int(os.Stderr.Fd())) //nolint:gosec // fd fits in int
			rt.logger = logger.New(cmd.ErrOrStderr(), cfg.SlogLevel(), noColor)
			for _, w := range cfg.Warnings {
				rt.logger.Debug("config warning", "warning", w)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")
	rootCmd.PersistentFlags().StringVar(&schemaDir, "schema-dir", config.DefaultSchemaDir, "Directory of YAML table definitions (env SCHEMA_DIR)")
	rootCmd.PersistentFlags().StringVar(&metaDB, "meta-db", config.DefaultMetaDBPath, "SQLite metastore path (env META_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&rt.fromMetastore, "from-metastore", false, "Load the schema from the metastore instead of --schema-dir")
	rootCmd.PersistentFlags().BoolVar(&rt.allowUnknownFields, "allow-unknown-fields", false, "Allow unknown YAML fields in schema and request files")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd(rt))
	rootCmd.AddCommand(newCompileCmd(rt))
	rootCmd.AddCommand(newExplainCmd(rt))
	rootCmd.AddCommand(newRunCmd(rt))
	rootCmd.AddCommand(newImportCmd(rt))
	rootCmd.AddCommand(newExportCmd(rt))
	rootCmd.AddCommand(newTablesCmd(rt))

	// Shell completions
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
