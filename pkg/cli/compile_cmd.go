package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
)

func newCompileCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <request.yaml>...",
		Short: "Compile query requests into SQL",
		Long: "Compiles one or more Query documents against the loaded schema and prints the SQL with its bound parameters. " +
			"Use - to read a single request from stdin.",
		Args: cobra.MinimumNArgs(1),
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

			out := cmd.OutOrStdout()
			isJSON := getOutputFormat(cmd) == "json"

			if len(reqs) == 1 {
				q, err := s.svc.Compile(cmd.Context(), reqs[0])
				if err != nil {
					return err
				}
				if isJSON {
					return PrintJSON(out, q)
				}
				printCompiled(out, q)
				return nil
			}

			items, err := s.svc.CompileBatch(cmd.Context(), reqs)
			if err != nil {
				return err
			}

			type batchEntry struct {
				File  string                `json:"file"`
				Query *domain.CompiledQuery `json:"query,omitempty"`
				Error string                `json:"error,omitempty"`
				Kind  string                `json:"kind,omitempty"`
			}
			failed := 0
			entries := make([]batchEntry, len(items))
			for i, item := range items {
				entries[i] = batchEntry{File: args[item.Index], Query: item.Query}
				if item.Err != nil {
					failed++
					entries[i].Error = item.Err.Error()
					entries[i].Kind = domain.ErrorKind(item.Err)
				}
			}

			if isJSON {
				if err := PrintJSON(out, entries); err != nil {
					return err
				}
			} else {
				for i, e := range entries {
					if i > 0 {
						_, _ = fmt.Fprintln(out)
					}
					_, _ = fmt.Fprintf(out, "-- %s\n", e.File)
					if e.Query == nil {
						_, _ = fmt.Fprintf(out, "-- error [%s]: %s\n", e.Kind, e.Error)
						continue
					}
					printCompiled(out, e.Query)
				}
			}
			if failed > 0 {
				rt.logger.Debug("batch compilation finished with errors", "failed", failed, "total", len(items))
				return errReported
			}
			return nil
		},
	}
}

// readRequests loads the Query documents named by args; "-" reads stdin.
func (r *runtime) readRequests(cmd *cobra.Command, args []string) ([]*domain.QueryRequest, error) {
	reqs := make([]*domain.QueryRequest, 0, len(args))
	for _, path := range args {
		if path == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			req, err := declarative.ParseQuery(data, r.loadOptions())
			if err != nil {
				return nil, fmt.Errorf("stdin: %w", err)
			}
			reqs = append(reqs, req)
			continue
		}
		req, err := declarative.LoadQueryFile(path, r.loadOptions())
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func printCompiled(w io.Writer, q *domain.CompiledQuery) {
	_, _ = fmt.Fprintln(w, q.SQL+";")
	if q.CountSQL != "" {
		_, _ = fmt.Fprintln(w, q.CountSQL+";")
	}
	if len(q.Parameters) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	rows := make([][]string, len(q.Parameters))
	for i, p := range q.Parameters {
		rows[i] = []string{"$" + fmt.Sprint(i+1), p.Name, formatValue(p.Value)}
	}
	PrintTable(w, []string{"placeholder", "name", "value"}, rows)
}
