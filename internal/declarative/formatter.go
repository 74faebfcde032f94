package declarative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"duck-semantic/internal/domain"
)

// ANSI color codes.
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorDim   = "\033[2m"
)

// FormatText writes a human-readable validation report to w.
// If noColor is true, ANSI codes are suppressed.
func FormatText(w io.Writer, files []SchemaFile, errs []ValidationError, noColor bool) {
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	if len(errs) == 0 {
		for _, f := range files {
			fmt.Fprintf(w, "  %s✓%s %s %s(%d columns, %d relationships)%s\n",
				c(colorGreen), c(colorReset), f.Table.Name,
				c(colorDim), len(f.Table.Columns), len(f.Table.Relationships), c(colorReset))
		}
		fmt.Fprintf(w, "\n%sSchema valid:%s %d table(s).\n", c(colorDim), c(colorReset), len(files))
		return
	}

	// Group errors by path for section headers.
	type group struct {
		path string
		errs []ValidationError
	}
	var groups []group
	seen := map[string]int{}
	for _, e := range errs {
		if idx, ok := seen[e.Path]; ok {
			groups[idx].errs = append(groups[idx].errs, e)
		} else {
			seen[e.Path] = len(groups)
			groups = append(groups, group{path: e.Path, errs: []ValidationError{e}})
		}
	}

	for _, g := range groups {
		if g.path != "" {
			fmt.Fprintf(w, "\n%s# %s%s\n", c(colorCyan), g.path, c(colorReset))
		} else {
			fmt.Fprintf(w, "\n%s# (schema)%s\n", c(colorCyan), c(colorReset))
		}
		for _, e := range g.errs {
			fmt.Fprintf(w, "  %s✗%s %s %s[%s]%s\n",
				c(colorRed), c(colorReset), e.Message, c(colorDim), e.Kind, c(colorReset))
		}
	}
	fmt.Fprintf(w, "\n%s%d error(s).%s\n", c(colorRed), len(errs), c(colorReset))
}

// FormatJSON writes the validation report as JSON to w.
func FormatJSON(w io.Writer, files []SchemaFile, errs []ValidationError) error {
	type jsonError struct {
		Path    string `json:"path,omitempty"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	type jsonReport struct {
		Valid  bool        `json:"valid"`
		Tables []string    `json:"tables"`
		Errors []jsonError `json:"errors,omitempty"`
	}

	report := jsonReport{Valid: len(errs) == 0, Tables: make([]string, 0, len(files))}
	for _, f := range files {
		report.Tables = append(report.Tables, f.Table.Name)
	}
	for _, e := range errs {
		report.Errors = append(report.Errors, jsonError{Path: e.Path, Kind: e.Kind, Message: e.Message})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// MarshalTable renders def as a Table document that LoadTableFile reads back.
func MarshalTable(def *domain.TableDefinition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromDomain(def)); err != nil {
		return nil, fmt.Errorf("marshal table %s: %w", def.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
