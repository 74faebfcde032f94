package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/engine"
)

const (
	salesSchemaDir  = "../../internal/declarative/testdata/sales"
	brokenSchemaDir = "../../internal/declarative/testdata/broken"

	statusAmountSQL = "SELECT orders.status AS status, SUM(orders.amount) AS amount FROM sales.orders AS orders GROUP BY orders.status"
)

const statusAmountRequest = `apiVersion: semq/v1
kind: Query
metadata:
  name: status_amount
spec:
  table: orders
  dimensions: [status]
  metrics: [amount]
`

const paidAmountRequest = `apiVersion: semq/v1
kind: Query
metadata:
  name: paid_amount
spec:
  table: orders
  dimensions: [status]
  metrics: [amount]
  filter: { field: status, op: EQ, value: paid }
`

// newTestRootCmd creates a fresh root command reading the sales schema, with
// an isolated environment and metastore. Output is captured in the returned
// buffers.
func newTestRootCmd(t *testing.T) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	for _, k := range []string{"SEMQ_ENV_FILE", "SEMQ_OUTPUT", "ENV", "DUCKDB_PATH", "LOG_LEVEL",
		"MAX_EXPANSION_DEPTH", "MAX_PAGE_SIZE", "COMPILE_PARALLELISM"} {
		t.Setenv(k, "")
	}
	t.Setenv("SCHEMA_DIR", salesSchemaDir)
	t.Setenv("META_DB_PATH", filepath.Join(t.TempDir(), "meta.sqlite"))

	var stdout, stderr bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	return rootCmd, &stdout, &stderr
}

func writeRequest(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCLI_Validate(t *testing.T) {
	t.Run("valid schema", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "table", "validate"})

		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, stdout.String(), "✓ orders (")
		assert.Contains(t, stdout.String(), "Schema valid: 6 table(s).")
	})

	t.Run("broken schema as json", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "json", "validate", brokenSchemaDir})

		err := rootCmd.Execute()
		require.ErrorIs(t, err, errReported)

		var report struct {
			Valid  bool `json:"valid"`
			Errors []struct {
				Path string `json:"path"`
				Kind string `json:"kind"`
			} `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
		assert.False(t, report.Valid)
		require.NotEmpty(t, report.Errors)
		for _, e := range report.Errors {
			assert.Equal(t, domain.KindValidation, e.Kind, e.Path)
		}
	})

	t.Run("unknown output format", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "yaml", "validate"})

		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})
}

func TestCLI_Compile(t *testing.T) {
	t.Run("single request as json", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "json", "compile", writeRequest(t, "paid.yaml", paidAmountRequest)})

		require.NoError(t, rootCmd.Execute())
		var q domain.CompiledQuery
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &q))
		assert.Contains(t, q.SQL, "WHERE orders.status = $1")
		require.Len(t, q.Parameters, 1)
		assert.Equal(t, "paid", q.Parameters[0].Value)
	})

	t.Run("single request as table", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "table", "compile", writeRequest(t, "paid.yaml", paidAmountRequest)})

		require.NoError(t, rootCmd.Execute())
		lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
		require.Len(t, lines, 4, "sql, blank line, header, one parameter")
		assert.True(t, strings.HasSuffix(lines[0], ";"))
		assert.Contains(t, lines[2], "PLACEHOLDER")
		assert.Contains(t, lines[3], "$1")
		assert.Contains(t, lines[3], "paid")
	})

	t.Run("request from stdin", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetIn(strings.NewReader(statusAmountRequest))
		rootCmd.SetArgs([]string{"-o", "table", "compile", "-"})

		require.NoError(t, rootCmd.Execute())
		assert.Equal(t, statusAmountSQL+";\n", stdout.String())
	})

	t.Run("batch keeps going past failures", func(t *testing.T) {
		good := writeRequest(t, "good.yaml", statusAmountRequest)
		bad := writeRequest(t, "bad.yaml", strings.Replace(statusAmountRequest, "[status]", "[customer.nickname]", 1))

		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "json", "compile", good, bad})

		err := rootCmd.Execute()
		require.ErrorIs(t, err, errReported)

		var entries []struct {
			File  string                `json:"file"`
			Query *domain.CompiledQuery `json:"query"`
			Kind  string                `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, good, entries[0].File)
		require.NotNil(t, entries[0].Query)
		assert.Equal(t, statusAmountSQL, entries[0].Query.SQL)
		assert.Equal(t, bad, entries[1].File)
		assert.Nil(t, entries[1].Query)
		assert.Equal(t, domain.KindPathResolution, entries[1].Kind)
	})

	t.Run("missing request file", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"compile", filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, rootCmd.Execute())
	})

	t.Run("requires an argument", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"compile"})
		require.Error(t, rootCmd.Execute())
	})
}

func TestCLI_Explain(t *testing.T) {
	req := strings.Replace(statusAmountRequest, "[status]", "[customer.region.name]", 1)

	rootCmd, stdout, _ := newTestRootCmd(t)
	rootCmd.SetArgs([]string{"-o", "json", "explain", writeRequest(t, "region.yaml", req)})

	require.NoError(t, rootCmd.Execute())
	var plan struct {
		Joins []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"joins"`
		Aggregated bool `json:"aggregated"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &plan))
	require.Len(t, plan.Joins, 2)
	assert.Equal(t, "customer", plan.Joins[0].Path)
	assert.Equal(t, "customer.region", plan.Joins[1].Path)
	assert.True(t, plan.Aggregated)
}

func TestCLI_ImportExport(t *testing.T) {
	rootCmd, stdout, _ := newTestRootCmd(t)
	rootCmd.SetArgs([]string{"-o", "json", "import"})
	require.NoError(t, rootCmd.Execute())

	var imported struct {
		Status string   `json:"status"`
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &imported))
	assert.Equal(t, "ok", imported.Status)
	assert.Len(t, imported.Tables, 6)

	// Reuse the same metastore for the following commands.
	metaDB := os.Getenv("META_DB_PATH")

	t.Run("second import conflicts", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		rootCmd.SetArgs([]string{"import"})

		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Equal(t, domain.KindConflict, domain.ErrorKind(err))
	})

	t.Run("replace succeeds", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		rootCmd.SetArgs([]string{"import", "--replace"})
		require.NoError(t, rootCmd.Execute())
	})

	t.Run("compile from metastore", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		t.Setenv("SCHEMA_DIR", t.TempDir())
		rootCmd.SetArgs([]string{"-o", "table", "--from-metastore", "compile", writeRequest(t, "sa.yaml", statusAmountRequest)})

		require.NoError(t, rootCmd.Execute())
		assert.Equal(t, statusAmountSQL+";\n", stdout.String())
	})

	t.Run("export round trips through validate", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "exported")
		rootCmd, _, _ := newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		rootCmd.SetArgs([]string{"export", "--dir", out})
		require.NoError(t, rootCmd.Execute())

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Len(t, entries, 6)

		rootCmd, stdout, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"-o", "table", "validate", out})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, stdout.String(), "Schema valid: 6 table(s).")

		rootCmd, _, _ = newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		rootCmd.SetArgs([]string{"export", "--dir", out})
		err = rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("tables from metastore", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		t.Setenv("META_DB_PATH", metaDB)
		rootCmd.SetArgs([]string{"-o", "table", "--from-metastore", "tables"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, stdout.String(), "PHYSICAL_NAME")
		assert.Contains(t, stdout.String(), "sales.orders")
	})
}

func TestCLI_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "warehouse.duckdb")
	duck, err := engine.OpenDuckDB(dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE SCHEMA sales`,
		`CREATE TABLE sales.orders (id INTEGER, status VARCHAR, customer_id INTEGER, priority INTEGER,
			is_gift BOOLEAN, gross_amount DOUBLE, discount DOUBLE, created_at TIMESTAMP, amount DOUBLE)`,
		`INSERT INTO sales.orders VALUES
			(1, 'paid', 1, 1, false, 100, 0, '2024-01-05', 100),
			(2, 'paid', 2, 2, false, 60, 10, '2024-01-09', 50),
			(3, 'shipped', 1, 3, true, 20, 0, '2024-02-01', 20)`,
	} {
		_, err := duck.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, duck.Close())

	req := statusAmountRequest + "  sort: [{ field: status }]\n"

	rootCmd, stdout, _ := newTestRootCmd(t)
	rootCmd.SetArgs([]string{"-o", "json", "run", "--duckdb", dbPath, writeRequest(t, "sa.yaml", req)})
	require.NoError(t, rootCmd.Execute())

	var res domain.QueryResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, []string{"status", "amount"}, res.Columns)
	require.Equal(t, 2, res.RowCount)
	assert.Equal(t, "paid", res.Rows[0][0])
	assert.InDelta(t, 150.0, res.Rows[0][1], 0.001)
	assert.Equal(t, "shipped", res.Rows[1][0])

	t.Run("table output", func(t *testing.T) {
		rootCmd, stdout, _ := newTestRootCmd(t)
		t.Setenv("DUCKDB_PATH", dbPath)
		rootCmd.SetArgs([]string{"-o", "table", "run", writeRequest(t, "sa.yaml", req)})
		require.NoError(t, rootCmd.Execute())

		lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
		require.Len(t, lines, 5)
		assert.Contains(t, lines[0], "STATUS")
		assert.Contains(t, lines[1], "paid")
		assert.Equal(t, "2 row(s)", lines[4])
	})

	t.Run("missing relation", func(t *testing.T) {
		rootCmd, _, _ := newTestRootCmd(t)
		rootCmd.SetArgs([]string{"run", writeRequest(t, "sa.yaml", req)})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execute query")
	})
}

func TestCLI_Version(t *testing.T) {
	rootCmd, stdout, _ := newTestRootCmd(t)
	rootCmd.SetArgs([]string{"-o", "json", "version"})
	require.NoError(t, rootCmd.Execute())

	var v map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
	assert.Equal(t, version, v["version"])
	assert.Equal(t, commit, v["commit"])
}

func TestCLI_ConfigError(t *testing.T) {
	rootCmd, _, _ := newTestRootCmd(t)
	t.Setenv("MAX_PAGE_SIZE", "lots")
	rootCmd.SetArgs([]string{"validate"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `MAX_PAGE_SIZE: invalid integer "lots"`)
}
