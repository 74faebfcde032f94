package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{name: "empty ok", output: "", wantErr: false},
		{name: "table ok", output: "table", wantErr: false},
		{name: "json ok", output: "json", wantErr: false},
		{name: "yaml rejected", output: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOutputFormat(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, ""},
		{"string", "paid", "paid"},
		{"int", int64(42), "42"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"map as json", map[string]interface{}{"k": "v"}, `{"k":"v"}`},
		{"slice as json", []interface{}{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.in))
		})
	}

	assert.Equal(t, []string{"", "x", "3"}, formatRow([]interface{}{nil, "x", 3}))
}

func TestPrintDetail_NilField(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]interface{}{"status": nil})
	assert.NotContains(t, buf.String(), "<nil>", "nil fields should not render as Go's <nil>")
}

func TestPrintDetail_MapField(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]interface{}{"config": map[string]interface{}{"key": "val"}})
	assert.NotContains(t, buf.String(), "map[", "map fields should not render as Go's map[...] syntax")
}

func TestPrintTable_Basic(t *testing.T) {
	var buf bytes.Buffer
	columns := []string{"name", "age"}
	rows := [][]string{
		{"Alice", "30"},
		{"Bob", "25"},
	}

	PrintTable(&buf, columns, rows)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3, "expected header + 2 data rows")
	assert.Equal(t, "NAME   AGE", lines[0])
	assert.Equal(t, "Alice  30", lines[1])
	assert.Equal(t, "Bob    25", lines[2])
}

func TestPrintTable_EmptyColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{}, [][]string{{"a"}})
	assert.Empty(t, buf.String(), "empty columns should produce no output")
}

func TestPrintTable_EmptyRows(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"id", "value"}, nil)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 1, "only the header line should be present")
	assert.Equal(t, "ID  VALUE", lines[0])
}

func TestPrintTable_ShortRow(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"a", "b"}, [][]string{{"1"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, "1  ", lines[1])
}

func TestPrintJSON_Basic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"hello": "world"}))

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "world", parsed["hello"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestPrintJSON_NilInput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, nil))
	assert.Equal(t, "null\n", buf.String())
}

func TestPrintJSON_Unsupported(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, map[string]interface{}{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal json")
}

func TestPrintDetail_SortedKeys(t *testing.T) {
	var buf bytes.Buffer
	fields := map[string]interface{}{
		"zebra":  "z",
		"apple":  "a",
		"mango":  "m",
		"banana": "b",
	}

	PrintDetail(&buf, fields)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	keys := make([]string, len(lines))
	for i, line := range lines {
		keys[i] = strings.SplitN(line, ":", 2)[0]
	}
	assert.Equal(t, []string{"apple", "banana", "mango", "zebra"}, keys)
}

func TestPrintDetail_Padding(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]interface{}{
		"id":          "123",
		"description": "some text",
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	// "description" sorts first; "id" is padded by 9 so the values align.
	assert.Equal(t, "description:  some text", lines[0])
	assert.Equal(t, "id:"+strings.Repeat(" ", 9)+"  123", lines[1])
}
