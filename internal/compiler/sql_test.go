package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"duck-semantic/internal/domain"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"orders", "orders"},
		{"order_items_2", "order_items_2"},
		{"__sort_1", "__sort_1"},
		{"order", `"order"`},
		{"Status", `"Status"`},
		{"2fa", `"2fa"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, quoteIdent(tc.in), tc.in)
	}
}

func TestQuoteRelation(t *testing.T) {
	assert.Equal(t, "sales.orders", quoteRelation("sales.orders"))
	assert.Equal(t, `main."order"`, quoteRelation("main.order"))
	assert.Equal(t, `lake."Sales"."Group"`, quoteRelation("lake.Sales.Group"))
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, "SUM(x)", aggregate(domain.AggregationSum, "x"))
	assert.Equal(t, "COUNT(x)", aggregate(domain.AggregationCount, "x"))
	assert.Equal(t, "COUNT(DISTINCT x)", aggregate(domain.AggregationCountDistinct, "x"))
	assert.Equal(t, "AVG(x)", aggregate(domain.AggregationAverage, "x"))
	assert.Equal(t, "MIN(x)", aggregate(domain.AggregationMin, "x"))
	assert.Equal(t, "MAX(x)", aggregate(domain.AggregationMax, "x"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "DATE_TRUNC('quarter', t.ts)", truncate(domain.TimeGrainQuarter, "t.ts"))
}
