package testutil

import "duck-semantic/internal/domain"

func dim(name string, vt domain.ValueType) domain.ColumnDefinition {
	return domain.ColumnDefinition{Name: name, Kind: domain.ColumnKindDimension, ValueType: vt}
}

func metric(name string, agg domain.AggregationFunction, vt domain.ValueType) domain.ColumnDefinition {
	return domain.ColumnDefinition{Name: name, Kind: domain.ColumnKindMetric, ValueType: vt, Aggregation: agg}
}

// SalesSchema returns a small sales schema covering every column variant and
// both relationship styles:
//
//	orders -> customer (TO_ONE) -> region (TO_ONE)
//	orders -> items (TO_MANY) -> product (TO_ONE)
//	orders -> shipments (TO_MANY, optional, ON template)
//
// A fresh copy is returned on every call.
func SalesSchema() []domain.TableDefinition {
	customerCountry := dim("customer_country", domain.ValueTypeText)
	customerCountry.JoinPath = "customer.country"

	net := dim("net", domain.ValueTypeDecimal)
	net.Expression = "{{gross}} - {{discount}}"

	gross := dim("gross", domain.ValueTypeDecimal)
	gross.PhysicalName = "gross_amount"

	revenue := metric("revenue", domain.AggregationSum, domain.ValueTypeDecimal)
	revenue.Expression = "{{net}}"

	orderCount := metric("order_count", domain.AggregationCount, domain.ValueTypeInteger)
	orderCount.PhysicalName = "id"

	customerCount := metric("customer_count", domain.AggregationCountDistinct, domain.ValueTypeInteger)
	customerCount.PhysicalName = "customer_id"

	maxAmount := metric("max_amount", domain.AggregationMax, domain.ValueTypeDecimal)
	maxAmount.PhysicalName = "amount"

	createdAt := domain.ColumnDefinition{
		Name: "created_at", Kind: domain.ColumnKindTimeDimension, ValueType: domain.ValueTypeTimestamp,
		Grains: []domain.TimeGrain{domain.TimeGrainDay, domain.TimeGrainMonth},
	}

	country := dim("country", domain.ValueTypeText)
	country.PhysicalName = "country_code"

	shippedAt := domain.ColumnDefinition{Name: "shipped_at", Kind: domain.ColumnKindTimeDimension, ValueType: domain.ValueTypeDate}

	units := metric("units", domain.AggregationSum, domain.ValueTypeInteger)
	units.PhysicalName = "quantity"

	return []domain.TableDefinition{
		{
			Name:         "orders",
			Description:  "One row per order",
			PhysicalName: "sales.orders",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("status", domain.ValueTypeText),
				dim("customer_id", domain.ValueTypeInteger),
				dim("priority", domain.ValueTypeInteger),
				dim("is_gift", domain.ValueTypeBoolean),
				gross,
				dim("discount", domain.ValueTypeDecimal),
				net,
				createdAt,
				customerCountry,
				metric("amount", domain.AggregationSum, domain.ValueTypeDecimal),
				revenue,
				orderCount,
				customerCount,
				maxAmount,
			},
			Relationships: []domain.RelationshipDefinition{
				{Name: "customer", Target: "customers", Cardinality: domain.CardinalityToOne, SourceKey: "customer_id"},
				{Name: "items", Target: "order_items", Cardinality: domain.CardinalityToMany, SourceKey: "id", TargetKey: "order_id"},
				{Name: "shipments", Target: "shipments", Cardinality: domain.CardinalityToMany, Optional: true,
					JoinTemplate: "{{id}} = {{shipments.order_id}}"},
			},
		},
		{
			Name:         "customers",
			PhysicalName: "sales.customers",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("name", domain.ValueTypeText),
				country,
				dim("region_id", domain.ValueTypeInteger),
			},
			Relationships: []domain.RelationshipDefinition{
				{Name: "region", Target: "regions", Cardinality: domain.CardinalityToOne, Optional: true, SourceKey: "region_id"},
			},
		},
		{
			Name:         "regions",
			PhysicalName: "sales.regions",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("name", domain.ValueTypeText),
			},
		},
		{
			Name:         "order_items",
			PhysicalName: "sales.order_items",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("order_id", domain.ValueTypeInteger),
				dim("product_id", domain.ValueTypeInteger),
				dim("sku", domain.ValueTypeText),
				dim("quantity", domain.ValueTypeInteger),
				units,
			},
			Relationships: []domain.RelationshipDefinition{
				{Name: "product", Target: "products", Cardinality: domain.CardinalityToOne, SourceKey: "product_id"},
			},
		},
		{
			Name:         "products",
			PhysicalName: "sales.products",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("name", domain.ValueTypeText),
				dim("category", domain.ValueTypeText),
			},
		},
		{
			Name:         "shipments",
			PhysicalName: "sales.shipments",
			Columns: []domain.ColumnDefinition{
				dim("id", domain.ValueTypeInteger),
				dim("order_id", domain.ValueTypeInteger),
				dim("carrier", domain.ValueTypeText),
				shippedAt,
			},
		},
	}
}

// SalesTable returns the named table from SalesSchema, or panics.
func SalesTable(name string) domain.TableDefinition {
	for _, t := range SalesSchema() {
		if t.Name == name {
			return t
		}
	}
	panic("testutil: unknown sales table " + name)
}
