package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"duck-semantic/internal/domain"
)

// Compile-time check.
var _ domain.SemanticTableRepository = (*SemanticTableRepo)(nil)

// SemanticTableRepo implements SemanticTableRepository using SQLite. A table
// definition is stored as one semantic_tables row plus ordered column and
// relationship rows.
type SemanticTableRepo struct {
	db *sql.DB
}

// NewSemanticTableRepo creates a new SemanticTableRepo.
func NewSemanticTableRepo(db *sql.DB) *SemanticTableRepo {
	return &SemanticTableRepo{db: db}
}

const tableColumns = `id, name, description, physical_name, id_column`

// Create inserts a new table definition.
func (r *SemanticTableRepo) Create(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	id := newID()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertTable(ctx, tx, id, def); err != nil {
			return err
		}
		return insertChildren(ctx, tx, id, def)
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return nil, domain.ErrConflict("semantic table %q already exists", def.Name)
		}
		return nil, err
	}
	return withID(def, id), nil
}

// Save inserts def, or replaces the stored definition with the same name while
// keeping its ID.
func (r *SemanticTableRepo) Save(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	var id string
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT id FROM semantic_tables WHERE name = ?`, def.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = newID()
			if err := insertTable(ctx, tx, id, def); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE semantic_tables
				SET description = ?, physical_name = ?, id_column = ?,
				    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
				WHERE id = ?`,
				def.Description, def.PhysicalName, def.IDColumn, id)
			if err != nil {
				return mapDBError(err)
			}
			for _, stmt := range []string{
				`DELETE FROM semantic_columns WHERE table_id = ?`,
				`DELETE FROM semantic_relationships WHERE table_id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					return err
				}
			}
		}
		return insertChildren(ctx, tx, id, def)
	})
	if err != nil {
		return nil, err
	}
	return withID(def, id), nil
}

// GetByName returns the table definition with the given logical name.
func (r *SemanticTableRepo) GetByName(ctx context.Context, name string) (*domain.TableDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM semantic_tables WHERE name = ?`, name)
	var t domain.TableDefinition
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.PhysicalName, &t.IDColumn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound("semantic table %q not found", name)
		}
		return nil, mapDBError(err)
	}
	tables := []*domain.TableDefinition{&t}
	if err := loadChildren(ctx, r.db, tables, `WHERE table_id = ?`, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns every table definition ordered by name.
func (r *SemanticTableRepo) List(ctx context.Context) ([]domain.TableDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tableColumns+` FROM semantic_tables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.TableDefinition
	for rows.Next() {
		var t domain.TableDefinition
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.PhysicalName, &t.IDColumn); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*domain.TableDefinition, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := loadChildren(ctx, r.db, ptrs, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the table definition with the given name.
func (r *SemanticTableRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM semantic_tables WHERE name = ?`, name)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("semantic table %q not found", name)
	}
	return nil
}

func (r *SemanticTableRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertTable(ctx context.Context, q queryer, id string, def *domain.TableDefinition) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO semantic_tables (`+tableColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		id, def.Name, def.Description, def.PhysicalName, def.IDColumn)
	return mapDBError(err)
}

func insertChildren(ctx context.Context, q queryer, id string, def *domain.TableDefinition) error {
	for i, c := range def.Columns {
		_, err := q.ExecContext(ctx, `
			INSERT INTO semantic_columns
				(table_id, position, name, display_name, kind, value_type, physical_name, expression, join_path, aggregation, grains)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, c.Name, c.DisplayName, string(c.Kind), string(c.ValueType), c.PhysicalName,
			c.Expression, c.JoinPath, string(c.Aggregation), joinGrains(c.Grains))
		if err != nil {
			return fmt.Errorf("insert column %s.%s: %w", def.Name, c.Name, mapDBError(err))
		}
	}
	for i, rel := range def.Relationships {
		_, err := q.ExecContext(ctx, `
			INSERT INTO semantic_relationships
				(table_id, position, name, target, cardinality, optional, source_key, target_key, join_template)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, rel.Name, rel.Target, string(rel.Cardinality), boolToInt(rel.Optional),
			rel.SourceKey, rel.TargetKey, rel.JoinTemplate)
		if err != nil {
			return fmt.Errorf("insert relationship %s.%s: %w", def.Name, rel.Name, mapDBError(err))
		}
	}
	return nil
}

// loadChildren fills the columns and relationships of tables, filtered by the
// optional where clause.
func loadChildren(ctx context.Context, q queryer, tables []*domain.TableDefinition, where string, args ...interface{}) error {
	byID := make(map[string]*domain.TableDefinition, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT table_id, name, display_name, kind, value_type, physical_name, expression, join_path, aggregation, grains
		FROM semantic_columns `+where+`
		ORDER BY table_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			tableID, kind, valueType, aggregation, grains string
			c                                             domain.ColumnDefinition
		)
		if err := rows.Scan(&tableID, &c.Name, &c.DisplayName, &kind, &valueType, &c.PhysicalName,
			&c.Expression, &c.JoinPath, &aggregation, &grains); err != nil {
			_ = rows.Close()
			return err
		}
		c.Kind = domain.ColumnKind(kind)
		c.ValueType = domain.ValueType(valueType)
		c.Aggregation = domain.AggregationFunction(aggregation)
		c.Grains = splitGrains(grains)
		if t, ok := byID[tableID]; ok {
			t.Columns = append(t.Columns, c)
		}
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT table_id, name, target, cardinality, optional, source_key, target_key, join_template
		FROM semantic_relationships `+where+`
		ORDER BY table_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			tableID, cardinality string
			optional             int64
			rel                  domain.RelationshipDefinition
		)
		if err := rows.Scan(&tableID, &rel.Name, &rel.Target, &cardinality, &optional,
			&rel.SourceKey, &rel.TargetKey, &rel.JoinTemplate); err != nil {
			_ = rows.Close()
			return err
		}
		rel.Cardinality = domain.Cardinality(cardinality)
		rel.Optional = optional != 0
		if t, ok := byID[tableID]; ok {
			t.Relationships = append(t.Relationships, rel)
		}
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func joinGrains(grains []domain.TimeGrain) string {
	parts := make([]string, len(grains))
	for i, g := range grains {
		parts[i] = string(g)
	}
	return strings.Join(parts, ",")
}

func splitGrains(s string) []domain.TimeGrain {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.TimeGrain, len(parts))
	for i, p := range parts {
		out[i] = domain.TimeGrain(p)
	}
	return out
}

func withID(def *domain.TableDefinition, id string) *domain.TableDefinition {
	out := *def
	out.ID = id
	out.Columns = append([]domain.ColumnDefinition(nil), def.Columns...)
	out.Relationships = append([]domain.RelationshipDefinition(nil), def.Relationships...)
	return &out
}
