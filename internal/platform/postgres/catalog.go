package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/phrazzld/scry-dbreset/internal/store"
)

const (
	listTablesQuery = `SELECT table_name FROM information_schema.tables ` +
		`WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`

	// Referenced tables in another schema come back qualified so the
	// resolver treats them as external.
	listForeignKeysQuery = `SELECT con.conname, ` +
		`CASE WHEN refnsp.nspname = nsp.nspname THEN ref.relname ` +
		`ELSE refnsp.nspname || '.' || ref.relname END ` +
		`FROM pg_constraint con ` +
		`JOIN pg_class rel ON rel.oid = con.conrelid ` +
		`JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace ` +
		`JOIN pg_class ref ON ref.oid = con.confrelid ` +
		`JOIN pg_namespace refnsp ON refnsp.oid = ref.relnamespace ` +
		`WHERE con.contype = 'f' AND nsp.nspname = $1 AND rel.relname = $2 ` +
		`ORDER BY con.conname`

	// Serial and identity columns own their sequence through an 'a' or 'i'
	// dependency; unowned sequences report an empty table.
	listSequencesQuery = `SELECT s.sequencename, s.last_value, COALESCE(t.relname, '') ` +
		`FROM pg_sequences s ` +
		`JOIN pg_namespace n ON n.nspname = s.schemaname ` +
		`JOIN pg_class c ON c.relnamespace = n.oid AND c.relname = s.sequencename ` +
		`LEFT JOIN pg_depend d ON d.objid = c.oid ` +
		`AND d.classid = 'pg_class'::regclass AND d.refclassid = 'pg_class'::regclass ` +
		`AND d.deptype IN ('a', 'i') ` +
		`LEFT JOIN pg_class t ON t.oid = d.refobjid ` +
		`WHERE s.schemaname = $1 ORDER BY s.sequencename`

	settingQuery = `SELECT current_setting($1)`
)

// Sequence is a sequence of the inspected schema. LastValue is NULL until
// nextval has been called after creation or the last restart. Table names
// the table owning the sequence, if any.
type Sequence struct {
	Name      string
	LastValue sql.NullInt64
	Table     string
}

// Catalog reads table, foreign key and sequence metadata of one schema.
type Catalog struct {
	db     store.DBTX
	schema string
}

var _ depgraph.Introspector = (*Catalog)(nil)

// NewCatalog creates a Catalog for schema. An empty schema means "public".
func NewCatalog(db store.DBTX, schema string) *Catalog {
	if schema == "" {
		schema = "public"
	}
	return &Catalog{db: db, schema: schema}
}

// Schema returns the inspected schema.
func (c *Catalog) Schema() string {
	return c.schema
}

// ListTables returns the base tables of the schema in name order.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, listTablesQuery, c.schema)
	if err != nil {
		return nil, store.NewStoreError(c.schema, "list tables", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return tables, nil
}

// ListForeignKeys returns the foreign keys declared on table.
func (c *Catalog) ListForeignKeys(ctx context.Context, table string) ([]depgraph.ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, listForeignKeysQuery, c.schema, table)
	if err != nil {
		return nil, store.NewStoreError(table, "list foreign keys", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var fks []depgraph.ForeignKey
	for rows.Next() {
		fk := depgraph.ForeignKey{Table: table}
		if err := rows.Scan(&fk.Name, &fk.ReferencedTable); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foreign keys of %s: %w", table, err)
	}
	return fks, nil
}

// ListSequences returns the sequences of the schema in name order.
func (c *Catalog) ListSequences(ctx context.Context) ([]Sequence, error) {
	rows, err := c.db.QueryContext(ctx, listSequencesQuery, c.schema)
	if err != nil {
		return nil, store.NewStoreError(c.schema, "list sequences", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var seqs []Sequence
	for rows.Next() {
		var s Sequence
		if err := rows.Scan(&s.Name, &s.LastValue, &s.Table); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		seqs = append(seqs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequences: %w", err)
	}
	return seqs, nil
}

// CountRows returns the number of rows in table.
func (c *Catalog) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT count(*) FROM " + QuoteIdent(c.schema, table)
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, store.NewStoreError(table, "count rows", "query failed", err)
	}
	return n, nil
}

// Setting returns the current value of a run-time parameter.
func (c *Catalog) Setting(ctx context.Context, name string) (string, error) {
	var value string
	if err := c.db.QueryRowContext(ctx, settingQuery, name).Scan(&value); err != nil {
		return "", store.NewStoreError(name, "read setting", "query failed", err)
	}
	return value, nil
}

// QuoteIdent returns schema.name quoted for use in SQL. An empty schema
// leaves the name unqualified.
func QuoteIdent(schema, name string) string {
	if schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{schema, name}.Sanitize()
}
