// Package atlasschema reads foreign keys through Atlas' PostgreSQL schema
// inspector. It is an alternative to the catalog queries of package
// postgres and produces the same dependency information.
package atlasschema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"github.com/phrazzld/scry-dbreset/internal/depgraph"
)

// Inspector implements depgraph.Introspector on top of Atlas.
// ListTables inspects the schema and caches the result for the
// ListForeignKeys calls that follow it.
type Inspector struct {
	insp   schema.Inspector
	schema string

	mu       sync.Mutex
	snapshot *schema.Schema
}

var _ depgraph.Introspector = (*Inspector)(nil)

// New opens an Atlas driver on db for the given schema. Opening queries
// the server version, so db must be reachable.
func New(db schema.ExecQuerier, schemaName string) (*Inspector, error) {
	drv, err := postgres.Open(db)
	if err != nil {
		return nil, fmt.Errorf("failed to open atlas driver: %w", err)
	}
	if schemaName == "" {
		schemaName = "public"
	}
	return &Inspector{insp: drv, schema: schemaName}, nil
}

func (i *Inspector) inspect(ctx context.Context, refresh bool) (*schema.Schema, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.snapshot != nil && !refresh {
		return i.snapshot, nil
	}
	s, err := i.insp.InspectSchema(ctx, i.schema, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect schema %s: %w", i.schema, err)
	}
	i.snapshot = s
	return s, nil
}

// ListTables inspects the schema afresh and returns its tables in name order.
func (i *Inspector) ListTables(ctx context.Context) ([]string, error) {
	s, err := i.inspect(ctx, true)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		tables = append(tables, t.Name)
	}
	sort.Strings(tables)
	return tables, nil
}

// ListForeignKeys returns the foreign keys of table from the last
// inspection. Referenced tables in other schemas are qualified.
func (i *Inspector) ListForeignKeys(ctx context.Context, table string) ([]depgraph.ForeignKey, error) {
	s, err := i.inspect(ctx, false)
	if err != nil {
		return nil, err
	}
	t, ok := s.Table(table)
	if !ok {
		return nil, fmt.Errorf("table %s not found in schema %s", table, i.schema)
	}

	fks := make([]depgraph.ForeignKey, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == nil {
			continue
		}
		ref := fk.RefTable.Name
		if fk.RefTable.Schema != nil && fk.RefTable.Schema.Name != i.schema {
			ref = fk.RefTable.Schema.Name + "." + ref
		}
		fks = append(fks, depgraph.ForeignKey{Name: fk.Symbol, Table: table, ReferencedTable: ref})
	}
	sort.Slice(fks, func(a, b int) bool { return fks[a].Name < fks[b].Name })
	return fks, nil
}
