package importer

import (
	"context"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// ResolveSchema asks the catalog for table's columns and keeps the ones an
// import may write, in catalog order. It is called once per import and never
// cached. A missing table and a table with only generated columns both fail
// with ErrSchemaLookup.
func ResolveSchema(ctx context.Context, catalog store.Catalog, table string) (TableSchema, error) {
	cols, err := catalog.Columns(ctx, table)
	if err != nil {
		return TableSchema{}, &Error{Kind: ErrSchemaLookup, Table: table, Err: err}
	}

	schema := TableSchema{Table: table}
	for _, c := range cols {
		if c.Generated || c.Name == "" {
			continue
		}
		schema.Columns = append(schema.Columns, c.Name)
	}
	if len(schema.Columns) == 0 {
		return TableSchema{}, &Error{Kind: ErrSchemaLookup, Table: table}
	}
	return schema, nil
}
