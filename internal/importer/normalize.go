package importer

import "github.com/JonMunkholm/exportappend/internal/store"

// Normalize validates every row against schema before any of them is
// returned. A row wider than the schema fails the whole set with
// ErrRowWidthExceeded (Row is 1-based, counted after header and blank-row
// removal). Shorter rows are padded with NULL cells. Values pass through
// untouched.
func Normalize(rows [][]string, schema TableSchema) ([]Row, error) {
	width := schema.Width()

	for i, r := range rows {
		if len(r) > width {
			return nil, &Error{
				Kind:  ErrRowWidthExceeded,
				Table: schema.Table,
				Row:   i + 1,
				Got:   len(r),
				Want:  width,
			}
		}
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		row := make(Row, width)
		for c := range row {
			if c < len(r) {
				row[c] = store.Text(r[c])
			} else {
				row[c] = store.Null()
			}
		}
		out[i] = row
	}
	return out, nil
}
