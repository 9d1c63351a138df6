// Package csvparse tokenizes CSV exports into rows of string fields.
//
// The grammar is RFC 4180 with two leniencies that real pantry and pharmacy
// exports depend on:
//
//   - A double quote only opens a quoted field when it is the first
//     character of the field. A quote after content has started is kept as a
//     literal character.
//   - An unterminated quoted field at end of input is closed rather than
//     rejected.
//
// Fields are returned verbatim except that one trailing carriage return is
// removed from every field as it is flushed, which turns CRLF line endings
// into plain row breaks.
package csvparse

import "strings"

// Document is an ordered sequence of rows, each an ordered sequence of fields.
type Document [][]string

// Parse tokenizes text in a single pass. It never fails; malformed input is
// salvaged as described in the package documentation.
func Parse(text string) Document {
	var (
		doc      Document
		row      []string
		field    strings.Builder
		inQuotes bool
	)

	flushField := func() {
		f := field.String()
		f = strings.TrimSuffix(f, "\r")
		row = append(row, f)
		field.Reset()
	}
	flushRow := func() {
		flushField()
		doc = append(doc, row)
		row = nil
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteByte(ch)
			continue
		}

		switch ch {
		case '"':
			if field.Len() == 0 {
				inQuotes = true
				continue
			}
			field.WriteByte(ch)
		case ',':
			flushField()
		case '\n':
			flushRow()
		default:
			field.WriteByte(ch)
		}
	}

	// A final row without a trailing newline still counts. An open quote is
	// treated as closed.
	if field.Len() > 0 || len(row) > 0 {
		flushRow()
	}

	return doc
}

// IsBlank reports whether every field in row is empty.
func IsBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// DropBlankRows returns the rows of doc that contain at least one non-empty
// field, preserving order.
func DropBlankRows(doc Document) Document {
	out := make(Document, 0, len(doc))
	for _, r := range doc {
		if !IsBlank(r) {
			out = append(out, r)
		}
	}
	return out
}

// Format serializes doc so that Parse(Format(doc)) reproduces it. Fields
// containing a delimiter, quote, or line break are quoted with embedded quotes
// doubled; every row ends with "\n". A field that itself ends in "\r" cannot
// survive the round trip because Parse strips it.
func Format(doc Document) string {
	var b strings.Builder
	for _, row := range doc {
		for i, f := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Quote(f))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Quote returns f quoted for CSV output when it needs quoting, else f.
func Quote(f string) string {
	if !strings.ContainsAny(f, ",\"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
