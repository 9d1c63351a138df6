package importer

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Error kinds. Match them with errors.Is; the concrete *Error carries the
// details.
var (
	ErrNotConfigured       = errors.New("database settings are not configured")
	ErrInvalidRequest      = errors.New("invalid import request")
	ErrFileNotFound        = errors.New("csv file not found")
	ErrNotAFile            = errors.New("csv path is not a file")
	ErrFileTooLarge        = errors.New("csv file too large")
	ErrReadFailure         = errors.New("csv read failed")
	ErrSchemaLookup        = errors.New("schema lookup failed")
	ErrRowWidthExceeded    = errors.New("row width exceeded")
	ErrInsertFailure       = errors.New("insert failed")
	ErrMergeRoutineMissing = errors.New("merge routine missing")
	ErrMergeFailure        = errors.New("merge step failed")
	ErrDestructiveRoutine  = errors.New("destructive routine refused")
)

// Service errors.
var (
	ErrImportInProgress = errors.New("import already in progress for table")
	ErrImportNotFound   = errors.New("import not found")
)

// Error describes a failed import step.
type Error struct {
	Kind  error  // one of the Err* kinds above
	Field string // request field, for ErrInvalidRequest
	Table string
	Path  string

	Row  int // 1-based data row, for ErrRowWidthExceeded and ErrInsertFailure
	Got  int
	Want int

	Size  int64 // file size and limit, for ErrFileTooLarge
	Limit int64

	Step string // merge routine name
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case ErrNotConfigured:
		msg = "Database settings are not configured."
	case ErrInvalidRequest:
		switch e.Field {
		case "table":
			msg = "No table selected."
			if e.Table != "" {
				msg = fmt.Sprintf("Table %s is not an import staging table.", e.Table)
			}
		case "csvPath":
			msg = "No CSV selected."
		default:
			msg = "Invalid import request."
		}
	case ErrFileNotFound:
		msg = "CSV file not found: " + e.Path
	case ErrNotAFile:
		msg = "Not a file: " + e.Path
	case ErrFileTooLarge:
		msg = fmt.Sprintf("CSV is %s, larger than the %s limit; streaming import is not implemented.",
			humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
	case ErrReadFailure:
		msg = "Could not read CSV: " + e.Path
	case ErrSchemaLookup:
		msg = "Could not load columns for table: " + e.Table
	case ErrRowWidthExceeded:
		msg = fmt.Sprintf("Row %d has %d columns, but table %s has %d.", e.Row, e.Got, e.Table, e.Want)
	case ErrInsertFailure:
		msg = fmt.Sprintf("Insert into %s failed at row %d", e.Table, e.Row)
	case ErrMergeRoutineMissing:
		msg = fmt.Sprintf("Merge routine %s does not exist.", e.Step)
	case ErrMergeFailure:
		msg = fmt.Sprintf("Merge step %s failed", e.Step)
	case ErrDestructiveRoutine:
		msg = fmt.Sprintf("Refusing to call destructive routine %s.", e.Step)
	default:
		msg = "Import failed"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
