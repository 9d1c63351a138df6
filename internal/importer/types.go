package importer

import (
	"encoding/json"
	"time"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// Request identifies one import.
type Request struct {
	Table     string `json:"table"`
	CSVPath   string `json:"csvPath"`
	HasHeader bool   `json:"hasHeader"` // drop the first parsed row unconditionally
}

// Row is a normalized row: exactly one cell per insertable column.
type Row []store.Cell

// TableSchema is the insertable column list of a target table, in catalog
// order.
type TableSchema struct {
	Table   string
	Columns []string
}

// Width returns the number of insertable columns.
func (s TableSchema) Width() int { return len(s.Columns) }

// Phase names a progress event.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseReading   Phase = "reading"
	PhaseParsing   Phase = "parsing"
	PhaseParsed    Phase = "parsed"
	PhaseInserting Phase = "inserting"
	PhasePatching  Phase = "patching"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// Terminal reports whether no event may follow p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// Progress is one event on the progress stream.
type Progress struct {
	Seq          int    `json:"-"` // 1-based position in the stream
	Phase        Phase  `json:"phase"`
	RowsParsed   *int   `json:"rowsParsed,omitempty"`
	RowsInserted *int   `json:"rowsInserted,omitempty"`
	Message      string `json:"message,omitempty"`
}

func intPtr(n int) *int { return &n }

// Outcome is the result of a run. It is always populated, on failure with the
// counts reached before the failure point.
type Outcome struct {
	OK           bool
	Message      string
	Table        string
	CSVPath      string // absolute
	RowsParsed   int
	RowsInserted int
	ColumnsUsed  int

	// Stage is the last stage the run reached: StageDone on success,
	// otherwise where it stopped.
	Stage    Stage
	StepsRun []string
	Err      error
	Duration time.Duration
}

type outcomeJSON struct {
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	Table        string `json:"table,omitempty"`
	CSVPath      string `json:"csvPath,omitempty"`
	RowsParsed   *int   `json:"rowsParsed,omitempty"`
	RowsInserted *int   `json:"rowsInserted,omitempty"`
	ColumnsUsed  *int   `json:"columnsUsed,omitempty"`
}

// MarshalJSON emits the result payload. Counts and locations appear only once
// the run has parsed the file; rowsInserted only once inserting has begun.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{OK: o.OK, Message: o.Message}
	if o.Stage.reached(StageParsed) {
		out.Table = o.Table
		out.CSVPath = o.CSVPath
		out.RowsParsed = intPtr(o.RowsParsed)
		out.ColumnsUsed = intPtr(o.ColumnsUsed)
	}
	if o.Stage.reached(StageInserting) {
		out.RowsInserted = intPtr(o.RowsInserted)
	}
	return json.Marshal(out)
}

// SchemaResolved reports whether the run found the target table's columns,
// which confirms Table names a real staging table.
func (o Outcome) SchemaResolved() bool {
	return o.Stage.reached(StageSchemaResolved)
}

// Progress returns the terminal event for o.
func (o Outcome) Progress() Progress {
	p := Progress{Phase: PhaseDone, Message: o.Message}
	if !o.OK {
		p.Phase = PhaseError
	}
	if o.Stage.reached(StageParsed) {
		p.RowsParsed = intPtr(o.RowsParsed)
	}
	if o.Stage.reached(StageInserting) {
		p.RowsInserted = intPtr(o.RowsInserted)
	}
	return p
}
