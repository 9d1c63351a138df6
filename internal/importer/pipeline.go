package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/encoding"

	"github.com/JonMunkholm/exportappend/internal/csvparse"
	"github.com/JonMunkholm/exportappend/internal/logging"
	"github.com/JonMunkholm/exportappend/internal/store"
)

// Target is the part of a store an import needs.
type Target interface {
	store.Catalog
	store.Inserter
	store.Caller
}

// Options tune a Pipeline. Zero values select the defaults.
type Options struct {
	BatchSize   int               // rows per INSERT (default 250)
	MaxFileSize int64             // bytes (default 256 MiB)
	Encoding    encoding.Encoding // source encoding (default UTF-8)
	MergeSteps  []MergeStep       // default DefaultMergeSteps()
	Observer    Observer
}

// Pipeline runs imports against one target.
type Pipeline struct {
	db     Target
	opts   Options
	merger *Merger
}

// NewPipeline returns a pipeline over db. A nil db makes every run fail with
// ErrNotConfigured.
func NewPipeline(db Target, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	p := &Pipeline{db: db, opts: opts}
	if db != nil {
		p.merger = NewMerger(db, db, opts.MergeSteps)
	}
	return p
}

// run holds the state of one import.
type run struct {
	p      *Pipeline
	req    Request
	rep    *Reporter
	sm     stageMachine
	out    Outcome
	logger *slog.Logger
}

// Run performs one import and reports progress on rep, which may be nil. It
// never returns an error: every failure, including a panic, is folded into
// the Outcome and a terminal error event.
func (p *Pipeline) Run(ctx context.Context, req Request, rep *Reporter) (out Outcome) {
	if rep == nil {
		rep = NewReporter(nil)
	}
	r := &run{
		p:      p,
		req:    req,
		rep:    rep,
		out:    Outcome{Table: req.Table, CSVPath: req.CSVPath},
		logger: logging.WithFields(ctx, "table", req.Table),
	}
	start := time.Now()

	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("panic in import", "panic", v)
			r.fail(fmt.Errorf("internal error: %v", v))
		}
		r.out.Duration = time.Since(start)
		p.opts.Observer.ImportFinished(r.out)
		out = r.out
	}()

	p.opts.Observer.ImportStarted()
	if err := r.execute(ctx); err != nil {
		r.fail(err)
		return
	}
	r.succeed()
	return
}

func (r *run) execute(ctx context.Context) error {
	if r.p.db == nil {
		return &Error{Kind: ErrNotConfigured}
	}
	if strings.TrimSpace(r.req.Table) == "" {
		return &Error{Kind: ErrInvalidRequest, Field: "table"}
	}
	if strings.TrimSpace(r.req.CSVPath) == "" {
		return &Error{Kind: ErrInvalidRequest, Field: "csvPath"}
	}

	abs, err := statSource(r.req.CSVPath, r.p.opts.MaxFileSize)
	r.out.CSVPath = abs
	if err != nil {
		return err
	}

	r.emit(Progress{Phase: PhaseLoading, Message: "Loading table schema..."})
	schema, err := ResolveSchema(ctx, r.p.db, r.req.Table)
	if err != nil {
		return err
	}
	r.out.ColumnsUsed = schema.Width()
	r.advance(StageSchemaResolved)

	r.emit(Progress{Phase: PhaseReading, Message: "Reading CSV..."})
	text, err := readSource(abs, r.p.opts.Encoding)
	if err != nil {
		return err
	}

	r.emit(Progress{Phase: PhaseParsing, Message: "Parsing CSV..."})
	doc := csvparse.Parse(text)
	if r.req.HasHeader && len(doc) > 0 {
		doc = doc[1:]
	}
	doc = csvparse.DropBlankRows(doc)
	r.out.RowsParsed = len(doc)
	r.advance(StageParsed)
	r.emit(Progress{Phase: PhaseParsed, RowsParsed: intPtr(len(doc))})

	rows, err := Normalize(doc, schema)
	if err != nil {
		return err
	}
	r.advance(StageValidated)

	batches := MakeBatches(rows, r.p.opts.BatchSize)
	r.advance(StageInserting)
	r.emit(Progress{Phase: PhaseInserting, RowsParsed: intPtr(len(rows)), RowsInserted: intPtr(0)})
	r.logger.Debug("inserting", "rows", len(rows), "batches", len(batches), "columns", schema.Width())

	inserted, err := insertBatches(ctx, r.p.db, schema, batches, r.logger,
		func(b Batch, total int, elapsed time.Duration, err error) {
			r.p.opts.Observer.BatchInserted(schema.Table, len(b.Rows), elapsed, err)
			if err == nil {
				r.out.RowsInserted = total
				r.emit(Progress{Phase: PhaseInserting, RowsParsed: intPtr(len(rows)), RowsInserted: intPtr(total)})
			}
		})
	r.out.RowsInserted = inserted
	if err != nil {
		return err
	}

	r.advance(StagePatching)
	r.emit(Progress{Phase: PhasePatching, Message: "Running merge/patch procedures..."})
	ran, err := r.p.merger.Run(ctx, mergeHooks{
		start: func(step MergeStep) {
			r.emit(Progress{Phase: PhasePatching, Message: step.Label})
		},
		finish: func(step MergeStep, elapsed time.Duration, err error) {
			r.p.opts.Observer.MergeStepFinished(step.Name, elapsed, err)
			if err != nil {
				r.logger.Error("merge step failed", "step", step.Name, "error", err)
				return
			}
			r.logger.Debug("merge step finished", "step", step.Name, "duration_ms", elapsed.Milliseconds())
		},
	})
	r.out.StepsRun = ran
	return err
}

func (r *run) succeed() {
	r.advance(StageDone)
	r.out.OK = true
	r.out.Stage = StageDone
	r.out.Message = fmt.Sprintf("Inserted %d row(s) into %s. Patched person/household tables successfully.",
		r.out.RowsInserted, r.out.Table)
	r.emit(r.out.Progress())
	r.logger.Info("import finished",
		"rows_parsed", r.out.RowsParsed,
		"rows_inserted", r.out.RowsInserted,
		"columns", r.out.ColumnsUsed,
	)
}

func (r *run) fail(err error) {
	if r.sm.cur.Terminal() {
		// A panic after success was recorded; keep the recorded outcome.
		return
	}
	r.advance(StageFailed)
	r.out.OK = false
	r.out.Stage = r.sm.last
	r.out.Err = err
	r.out.Message = failureMessage(err, r.sm.last, r.out.RowsInserted)
	r.emit(r.out.Progress())

	level := slog.LevelWarn
	var ie *Error
	if !errors.As(err, &ie) || ie.Kind == ErrInsertFailure || ie.Kind == ErrMergeFailure {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "import failed",
		"stage", r.sm.last.String(),
		"rows_parsed", r.out.RowsParsed,
		"rows_inserted", r.out.RowsInserted,
		"code", MapError(err).Code,
		"error", err,
	)
}

// failureMessage always says whether the store was touched, since nothing is
// rolled back.
func failureMessage(err error, reached Stage, inserted int) string {
	var note string
	if inserted == 0 {
		note = "No rows were inserted."
	} else {
		note = fmt.Sprintf("%d row(s) were inserted before this error and were not rolled back.", inserted)
	}

	msg := strings.TrimSpace(err.Error())
	if reached >= StageInserting {
		msg = "Append/patch failed: " + msg
	}
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg + " " + note
}

func (r *run) advance(to Stage) {
	if err := r.sm.advance(to); err != nil {
		r.logger.Error("stage transition rejected", "error", err)
	}
}

func (r *run) emit(p Progress) {
	if err := r.rep.Emit(p); err != nil {
		r.logger.Error("progress event rejected", "phase", p.Phase, "error", err)
		return
	}
	r.logger.Debug("progress", "phase", p.Phase, "message", p.Message)
}
