package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// fakeStore is an in-memory Target that records every call.
type fakeStore struct {
	mu sync.Mutex

	columns    map[string][]store.Column
	columnsErr error
	routines   map[string]bool
	tables     []string

	failBatch  int // 1-based insert call to fail; 0 never fails
	batchErr   error
	panicOnIns bool
	callErrs   map[string]error

	inserts    [][][]store.Cell
	insertCols [][]string
	calls      []string
}

func newFakeStore(table string, cols ...string) *fakeStore {
	fs := &fakeStore{
		columns:  map[string][]store.Column{},
		routines: map[string]bool{},
		callErrs: map[string]error{},
	}
	for _, c := range cols {
		fs.columns[table] = append(fs.columns[table], store.Column{Name: c})
	}
	for _, step := range DefaultMergeSteps() {
		fs.routines[step.Name] = true
	}
	return fs
}

func (f *fakeStore) Columns(_ context.Context, table string) ([]store.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	return f.columns[table], nil
}

func (f *fakeStore) RoutineExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routines[name], nil
}

func (f *fakeStore) ListTables(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tables...), nil
}

func (f *fakeStore) InsertRows(_ context.Context, _ string, columns []string, rows [][]store.Cell) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnIns {
		panic("driver exploded")
	}
	if f.failBatch > 0 && len(f.inserts)+1 == f.failBatch {
		err := f.batchErr
		if err == nil {
			err = errors.New("Error 1406: Data too long for column 'zip'")
		}
		// Record the attempt so tests can see it was made.
		f.inserts = append(f.inserts, nil)
		return 0, err
	}
	f.inserts = append(f.inserts, rows)
	f.insertCols = append(f.insertCols, columns)
	return int64(len(rows)), nil
}

func (f *fakeStore) CallRoutine(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.callErrs[name]
}

// committed returns the rows of every successful insert call.
func (f *fakeStore) committed() [][]store.Cell {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]store.Cell
	for _, b := range f.inserts {
		out = append(out, b...)
	}
	return out
}

func (f *fakeStore) insertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts)
}

func (f *fakeStore) routineCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func stepNames(steps []MergeStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func phases(events []Progress) []Phase {
	out := make([]Phase, len(events))
	for i, e := range events {
		out[i] = e.Phase
	}
	return out
}

// recorded returns a copy of every event emitted on rep so far.
func recorded(rep *Reporter) []Progress {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	return append([]Progress(nil), rep.events...)
}

// finished reports whether rep has emitted its terminal event.
func finished(rep *Reporter) bool {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	return rep.done
}
