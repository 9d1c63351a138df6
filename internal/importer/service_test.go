package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// gatedStore blocks every InsertRows until release is closed.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(table string, cols ...string) *gatedStore {
	return &gatedStore{
		fakeStore: newFakeStore(table, cols...),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]store.Cell) (int64, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.fakeStore.InsertRows(ctx, table, columns, rows)
}

func TestService_StartAndResult(t *testing.T) {
	fs := newFakeStore("pantry_export", "a", "b")
	svc := NewService(NewPipeline(fs, Options{}), fs, NewLimiter(2), ServiceOptions{})

	id, err := svc.Start(context.Background(), Request{Table: "pantry_export", CSVPath: writeCSV(t, "1,2\n3,4\n")})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := svc.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if !out.OK || out.RowsInserted != 2 {
		t.Errorf("outcome = %+v", out)
	}

	ch, err := svc.Subscribe(ctx, id, 0)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	var last Progress
	for p := range ch {
		last = p
	}
	if last.Phase != PhaseDone {
		t.Errorf("last replayed phase = %s, want done", last.Phase)
	}

	p, ok, err := svc.Progress(id)
	if err != nil || !ok || p.Phase != PhaseDone {
		t.Errorf("Progress() = %+v, %v, %v", p, ok, err)
	}
}

func TestService_RejectsConcurrentImportIntoSameTable(t *testing.T) {
	gs := newGatedStore("pantry_export", "a")
	svc := NewService(NewPipeline(gs, Options{}), gs, NewLimiter(4), ServiceOptions{})
	path := writeCSV(t, "1\n")

	first, err := svc.Start(context.Background(), Request{Table: "pantry_export", CSVPath: path})
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	<-gs.entered

	if _, err := svc.Start(context.Background(), Request{Table: "pantry_export", CSVPath: path}); !errors.Is(err, ErrImportInProgress) {
		t.Errorf("second Start() error = %v, want ErrImportInProgress", err)
	}

	// Another table is fine.
	gs.mu.Lock()
	gs.columns["clinic_export"] = []store.Column{{Name: "a"}}
	gs.mu.Unlock()
	other, err := svc.Start(context.Background(), Request{Table: "clinic_export", CSVPath: path})
	if err != nil {
		t.Errorf("Start() on another table error = %v", err)
	}

	close(gs.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range []string{first, other} {
		if id == "" {
			continue
		}
		if _, err := svc.Result(ctx, id); err != nil {
			t.Errorf("Result(%s) error = %v", id, err)
		}
	}

	// Once finished, the table accepts a new import.
	if _, err := svc.Start(context.Background(), Request{Table: "pantry_export", CSVPath: path}); err != nil {
		t.Errorf("Start() after completion error = %v", err)
	}
	if err := svc.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestService_LimiterSaturated(t *testing.T) {
	gs := newGatedStore("a_export", "a")
	gs.columns["b_export"] = []store.Column{{Name: "a"}}
	svc := NewService(NewPipeline(gs, Options{}), gs, NewLimiter(1), ServiceOptions{})
	path := writeCSV(t, "1\n")

	if _, err := svc.Start(context.Background(), Request{Table: "a_export", CSVPath: path}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-gs.entered

	if _, err := svc.Start(context.Background(), Request{Table: "b_export", CSVPath: path}); !errors.Is(err, ErrTooManyImports) {
		t.Errorf("Start() error = %v, want ErrTooManyImports", err)
	}
	if st := svc.LimiterStatus(); st.Active != 1 || st.Available != 0 {
		t.Errorf("LimiterStatus() = %+v", st)
	}

	close(gs.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestService_StartValidation(t *testing.T) {
	fs := newFakeStore("t_export", "a")
	svc := NewService(NewPipeline(fs, Options{}), fs, nil, ServiceOptions{})

	if _, err := svc.Start(context.Background(), Request{CSVPath: "/x.csv"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing table: %v", err)
	}
	if _, err := svc.Start(context.Background(), Request{Table: "t_export"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing csv: %v", err)
	}

	_, err := svc.Start(context.Background(), Request{Table: "person", CSVPath: "/etc/passwd"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("non-staging table: %v", err)
	}
	if err != nil && err.Error() != "Table person is not an import staging table." {
		t.Errorf("non-staging table message = %q", err.Error())
	}
	if fs.insertCalls() != 0 {
		t.Error("rejected request touched the store")
	}

	unconfigured := NewService(NewPipeline(nil, Options{}), nil, nil, ServiceOptions{})
	if _, err := unconfigured.Start(context.Background(), Request{Table: "t", CSVPath: "/x.csv"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured Start: %v", err)
	}
	if _, err := unconfigured.ListTables(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured ListTables: %v", err)
	}
}

func TestService_CustomTableSuffix(t *testing.T) {
	fs := newFakeStore("pantry_staging", "a")
	svc := NewService(NewPipeline(fs, Options{}), fs, nil, ServiceOptions{TableSuffix: "_staging"})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Wait(ctx)
	})

	if _, err := svc.Start(context.Background(), Request{Table: "pantry_export", CSVPath: "/x.csv"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("default suffix under custom option: %v", err)
	}
	if _, err := svc.Start(context.Background(), Request{Table: "pantry_staging", CSVPath: writeCSV(t, "1\n")}); err != nil {
		t.Errorf("custom suffix rejected: %v", err)
	}
}

func TestService_UnknownImport(t *testing.T) {
	fs := newFakeStore("t_export", "a")
	svc := NewService(NewPipeline(fs, Options{}), fs, nil, ServiceOptions{})

	if _, err := svc.Result(context.Background(), "nope"); !errors.Is(err, ErrImportNotFound) {
		t.Errorf("Result: %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), "nope", 0); !errors.Is(err, ErrImportNotFound) {
		t.Errorf("Subscribe: %v", err)
	}
	if _, _, err := svc.Progress("nope"); !errors.Is(err, ErrImportNotFound) {
		t.Errorf("Progress: %v", err)
	}
}

func TestService_ResultExpires(t *testing.T) {
	fs := newFakeStore("t_export", "a")
	svc := NewService(NewPipeline(fs, Options{}), fs, nil, ServiceOptions{ResultTTL: 20 * time.Millisecond})

	id, err := svc.Start(context.Background(), Request{Table: "t_export", CSVPath: writeCSV(t, "1\n")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Result(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, err := svc.Progress(id); errors.Is(err, ErrImportNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("import still tracked after TTL")
}

func TestService_ListTables(t *testing.T) {
	fs := newFakeStore("t_export", "a")
	fs.tables = []string{"clinic_export", "pantry_export"}
	svc := NewService(NewPipeline(fs, Options{}), fs, nil, ServiceOptions{})

	got, err := svc.ListTables(context.Background())
	if err != nil || len(got) != 2 {
		t.Errorf("ListTables() = %v, %v", got, err)
	}
}

func TestService_ImportOutlivesRequestContext(t *testing.T) {
	gs := newGatedStore("t_export", "a")
	svc := NewService(NewPipeline(gs, Options{}), gs, nil, ServiceOptions{})

	reqCtx, cancel := context.WithCancel(context.Background())
	id, err := svc.Start(reqCtx, Request{Table: "t_export", CSVPath: writeCSV(t, "1\n")})
	if err != nil {
		t.Fatal(err)
	}
	<-gs.entered
	cancel()
	close(gs.release)

	out, err := svc.Result(context.Background(), id)
	if err != nil || !out.OK {
		t.Errorf("Result() = %+v, %v", out, err)
	}
}
