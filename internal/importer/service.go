package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/exportappend/internal/logging"
	"github.com/JonMunkholm/exportappend/internal/store"
)

// DefaultResultTTL is how long a finished import stays queryable.
const DefaultResultTTL = 5 * time.Minute

// DefaultTableSuffix marks the staging tables that ListTables offers and
// Start accepts.
const DefaultTableSuffix = "_export"

// ServiceOptions tune a Service. Zero values select the defaults.
type ServiceOptions struct {
	TableSuffix string
	ResultTTL   time.Duration
}

// Service runs imports in the background for the HTTP API.
type Service struct {
	pipeline *Pipeline
	catalog  store.Catalog
	limiter  *Limiter
	opts     ServiceOptions

	mu      sync.RWMutex
	imports map[string]*activeImport
	busy    map[string]string // table -> running import ID
}

type activeImport struct {
	ID        string
	Request   Request
	StartedAt time.Time
	Reporter  *Reporter
	Done      chan struct{}
	Outcome   Outcome // valid once Done is closed
}

// NewService creates a Service. catalog may be nil when the database is not
// configured; Start then fails with ErrNotConfigured.
func NewService(p *Pipeline, catalog store.Catalog, limiter *Limiter, opts ServiceOptions) *Service {
	if opts.TableSuffix == "" {
		opts.TableSuffix = DefaultTableSuffix
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if limiter == nil {
		limiter = NewLimiter(DefaultMaxConcurrentImports)
	}
	return &Service{
		pipeline: p,
		catalog:  catalog,
		limiter:  limiter,
		opts:     opts,
		imports:  make(map[string]*activeImport),
		busy:     make(map[string]string),
	}
}

// Start validates req and launches the import in the background, returning
// its ID. Only tables carrying the staging suffix are accepted. It fails fast with ErrImportInProgress when an import into the same
// table is still running, and with ErrTooManyImports when every slot is taken.
// The import outlives ctx's cancellation but keeps its values.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	if s.catalog == nil {
		return "", &Error{Kind: ErrNotConfigured}
	}
	if strings.TrimSpace(req.Table) == "" {
		return "", &Error{Kind: ErrInvalidRequest, Field: "table"}
	}
	if strings.TrimSpace(req.CSVPath) == "" {
		return "", &Error{Kind: ErrInvalidRequest, Field: "csvPath"}
	}
	if !strings.HasSuffix(req.Table, s.opts.TableSuffix) {
		return "", &Error{Kind: ErrInvalidRequest, Field: "table", Table: req.Table}
	}

	s.mu.Lock()
	if running, ok := s.busy[req.Table]; ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w %s (import %s)", ErrImportInProgress, req.Table, running)
	}
	if !s.limiter.TryAcquire() {
		s.mu.Unlock()
		return "", ErrTooManyImports
	}

	imp := &activeImport{
		ID:        uuid.New().String(),
		Request:   req,
		StartedAt: time.Now(),
		Reporter:  NewReporter(nil),
		Done:      make(chan struct{}),
	}
	s.imports[imp.ID] = imp
	s.busy[req.Table] = imp.ID
	s.mu.Unlock()

	runCtx := logging.WithImportID(context.WithoutCancel(ctx), imp.ID)
	logging.FromContext(runCtx).Info("import started", "table", req.Table, "csv", req.CSVPath, "has_header", req.HasHeader)

	go func() {
		defer s.limiter.Release()
		defer func() {
			s.mu.Lock()
			delete(s.busy, req.Table)
			s.mu.Unlock()
			close(imp.Done)
			s.cleanup(imp.ID, s.opts.ResultTTL)
		}()
		imp.Outcome = s.pipeline.Run(runCtx, req, imp.Reporter)
	}()

	return imp.ID, nil
}

func (s *Service) get(id string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return imp, nil
}

// Subscribe streams the import's progress, skipping events up to and
// including afterSeq. The channel closes after the terminal event.
func (s *Service) Subscribe(ctx context.Context, id string, afterSeq int) (<-chan Progress, error) {
	imp, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return imp.Reporter.SubscribeAfter(ctx, afterSeq), nil
}

// Result blocks until the import finishes or ctx is done.
func (s *Service) Result(ctx context.Context, id string) (Outcome, error) {
	imp, err := s.get(id)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case <-imp.Done:
		return imp.Outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Progress returns the latest event without blocking. ok is false when no
// event has been emitted yet.
func (s *Service) Progress(id string) (p Progress, ok bool, err error) {
	imp, err := s.get(id)
	if err != nil {
		return Progress{}, false, err
	}
	p, ok = imp.Reporter.Last()
	return p, ok, nil
}

// ListTables returns the staging tables imports may target.
func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	if s.catalog == nil {
		return nil, &Error{Kind: ErrNotConfigured}
	}
	return s.catalog.ListTables(ctx, s.opts.TableSuffix)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Wait blocks until every running import has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}
