package importer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestReporter_Order(t *testing.T) {
	tests := []struct {
		name    string
		phases  []Phase
		wantErr int // index of the first rejected Emit, -1 if none
	}{
		{
			name: "full run",
			phases: []Phase{PhaseLoading, PhaseReading, PhaseParsing, PhaseParsed,
				PhaseInserting, PhaseInserting, PhasePatching, PhasePatching, PhaseDone},
			wantErr: -1,
		},
		{
			name:    "error before loading",
			phases:  []Phase{PhaseError},
			wantErr: -1,
		},
		{
			name:    "error mid-run",
			phases:  []Phase{PhaseLoading, PhaseReading, PhaseError},
			wantErr: -1,
		},
		{
			name:    "must start with loading",
			phases:  []Phase{PhaseReading},
			wantErr: 0,
		},
		{
			name:    "skipping a phase",
			phases:  []Phase{PhaseLoading, PhaseParsing},
			wantErr: 1,
		},
		{
			name:    "going backwards",
			phases:  []Phase{PhaseLoading, PhaseReading, PhaseLoading},
			wantErr: 2,
		},
		{
			name:    "parsed does not repeat",
			phases:  []Phase{PhaseLoading, PhaseReading, PhaseParsing, PhaseParsed, PhaseParsed},
			wantErr: 4,
		},
		{
			name:    "done requires patching",
			phases:  []Phase{PhaseLoading, PhaseReading, PhaseParsing, PhaseParsed, PhaseInserting, PhaseDone},
			wantErr: 5,
		},
		{
			name:    "nothing after done",
			phases:  []Phase{PhaseLoading, PhaseReading, PhaseParsing, PhaseParsed, PhaseInserting, PhasePatching, PhaseDone, PhaseError},
			wantErr: 7,
		},
		{
			name:    "unknown phase",
			phases:  []Phase{"bogus"},
			wantErr: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := NewReporter(nil)
			got := -1
			for i, p := range tt.phases {
				if err := rep.Emit(Progress{Phase: p}); err != nil {
					got = i
					break
				}
			}
			if got != tt.wantErr {
				t.Errorf("first rejected emit = %d, want %d", got, tt.wantErr)
			}
		})
	}
}

func TestReporter_ClosedAfterTerminal(t *testing.T) {
	rep := NewReporter(nil)
	_ = rep.Emit(Progress{Phase: PhaseError})
	if err := rep.Emit(Progress{Phase: PhaseError}); !errors.Is(err, ErrReporterClosed) {
		t.Errorf("Emit after terminal = %v, want ErrReporterClosed", err)
	}
	if !finished(rep) {
		t.Error("stream not finished after terminal event")
	}
}

func emitRun(t *testing.T, rep *Reporter) {
	t.Helper()
	for _, p := range []Phase{PhaseLoading, PhaseReading, PhaseParsing, PhaseParsed,
		PhaseInserting, PhasePatching, PhaseDone} {
		if err := rep.Emit(Progress{Phase: p}); err != nil {
			t.Fatalf("Emit(%s): %v", p, err)
		}
	}
}

func collect(ch <-chan Progress) []Phase {
	var out []Phase
	for p := range ch {
		out = append(out, p.Phase)
	}
	return out
}

func TestReporter_LateSubscriberReplays(t *testing.T) {
	rep := NewReporter(nil)
	emitRun(t, rep)

	got := collect(rep.Subscribe(context.Background()))
	if !reflect.DeepEqual(got, phases(recorded(rep))) {
		t.Errorf("replay = %v, want %v", got, phases(recorded(rep)))
	}
}

func TestReporter_SubscribeAfter(t *testing.T) {
	rep := NewReporter(nil)
	emitRun(t, rep)

	got := collect(rep.SubscribeAfter(context.Background(), 5))
	want := []Phase{PhasePatching, PhaseDone}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resumed = %v, want %v", got, want)
	}

	if got := collect(rep.SubscribeAfter(context.Background(), 100)); len(got) != 0 {
		t.Errorf("resume past end = %v, want nothing", got)
	}
}

func TestReporter_LiveSubscribersSeeOrder(t *testing.T) {
	rep := NewReporter(nil)

	const subs = 4
	results := make([][]Phase, subs)
	var wg sync.WaitGroup
	for i := 0; i < subs; i++ {
		ch := rep.Subscribe(context.Background())
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = collect(ch)
		}(i)
	}

	emitRun(t, rep)
	wg.Wait()

	want := phases(recorded(rep))
	for i, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("subscriber %d saw %v, want %v", i, got, want)
		}
	}
}

func TestReporter_SlowSubscriberDoesNotBlockEmit(t *testing.T) {
	rep := NewReporter(nil)
	_ = rep.Subscribe(context.Background()) // never read

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rep.Emit(Progress{Phase: PhaseLoading})
		_ = rep.Emit(Progress{Phase: PhaseReading})
		_ = rep.Emit(Progress{Phase: PhaseParsing})
		_ = rep.Emit(Progress{Phase: PhaseParsed})
		for i := 0; i < 100; i++ {
			_ = rep.Emit(Progress{Phase: PhaseInserting})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on an unread subscriber")
	}
}

func TestReporter_SubscriberCancel(t *testing.T) {
	rep := NewReporter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := rep.Subscribe(ctx)
	_ = rep.Emit(Progress{Phase: PhaseLoading})
	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A buffered event may still arrive; the channel must close after it.
			for range ch {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
