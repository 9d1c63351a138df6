package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrReporterClosed is returned by Emit after a terminal event.
var ErrReporterClosed = errors.New("importer: progress stream already finished")

var phaseRank = map[Phase]int{
	PhaseLoading:   1,
	PhaseReading:   2,
	PhaseParsing:   3,
	PhaseParsed:    4,
	PhaseInserting: 5,
	PhasePatching:  6,
	PhaseDone:      7,
	PhaseError:     7,
}

// Reporter is the progress stream of one import. Events are kept in an
// append-only log, so subscribers that attach late still see the stream from
// the beginning. Emit never waits on a subscriber.
type Reporter struct {
	hook func(Progress)

	mu      sync.Mutex
	events  []Progress
	done    bool
	changed chan struct{} // closed and replaced on every Emit
}

// NewReporter returns an empty stream. hook, if non-nil, is called
// synchronously with every accepted event.
func NewReporter(hook func(Progress)) *Reporter {
	return &Reporter{
		hook:    hook,
		changed: make(chan struct{}),
	}
}

// Emit appends p to the stream. Phases must follow the run order: only
// inserting and patching repeat, error may follow any non-terminal phase, and
// nothing follows done or error.
func (r *Reporter) Emit(p Progress) error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return ErrReporterClosed
	}
	if err := r.checkOrder(p.Phase); err != nil {
		r.mu.Unlock()
		return err
	}
	p.Seq = len(r.events) + 1
	r.events = append(r.events, p)
	r.done = p.Phase.Terminal()
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	if r.hook != nil {
		r.hook(p)
	}
	return nil
}

func (r *Reporter) checkOrder(next Phase) error {
	rank, ok := phaseRank[next]
	if !ok {
		return fmt.Errorf("importer: unknown phase %q", next)
	}
	if next == PhaseError {
		return nil
	}
	if len(r.events) == 0 {
		if next != PhaseLoading {
			return fmt.Errorf("importer: stream must start with %s, got %s", PhaseLoading, next)
		}
		return nil
	}
	prev := r.events[len(r.events)-1].Phase
	if next == prev && (next == PhaseInserting || next == PhasePatching) {
		return nil
	}
	if rank != phaseRank[prev]+1 {
		return fmt.Errorf("importer: phase %s may not follow %s", next, prev)
	}
	return nil
}

// Subscribe returns a channel that replays every event so far and then
// follows the stream. The channel is closed after the terminal event or when
// ctx is done.
func (r *Reporter) Subscribe(ctx context.Context) <-chan Progress {
	return r.SubscribeAfter(ctx, 0)
}

// SubscribeAfter is Subscribe without replaying events whose Seq is at most
// seq. It backs SSE resumption via Last-Event-ID.
func (r *Reporter) SubscribeAfter(ctx context.Context, seq int) <-chan Progress {
	ch := make(chan Progress, 16)
	go func() {
		defer close(ch)
		next := max(seq, 0)
		for {
			r.mu.Lock()
			pending := r.events[min(next, len(r.events)):]
			done := r.done
			changed := r.changed
			r.mu.Unlock()

			for _, ev := range pending {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			next += len(pending)

			if done {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Last returns the most recent event, or false if none was emitted.
func (r *Reporter) Last() (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Progress{}, false
	}
	return r.events[len(r.events)-1], true
}
