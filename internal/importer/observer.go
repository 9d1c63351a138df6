package importer

import "time"

// Observer receives timing and outcome data for metrics. Calls are made
// synchronously from the import goroutine and must not block.
type Observer interface {
	ImportStarted()
	BatchInserted(table string, rows int, elapsed time.Duration, err error)
	MergeStepFinished(step string, elapsed time.Duration, err error)
	ImportFinished(o Outcome)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ImportStarted()                                  {}
func (NopObserver) BatchInserted(string, int, time.Duration, error) {}
func (NopObserver) MergeStepFinished(string, time.Duration, error)  {}
func (NopObserver) ImportFinished(Outcome)                          {}
