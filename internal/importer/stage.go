package importer

import "fmt"

// Stage is a state of the import state machine.
//
//	Idle -> SchemaResolved -> Parsed -> Validated -> Inserting -> Patching -> Done
//
// Failed is reachable from every non-terminal stage. Done and Failed are
// terminal.
type Stage int

const (
	StageIdle Stage = iota
	StageSchemaResolved
	StageParsed
	StageValidated
	StageInserting
	StagePatching
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageIdle:           "idle",
	StageSchemaResolved: "schema_resolved",
	StageParsed:         "parsed",
	StageValidated:      "validated",
	StageInserting:      "inserting",
	StagePatching:       "patching",
	StageDone:           "done",
	StageFailed:         "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether s is Done or Failed.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// reached reports whether a run whose last stage is s got at least as far as
// target.
func (s Stage) reached(target Stage) bool {
	return s != StageFailed && s >= target
}

// stageMachine validates transitions. It remembers the last live stage so a
// failed run can report where it stopped.
type stageMachine struct {
	cur  Stage
	last Stage
}

func (m *stageMachine) advance(to Stage) error {
	if m.cur.Terminal() {
		return fmt.Errorf("importer: transition %s -> %s from terminal stage", m.cur, to)
	}
	if to == StageFailed || to == m.cur+1 {
		if to != StageFailed {
			m.last = to
		}
		m.cur = to
		return nil
	}
	return fmt.Errorf("importer: illegal transition %s -> %s", m.cur, to)
}
