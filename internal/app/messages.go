package app

import (
	"fmt"
	"time"

	"github.com/brensch/zipfetch/internal/orchestrator"
)

// TaskStartedMsg marks a source as picked up by a worker.
type TaskStartedMsg struct {
	Source string
	At     time.Time
}

// TaskFinishedMsg carries a source's outcome.
type TaskFinishedMsg struct {
	Outcome orchestrator.Outcome
	Elapsed time.Duration
}

// RunFinishedMsg signals that every task has reported.
type RunFinishedMsg struct {
	Results orchestrator.Results
	Err     error
}

func NewTaskStarted(source string) TaskStartedMsg {
	return TaskStartedMsg{Source: source, At: time.Now()}
}

func NewTaskFinished(out orchestrator.Outcome, elapsed time.Duration) TaskFinishedMsg {
	return TaskFinishedMsg{Outcome: out, Elapsed: elapsed}
}

func (t TaskStartedMsg) String() string { return fmt.Sprintf("TaskStarted %s", t.Source) }
func (t TaskFinishedMsg) String() string {
	return fmt.Sprintf("TaskFinished %s ok=%t", t.Outcome.Source, t.Outcome.OK())
}
func (r RunFinishedMsg) String() string { return fmt.Sprintf("RunFinished %d results", len(r.Results)) }
