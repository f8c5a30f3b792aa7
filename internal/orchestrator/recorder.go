package orchestrator

import (
	"context"
	"time"
)

// Recorder observes task progress. Methods are called from pool goroutines
// and must be safe for concurrent use.
type Recorder interface {
	TaskStarted(ctx context.Context, source string)
	TaskFinished(ctx context.Context, outcome Outcome, elapsed time.Duration)
}

// Recorders fans events out to every non-nil recorder.
func Recorders(recs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) TaskStarted(ctx context.Context, source string) {
	for _, r := range m {
		r.TaskStarted(ctx, source)
	}
}

func (m multiRecorder) TaskFinished(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	for _, r := range m {
		r.TaskFinished(ctx, outcome, elapsed)
	}
}
