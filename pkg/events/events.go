package events

import (
	"fmt"
	"sync"

	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// Recorder collects the audit timeline of one run, it is safe for use from
// concurrently executing scenarios
type Recorder struct {
	mu     sync.Mutex
	clock  clock.Clock
	events []types.RunEvent
}

// NewRecorder returns an empty recorder stamping events with the given clock
func NewRecorder(c clock.Clock) *Recorder {
	return &Recorder{clock: c}
}

// Record appends one event to the run timeline
func (r *Recorder) Record(stage, scenarioID, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.RunEvent{
		Time:       r.clock.Now(),
		Stage:      stage,
		ScenarioID: scenarioID,
		Message:    fmt.Sprintf(format, args...),
	})
}

// Events returns a copy of the timeline in record order
func (r *Recorder) Events() []types.RunEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.RunEvent, len(r.events))
	copy(out, r.events)
	return out
}
