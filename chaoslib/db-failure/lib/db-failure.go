package lib

import (
	"context"

	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// ThrottleKind is the control-channel fault kind for storage-path errors
const ThrottleKind = "db_failure"

//Inject induces data-layer errors/timeouts in the targets' storage path for
// the fault window, the magnitude is the share of failing calls in percent
func Inject(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {

	errorPercent := spec.FloatParam("errorPercent", 100)
	window := spec.IntParam("windowSeconds", 30)

	log.InfoWithValues("[Chaos]: Injecting storage-path failures", logrus.Fields{
		"Scenario":     spec.ID,
		"Targets":      spec.Targets,
		"ErrorPercent": errorPercent,
		"Window":       window,
	})

	fault := &types.FaultHandle{
		ScenarioID:    spec.ID,
		Kind:          spec.Kind,
		Targets:       spec.Targets,
		WindowSeconds: window,
		InjectedAt:    c.Now(),
	}

	for _, handle := range handles {
		if err := handle.Throttle(ctx, ThrottleKind, errorPercent, window); err != nil {
			fault.Partial = true
			return fault, stacktrace.Propagate(err, "unable to inject storage failures on target '%s'", handle.Name())
		}
	}

	return fault, nil
}

//Clear restores the storage path, magnitude zero lifts the fault
func Clear(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
	var firstErr error
	for _, handle := range handles {
		if err := handle.Throttle(ctx, ThrottleKind, 0, 0); err != nil {
			log.Errorf("Unable to restore the storage path of target %v, %v", handle.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
