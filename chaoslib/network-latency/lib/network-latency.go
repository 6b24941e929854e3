package lib

import (
	"context"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// ThrottleKind is the control-channel fault kind for path latency
const ThrottleKind = "latency"

//Inject delays the network path of the targets for the fault window, the
// magnitude is the injected delay in milliseconds
func Inject(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {

	if len(handles) < 2 {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: spec.ID, Reason: "latency scenario requires two targets forming a path"}
	}

	latencyMs := spec.FloatParam("latencyMs", 1000)
	window := spec.IntParam("windowSeconds", 30)

	log.InfoWithValues("[Chaos]: Injecting latency on the path between targets", logrus.Fields{
		"Scenario":  spec.ID,
		"Targets":   spec.Targets,
		"LatencyMs": latencyMs,
		"Window":    window,
	})

	fault := &types.FaultHandle{
		ScenarioID:    spec.ID,
		Kind:          spec.Kind,
		Targets:       spec.Targets,
		WindowSeconds: window,
		InjectedAt:    c.Now(),
	}

	for _, handle := range handles {
		if err := handle.Throttle(ctx, ThrottleKind, latencyMs, window); err != nil {
			fault.Partial = true
			return fault, stacktrace.Propagate(err, "unable to inject latency on target '%s'", handle.Name())
		}
	}

	return fault, nil
}

//Clear removes the injected delay, magnitude zero lifts the fault
func Clear(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
	var firstErr error
	for _, handle := range handles {
		if err := handle.Throttle(ctx, ThrottleKind, 0, 0); err != nil {
			log.Errorf("Unable to remove latency from target %v, %v", handle.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
