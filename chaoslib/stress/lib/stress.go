package lib

import (
	"context"
	"fmt"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// throttleKind maps the spike kind onto the control-channel fault kind
func throttleKind(kind types.ScenarioKind) (string, error) {
	switch kind {
	case types.KindCPUSpike:
		return "cpu", nil
	case types.KindMemorySpike:
		return "memory", nil
	}
	return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: fmt.Sprintf("'%s' is not a resource spike kind", kind)}
}

//Inject drives the targets' cpu or memory consumption to the requested
// saturation level for the fault window
func Inject(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {

	resource, err := throttleKind(spec.Kind)
	if err != nil {
		return nil, err
	}

	saturation := spec.FloatParam("saturationPercent", 80)
	window := spec.IntParam("windowSeconds", 30)

	log.InfoWithValues("[Chaos]: Saturating target resources", logrus.Fields{
		"Scenario":   spec.ID,
		"Targets":    spec.Targets,
		"Resource":   resource,
		"Saturation": saturation,
		"Window":     window,
	})

	fault := &types.FaultHandle{
		ScenarioID:    spec.ID,
		Kind:          spec.Kind,
		Targets:       spec.Targets,
		WindowSeconds: window,
		InjectedAt:    c.Now(),
	}

	for _, handle := range handles {
		if err := handle.Throttle(ctx, resource, saturation, window); err != nil {
			fault.Partial = true
			return fault, stacktrace.Propagate(err, "unable to saturate %s on target '%s'", resource, handle.Name())
		}
	}

	return fault, nil
}

//Clear releases the resource pressure, magnitude zero lifts the fault
func Clear(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
	resource, err := throttleKind(fault.Kind)
	if err != nil {
		return err
	}

	var firstErr error
	for _, handle := range handles {
		if err := handle.Throttle(ctx, resource, 0, 0); err != nil {
			log.Errorf("Unable to release %s pressure on target %v, %v", resource, handle.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
