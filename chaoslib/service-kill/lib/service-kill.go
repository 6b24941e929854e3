package lib

import (
	"context"
	"strconv"

	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

//Inject stops the target services, waits for the settle time and restarts
// them. Recovery is judged by the validator afterwards, not here.
func Inject(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {

	settleTime := spec.IntParam("settleSeconds", 5)
	fault := &types.FaultHandle{
		ScenarioID: spec.ID,
		Kind:       spec.Kind,
		Targets:    spec.Targets,
		InjectedAt: c.Now(),
	}

	log.InfoWithValues("[Chaos]: Killing the following services", logrus.Fields{
		"Scenario":   spec.ID,
		"Targets":    spec.Targets,
		"SettleTime": settleTime,
	})

	for _, handle := range handles {
		if err := handle.Stop(ctx); err != nil {
			fault.Partial = true
			return fault, stacktrace.Propagate(err, "unable to stop target '%s'", handle.Name())
		}
	}

	//Waiting for the settle time before the restart
	log.Infof("[Wait]: Waiting for the %vs settle time before restart", strconv.Itoa(settleTime))
	c.Sleep(clock.Seconds(settleTime))

	for _, handle := range handles {
		if err := handle.Start(ctx); err != nil {
			fault.Partial = true
			return fault, stacktrace.Propagate(err, "unable to restart target '%s'", handle.Name())
		}
	}

	return fault, nil
}

//Clear re-issues the start so a target is never left stopped, the control
// channel treats start of a running target as a no-op
func Clear(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
	var firstErr error
	for _, handle := range handles {
		if err := handle.Start(ctx); err != nil {
			log.Errorf("Unable to ensure target %v is running, %v", handle.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
