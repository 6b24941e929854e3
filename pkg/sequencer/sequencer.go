package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/events"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/math"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/telemetry"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/chaosgate/chaosgate-go/pkg/utils/retry"
	"github.com/chaosgate/chaosgate-go/pkg/validate"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// clearTimeout bounds the cleanup of one fault, cleanup runs on a detached
// context so a cancelled run never skips it
const clearTimeout = 30 * time.Second

// Sequencer drives the ordered (or bounded-concurrent) execution of the plan's
// scenarios, one outcome per scenario, isolating failures so one scenario's
// fault never aborts the run
type Sequencer struct {
	details   types.RunDetails
	plan      types.Plan
	registry  *target.Registry
	recorder  *events.Recorder
	clock     clock.Clock
	validator *validate.Validator

	inject injectFunc
	clear  clearFunc
}

// New builds a sequencer for one run
func New(details types.RunDetails, plan types.Plan, registry *target.Registry, recorder *events.Recorder, c clock.Clock) *Sequencer {
	return &Sequencer{
		details:   details,
		plan:      plan,
		registry:  registry,
		recorder:  recorder,
		clock:     c,
		validator: validate.New(c),
		inject:    injectScenario,
		clear:     clearScenario,
	}
}

// Run executes every scenario of the plan and returns the outcomes in plan
// order. The returned error is non-nil only for pre-run setup failures, in
// which case no scenario has executed.
func (s *Sequencer) Run(ctx context.Context) ([]types.ScenarioOutcome, error) {

	log.Info("[Status]: Verify that the targets under test are reachable (preflight)")
	if err := s.preflight(ctx); err != nil {
		return nil, stacktrace.Propagate(err, "preflight checks failed")
	}

	workers := math.Maximum(1, s.details.MaxParallel)
	log.InfoWithValues("[Run]: Starting the scenario sequence", logrus.Fields{
		"RunID":     s.details.RunID,
		"Scenarios": len(s.plan.Scenarios),
		"Workers":   workers,
	})

	outcomes := make([]types.ScenarioOutcome, len(s.plan.Scenarios))
	group := new(errgroup.Group)
	group.SetLimit(workers)

	for index, spec := range s.plan.Scenarios {
		index, spec := index, spec
		group.Go(func() error {
			// outcomes are recorded, never propagated as errors
			outcomes[index] = s.executeScenario(ctx, spec)
			return nil
		})
	}
	_ = group.Wait()

	s.recorder.Record(types.Summary, "", "executed %d scenarios", len(outcomes))
	return outcomes, nil
}

// preflight requires every target of the plan to answer its health probe
// within the preflight budget, otherwise the run aborts before any scenario
func (s *Sequencer) preflight(ctx context.Context) error {
	delay := math.Maximum(1, s.details.Delay)
	attempts := uint(math.Maximum(1, s.details.PreflightTimeout/delay))

	for _, handle := range s.registry.All() {
		handle := handle
		err := retry.
			Times(attempts).
			Wait(clock.Seconds(delay)).
			Clock(s.clock).
			Try(func(attempt uint) error {
				if !handle.ProbeHealth(ctx) {
					return cerrors.Error{ErrorCode: cerrors.ErrorTypeHealthChecks, Phase: types.PreflightCheck, Target: handle.Name(), Reason: "health endpoint is not answering"}
				}
				return nil
			})
		if err != nil {
			return err
		}
		s.recorder.Record(types.PreflightCheck, "", "target %s is healthy", handle.Name())
	}
	return nil
}

// executeScenario runs one scenario inside its own fault boundary, any
// internal fault is downgraded to an Error outcome and the run proceeds
func (s *Sequencer) executeScenario(ctx context.Context, spec types.ScenarioSpec) (outcome types.ScenarioOutcome) {

	outcome = types.ScenarioOutcome{
		ScenarioID: spec.ID,
		Kind:       spec.Kind,
		StartedAt:  s.clock.Now(),
		Threshold:  spec.Threshold(),
	}
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = types.StatusError
			outcome.Detail = fmt.Sprintf("internal fault while running the scenario, %v", r)
			log.Errorf("Scenario %v hit an internal fault, %v", spec.ID, r)
		}
		outcome.EndedAt = s.clock.Now()
	}()

	if ctx.Err() != nil {
		outcome.Status = types.StatusError
		outcome.Detail = "run cancelled before the scenario started"
		return
	}

	ctx, span := telemetry.Tracer().Start(ctx, "scenario/"+spec.ID)
	defer span.End()

	handles, err := s.registry.Handles(spec.Targets)
	if err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		outcome.Status = types.StatusError
		outcome.Detail = reason
		return
	}

	// at most one in-flight fault per target
	release := s.registry.Lock(spec.Targets)
	defer release()

	s.recorder.Record(types.ChaosInject, spec.ID, "injecting %s fault on %v", spec.Kind, spec.Targets)
	fault, injectErr := s.inject(ctx, spec, handles, s.clock)

	var clearOnce sync.Once
	clearFault := func() {
		if fault == nil {
			return
		}
		clearOnce.Do(func() {
			clearCtx, cancel := context.WithTimeout(context.Background(), clearTimeout)
			defer cancel()
			s.recorder.Record(types.ChaosClear, spec.ID, "lifting %s fault on %v", spec.Kind, spec.Targets)
			if err := s.clear(clearCtx, fault, handles); err != nil {
				log.Errorf("Unable to clear the fault of scenario %v, %v", spec.ID, err)
			}
		})
	}
	defer clearFault()

	if injectErr != nil {
		reason, code := cerrors.GetRootCauseAndErrorCode(injectErr)
		outcome.Status = types.StatusError
		outcome.Detail = fmt.Sprintf("injection failed (%s), %s", code, reason)
		return
	}

	if fault.WindowSeconds > 0 {
		log.Infof("[Wait]: Holding the %v fault for the %vs window", spec.Kind, fault.WindowSeconds)
		s.clock.Sleep(clock.Seconds(fault.WindowSeconds))
	}

	// the fault must be lifted before recovery is judged
	clearFault()

	s.recorder.Record(types.RecoveryCheck, spec.ID, "validating recovery of %v", spec.Targets)
	result := s.validateScenario(ctx, spec, handles)
	outcome.Status = result.Status
	outcome.ObservedMetric = result.Observed
	outcome.Detail = result.Detail

	log.InfoWithValues("[Result]: Scenario finished", logrus.Fields{
		"Scenario": spec.ID,
		"Status":   outcome.Status,
		"Observed": outcome.ObservedMetric,
	})
	return
}
