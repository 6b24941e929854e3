package sequencer

import (
	"context"
	"fmt"

	dbfailure "github.com/chaosgate/chaosgate-go/chaoslib/db-failure/lib"
	networklatency "github.com/chaosgate/chaosgate-go/chaoslib/network-latency/lib"
	servicekill "github.com/chaosgate/chaosgate-go/chaoslib/service-kill/lib"
	stress "github.com/chaosgate/chaosgate-go/chaoslib/stress/lib"
	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/chaosgate/chaosgate-go/pkg/validate"
)

type injectFunc func(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error)

type clearFunc func(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error

// injectScenario dispatches over the closed set of scenario kinds
func injectScenario(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {
	switch spec.Kind {
	case types.KindServiceKill:
		return servicekill.Inject(ctx, spec, handles, c)
	case types.KindNetworkLatency:
		return networklatency.Inject(ctx, spec, handles, c)
	case types.KindCPUSpike, types.KindMemorySpike:
		return stress.Inject(ctx, spec, handles, c)
	case types.KindDBFailure:
		return dbfailure.Inject(ctx, spec, handles, c)
	}
	return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: spec.ID, Reason: fmt.Sprintf("unknown scenario kind '%s'", spec.Kind)}
}

// clearScenario lifts the fault of one scenario, kinds map onto their lib
func clearScenario(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
	switch fault.Kind {
	case types.KindServiceKill:
		return servicekill.Clear(ctx, fault, handles)
	case types.KindNetworkLatency:
		return networklatency.Clear(ctx, fault, handles)
	case types.KindCPUSpike, types.KindMemorySpike:
		return stress.Clear(ctx, fault, handles)
	case types.KindDBFailure:
		return dbfailure.Clear(ctx, fault, handles)
	}
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: fault.ScenarioID, Reason: fmt.Sprintf("unknown scenario kind '%s'", fault.Kind)}
}

// statusRank orders statuses by severity so multi-target validation can keep
// the worst one
func statusRank(status types.ScenarioStatus) int {
	switch status {
	case types.StatusPass:
		return 0
	case types.StatusFail:
		return 1
	}
	return 2
}

// validateScenario judges recovery with the validation mode of the kind,
// health-based for kill and metric-based for the rest
func (s *Sequencer) validateScenario(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle) validate.Result {

	opts := validate.MetricOptions{
		Retries: s.details.MetricRetries,
		Wait:    clock.Seconds(s.details.MetricRetryWait),
	}

	switch spec.Kind {
	case types.KindServiceKill:
		// every killed target must come back, the worst result wins
		var worst validate.Result
		var slowest float64
		for _, handle := range handles {
			result := s.validator.Health(ctx, handle, spec.Thresholds.RecoverySeconds)
			if result.Observed > slowest {
				slowest = result.Observed
			}
			if worst.Status == "" || statusRank(result.Status) > statusRank(worst.Status) {
				worst = result
			}
		}
		worst.Observed = slowest
		return worst

	case types.KindNetworkLatency:
		expr := spec.Param("metric", fmt.Sprintf(`p99_latency_ms{service=%q}`, handles[0].Name()))
		return s.validator.Metric(ctx, handles[0], expr, spec.Thresholds.LatencyMs, opts)

	case types.KindCPUSpike, types.KindMemorySpike:
		expr := spec.Param("metric", fmt.Sprintf(`degradation_percent{service=%q}`, handles[0].Name()))
		return s.validator.Metric(ctx, handles[0], expr, spec.Thresholds.DegradationPercent, opts)

	case types.KindDBFailure:
		expr := spec.Param("metric", fmt.Sprintf(`error_rate{service=%q}`, handles[0].Name()))
		result := s.validator.Metric(ctx, handles[0], expr, spec.Thresholds.ErrorRate, opts)
		if result.Status == types.StatusFail {
			// an out-of-bounds error rate still passes when the fallback path held
			if fallback := spec.Param("fallbackMetric", ""); fallback != "" {
				fallbackOpts := opts
				fallbackOpts.Criteria = ">="
				fallbackResult := s.validator.Metric(ctx, handles[0], fallback, 1, fallbackOpts)
				if fallbackResult.Status == types.StatusPass {
					fallbackResult.Detail = "error rate above threshold but the fallback path executed successfully"
					return fallbackResult
				}
			}
		}
		return result
	}

	return validate.Result{Status: types.StatusError, Detail: fmt.Sprintf("no validation mode for kind '%s'", spec.Kind)}
}
