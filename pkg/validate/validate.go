package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/probe/comparator"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/chaosgate/chaosgate-go/pkg/utils/retry"
)

// HealthProber is the health signal of one target
type HealthProber interface {
	Name() string
	ProbeHealth(ctx context.Context) bool
}

// MetricSource is the metric signal of one target
type MetricSource interface {
	Name() string
	QueryMetric(ctx context.Context, expr string) (float64, bool, error)
}

// Result carries the validator's judgement for one scenario
type Result struct {
	Status   types.ScenarioStatus
	Observed float64
	Detail   string
}

// Validator decides recovery PASS/FAIL against a threshold within a bounded
// time budget, driven by an injectable clock
type Validator struct {
	Clock    clock.Clock
	Interval time.Duration
}

// New returns a validator polling at the default 1s interval
func New(c clock.Clock) *Validator {
	return &Validator{Clock: c, Interval: time.Second}
}

// Health polls the target's health endpoint up to maxWaitSeconds, the first
// success is a PASS with the elapsed seconds as observed metric. Transport
// failures during polling are "not yet recovered", never an error.
func (v *Validator) Health(ctx context.Context, prober HealthProber, maxWaitSeconds int) Result {
	if prober == nil {
		return Result{Status: types.StatusError, Detail: "no health probe target"}
	}
	if maxWaitSeconds <= 0 {
		return Result{Status: types.StatusError, Detail: cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: prober.Name(), Reason: "recovery budget must be positive"}.Error()}
	}

	start := v.Clock.Now()
	deadline := start.Add(time.Duration(maxWaitSeconds) * time.Second)

	for v.Clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return Result{Status: types.StatusError, Observed: v.Clock.Now().Sub(start).Seconds(), Detail: "validation cancelled"}
		}
		if prober.ProbeHealth(ctx) {
			elapsed := v.Clock.Now().Sub(start).Seconds()
			log.Infof("[Recovery]: Target %v reported healthy after %vs", prober.Name(), elapsed)
			return Result{Status: types.StatusPass, Observed: elapsed, Detail: fmt.Sprintf("recovered after %.0fs", elapsed)}
		}
		v.Clock.Sleep(v.Interval)
	}

	return Result{
		Status:   types.StatusFail,
		Observed: float64(maxWaitSeconds),
		Detail:   fmt.Sprintf("never observed healthy within %ds", maxWaitSeconds),
	}
}

// MetricOptions bound the sampling retries of metric-based validation
type MetricOptions struct {
	Retries  int
	Wait     time.Duration
	Criteria string
}

// Metric samples the named metric with a bounded retry while it is
// unavailable and compares it against the threshold. A sample still missing
// after all retries is an ERROR, an observability gap rather than a
// resilience gap.
func (v *Validator) Metric(ctx context.Context, source MetricSource, expr string, threshold float64, opts MetricOptions) Result {
	if source == nil || expr == "" {
		return Result{Status: types.StatusError, Detail: "no metric source or expression"}
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.Criteria == "" {
		opts.Criteria = "<="
	}

	var observed float64
	err := retry.
		Times(uint(opts.Retries)).
		Wait(opts.Wait).
		Clock(v.Clock).
		Try(func(attempt uint) error {
			value, ok, err := source.QueryMetric(ctx, expr)
			if err != nil {
				log.Warnf("[Recovery]: Metric query attempt %v failed, %v", attempt, err)
				return err
			}
			if !ok {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeMetricQuery, Target: source.Name(), Reason: fmt.Sprintf("metric '%s' unavailable", expr)}
			}
			observed = value
			return nil
		})
	if err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		return Result{Status: types.StatusError, Detail: fmt.Sprintf("metric '%s' missing after %d attempts, %s", expr, opts.Retries, reason)}
	}

	if err := comparator.
		FirstValue(observed).
		SecondValue(threshold).
		Criteria(opts.Criteria).
		Source(source.Name()).
		CompareFloat(cerrors.ErrorTypeMetricQuery); err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		return Result{Status: types.StatusFail, Observed: observed, Detail: reason}
	}

	return Result{Status: types.StatusPass, Observed: observed, Detail: fmt.Sprintf("observed %v within threshold %v", observed, threshold)}
}
