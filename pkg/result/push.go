package result

import (
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushRunMetrics publishes the run's outcome counters to a prometheus
// pushgateway so CI runs show up on dashboards, the engine itself is not a
// long-lived server
func PushRunMetrics(report types.ResilienceReport, gatewayURL string) error {

	registry := prometheus.NewRegistry()

	scenarios := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chaosgate_scenarios_total",
		Help: "Number of scenarios of the run by status",
	}, []string{"status"})
	gateOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chaosgate_gate_open",
		Help: "1 when the deployment gate is open, 0 otherwise",
	})
	registry.MustRegister(scenarios, gateOpen)

	for _, status := range []types.ScenarioStatus{types.StatusPass, types.StatusFail, types.StatusError} {
		scenarios.WithLabelValues(string(status)).Set(0)
	}
	for _, outcome := range report.Scenarios {
		scenarios.WithLabelValues(string(outcome.Status)).Inc()
	}
	if report.DeploymentGate == types.GateOpen {
		gateOpen.Set(1)
	}

	err := push.New(gatewayURL, "chaosgate_run").
		Gatherer(registry).
		Grouping("run_id", report.RunID).
		Grouping("commit", report.Commit).
		Push()
	if err != nil {
		return errors.Errorf("unable to push the run metrics to %v, err: %v", gatewayURL, err)
	}
	log.Infof("[Result]: Run metrics pushed to %v", gatewayURL)
	return nil
}
