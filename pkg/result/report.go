package result

import (
	"encoding/json"
	"os"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/kyokomi/emoji"
	"github.com/sirupsen/logrus"
)

//WriteReport persists the resilience report as the run's audit artifact
func WriteReport(report types.ResilienceReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "unable to encode the report, " + err.Error()}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "unable to write the report artifact, " + err.Error()}
	}
	log.Infof("[Result]: The resilience report has been written to %v", path)
	return nil
}

//Summary logs the per-scenario outcomes and the final verdict
func Summary(report types.ResilienceReport) {
	for _, outcome := range report.Scenarios {
		log.InfoWithValues("[Summary]: Scenario outcome", logrus.Fields{
			"Scenario":  outcome.ScenarioID,
			"Kind":      outcome.Kind,
			"Status":    outcome.Status,
			"Observed":  outcome.ObservedMetric,
			"Threshold": outcome.Threshold,
		})
	}

	verdict := string(report.Overall) + emoji.Sprint(" :thumbsup:")
	if report.Overall != types.VerdictPass {
		verdict = string(report.Overall) + emoji.Sprint(" :thumbsdown:")
	}
	log.InfoWithValues("[Summary]: The run verdict and gate decision", logrus.Fields{
		"RunID":          report.RunID,
		"Commit":         report.Commit,
		"Verdict":        verdict,
		"DeploymentGate": report.DeploymentGate,
	})
}
