package aggregate

import (
	"github.com/chaosgate/chaosgate-go/pkg/gate"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// Reduce folds the outcomes of one run into the resilience report, a pure
// function with no I/O or retries. The report keeps execution order so runs
// replay deterministically for audit.
func Reduce(runID, commit string, outcomes []types.ScenarioOutcome, runEvents []types.RunEvent) types.ResilienceReport {

	overall := types.VerdictPass
	for _, outcome := range outcomes {
		if outcome.Status != types.StatusPass {
			overall = types.VerdictFail
			break
		}
	}

	scenarios := make([]types.ScenarioOutcome, len(outcomes))
	copy(scenarios, outcomes)

	return types.ResilienceReport{
		RunID:          runID,
		Commit:         commit,
		Scenarios:      scenarios,
		Overall:        overall,
		DeploymentGate: gate.Decide(overall),
		Events:         runEvents,
	}
}
