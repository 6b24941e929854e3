package gate

import (
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// Decide maps the run verdict onto the binary gate decision, total and
// side-effect free: the gate is Open iff every scenario passed
func Decide(overall types.Verdict) types.GateDecision {
	if overall == types.VerdictPass {
		return types.GateOpen
	}
	return types.GateClosed
}

// Evaluate derives the gate decision from a report
func Evaluate(report types.ResilienceReport) types.GateDecision {
	return Decide(report.Overall)
}

// ExitCode maps the gate decision onto the process exit status consumed by
// the invoking pipeline, 0 when Open and nonzero when Closed
func ExitCode(decision types.GateDecision) int {
	if decision == types.GateOpen {
		return 0
	}
	return 1
}
