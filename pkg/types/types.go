package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
)

const (
	// PreflightCheck initial stage of the run, health check before any fault is injected
	PreflightCheck string = "PreflightCheck"
	// ChaosInject this stage refers to the fault injection of one scenario
	ChaosInject string = "ChaosInject"
	// ChaosClear this stage refers to lifting the fault of one scenario
	ChaosClear string = "ChaosClear"
	// RecoveryCheck stage of the recovery validation after the fault has been lifted
	RecoveryCheck string = "RecoveryCheck"
	// Summary final stage of the run, the verdict and gate decision
	Summary string = "Summary"
)

// ScenarioKind enumerates the closed set of failure-injection kinds
type ScenarioKind string

const (
	KindServiceKill    ScenarioKind = "kill"
	KindNetworkLatency ScenarioKind = "latency"
	KindCPUSpike       ScenarioKind = "cpu_spike"
	KindMemorySpike    ScenarioKind = "memory_spike"
	KindDBFailure      ScenarioKind = "db_failure"
)

// Valid reports whether the kind belongs to the supported set
func (k ScenarioKind) Valid() bool {
	switch k {
	case KindServiceKill, KindNetworkLatency, KindCPUSpike, KindMemorySpike, KindDBFailure:
		return true
	}
	return false
}

// ScenarioStatus is the per-scenario verdict
type ScenarioStatus string

const (
	// StatusPass the target recovered within the threshold
	StatusPass ScenarioStatus = "Pass"
	// StatusFail the target did not recover within the threshold
	StatusFail ScenarioStatus = "Fail"
	// StatusError the injection or validation machinery itself malfunctioned
	StatusError ScenarioStatus = "Error"
)

// Verdict is the aggregated run verdict
type Verdict string

const (
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

// GateDecision is the binary deployment-gate decision consumed by the pipeline
type GateDecision string

const (
	GateOpen   GateDecision = "Open"
	GateClosed GateDecision = "Closed"
)

// TargetDetails identifies one controllable service under test
type TargetDetails struct {
	Name            string `yaml:"name" json:"name"`
	HealthEndpoint  string `yaml:"healthEndpoint" json:"healthEndpoint"`
	ControlEndpoint string `yaml:"controlEndpoint" json:"controlEndpoint"`
}

// Thresholds carries the kind-specific recovery criteria of one scenario
type Thresholds struct {
	RecoverySeconds    int     `yaml:"recoverySeconds" json:"recoverySeconds,omitempty"`
	LatencyMs          float64 `yaml:"latencyMs" json:"latencyMs,omitempty"`
	DegradationPercent float64 `yaml:"degradationPercent" json:"degradationPercent,omitempty"`
	ErrorRate          float64 `yaml:"errorRate" json:"errorRate,omitempty"`
}

// ScenarioSpec is one immutable failure-injection unit of the plan
type ScenarioSpec struct {
	ID         string            `yaml:"id" json:"id"`
	Kind       ScenarioKind      `yaml:"kind" json:"kind"`
	Targets    []string          `yaml:"targets" json:"targets"`
	Params     map[string]string `yaml:"params" json:"params,omitempty"`
	Thresholds Thresholds        `yaml:"thresholds" json:"thresholds"`
}

// Param fetches a kind-specific parameter and sets the default value, if any
func (s ScenarioSpec) Param(key, defaultValue string) string {
	if value, ok := s.Params[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

// IntParam fetches an integer parameter, falling back on parse failure
func (s ScenarioSpec) IntParam(key string, defaultValue int) int {
	value, err := strconv.Atoi(s.Param(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// FloatParam fetches a float parameter, falling back on parse failure
func (s ScenarioSpec) FloatParam(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(s.Param(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// Threshold returns the numeric threshold the kind is judged against
func (s ScenarioSpec) Threshold() float64 {
	switch s.Kind {
	case KindServiceKill:
		return float64(s.Thresholds.RecoverySeconds)
	case KindNetworkLatency:
		return s.Thresholds.LatencyMs
	case KindCPUSpike, KindMemorySpike:
		return s.Thresholds.DegradationPercent
	case KindDBFailure:
		return s.Thresholds.ErrorRate
	}
	return 0
}

// Validate checks the scenario is well formed before the run starts
func (s ScenarioSpec) Validate() error {
	if s.ID == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: "scenario id is empty"}
	}
	if !s.Kind.Valid() {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: fmt.Sprintf("unknown scenario kind '%s'", s.Kind)}
	}
	if len(s.Targets) == 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: "scenario has no targets"}
	}
	switch s.Kind {
	case KindServiceKill:
		if s.Thresholds.RecoverySeconds <= 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: "kill scenario requires thresholds.recoverySeconds > 0"}
		}
	case KindNetworkLatency:
		if s.Thresholds.LatencyMs <= 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: "latency scenario requires thresholds.latencyMs > 0"}
		}
	case KindCPUSpike, KindMemorySpike:
		if s.Thresholds.DegradationPercent <= 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: "spike scenario requires thresholds.degradationPercent > 0"}
		}
	case KindDBFailure:
		if s.Thresholds.ErrorRate <= 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: s.ID, Reason: "db_failure scenario requires thresholds.errorRate > 0"}
		}
	}
	return nil
}

// FaultHandle describes one injected fault so it can be lifted later,
// it is returned even when the injection only partially landed
type FaultHandle struct {
	ScenarioID    string
	Kind          ScenarioKind
	Targets       []string
	WindowSeconds int
	InjectedAt    time.Time
	Partial       bool
}

// ScenarioOutcome is the immutable record of one executed scenario
type ScenarioOutcome struct {
	ScenarioID     string         `json:"scenarioId"`
	Kind           ScenarioKind   `json:"kind"`
	Status         ScenarioStatus `json:"status"`
	ObservedMetric float64        `json:"observedMetric"`
	Threshold      float64        `json:"threshold"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        time.Time      `json:"endedAt"`
	Detail         string         `json:"detail,omitempty"`
}

// RunEvent is one entry of the run's audit timeline
type RunEvent struct {
	Time       time.Time `json:"time"`
	Stage      string    `json:"stage"`
	ScenarioID string    `json:"scenarioId,omitempty"`
	Message    string    `json:"message"`
}

// ResilienceReport is the aggregate, persisted record of all outcomes for one run
type ResilienceReport struct {
	RunID          string            `json:"runId"`
	Commit         string            `json:"commit"`
	Scenarios      []ScenarioOutcome `json:"scenarios"`
	Overall        Verdict           `json:"overall"`
	DeploymentGate GateDecision      `json:"deploymentGate"`
	Events         []RunEvent        `json:"events,omitempty"`
}

// Plan is the user-supplied run input, targets plus the ordered scenario set
type Plan struct {
	Targets   []TargetDetails `yaml:"targets"`
	Scenarios []ScenarioSpec  `yaml:"scenarios"`
}

// Validate checks the plan is executable before the run starts
func (p Plan) Validate() error {
	if len(p.Targets) == 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: "plan has no targets"}
	}
	known := make(map[string]bool, len(p.Targets))
	for _, target := range p.Targets {
		if target.Name == "" || target.HealthEndpoint == "" || target.ControlEndpoint == "" {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: target.Name, Reason: "target requires name, healthEndpoint and controlEndpoint"}
		}
		if known[target.Name] {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: target.Name, Reason: "duplicate target name"}
		}
		known[target.Name] = true
	}
	if len(p.Scenarios) == 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: "plan has no scenarios"}
	}
	seen := make(map[string]bool, len(p.Scenarios))
	for _, scenario := range p.Scenarios {
		if err := scenario.Validate(); err != nil {
			return err
		}
		if seen[scenario.ID] {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: scenario.ID, Reason: "duplicate scenario id"}
		}
		seen[scenario.ID] = true
		for _, name := range scenario.Targets {
			if !known[name] {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: scenario.ID, Reason: fmt.Sprintf("scenario references unknown target '%s'", name)}
			}
		}
	}
	return nil
}

// RunDetails is the immutable run configuration, assembled once and passed
// explicitly so runs replay deterministically
type RunDetails struct {
	RunID            string
	Commit           string
	ReportPath       string
	MaxParallel      int
	PreflightTimeout int
	Delay            int
	Timeout          int
	ProbeTimeout     int
	MetricRetries    int
	MetricRetryWait  int
	MetricsEndpoint  string
	PushgatewayURL   string
	OTelEndpoint     string
}
