package environment

import (
	"os"
	"strconv"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

//GetENV fetches all the run configuration from the invoking pipeline's ENV
func GetENV(runDetails *types.RunDetails) {
	runDetails.RunID = Getenv("RUN_ID", uuid.NewString())
	runDetails.Commit = Getenv("COMMIT_SHA", "unknown")
	runDetails.ReportPath = Getenv("REPORT_PATH", "resilience-report.json")
	runDetails.MaxParallel, _ = strconv.Atoi(Getenv("MAX_PARALLEL", "1"))
	runDetails.PreflightTimeout, _ = strconv.Atoi(Getenv("PREFLIGHT_TIMEOUT", "30"))
	runDetails.Delay, _ = strconv.Atoi(Getenv("STATUS_CHECK_DELAY", "1"))
	runDetails.Timeout, _ = strconv.Atoi(Getenv("STATUS_CHECK_TIMEOUT", "180"))
	runDetails.ProbeTimeout, _ = strconv.Atoi(Getenv("PROBE_TIMEOUT", "2"))
	runDetails.MetricRetries, _ = strconv.Atoi(Getenv("METRIC_RETRIES", "5"))
	runDetails.MetricRetryWait, _ = strconv.Atoi(Getenv("METRIC_RETRY_WAIT", "2"))
	runDetails.MetricsEndpoint = os.Getenv("METRICS_ENDPOINT")
	runDetails.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	runDetails.OTelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Getenv fetch the env and set the default value, if any
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}

// LoadPlan reads and validates the scenario plan from a YAML file
func LoadPlan(path string) (types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Plan{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: "unable to read the plan file, " + err.Error()}
	}

	var plan types.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return types.Plan{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Reason: "unable to parse the plan file, " + err.Error()}
	}

	if err := plan.Validate(); err != nil {
		return types.Plan{}, err
	}
	return plan, nil
}
