package sequencer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/clients"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/events"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// fakeMetrics serves canned samples per expression; expressions not present
// are unavailable
type fakeMetrics struct {
	samples map[string]float64
}

func (f fakeMetrics) Query(ctx context.Context, expr string) (float64, bool, error) {
	value, ok := f.samples[expr]
	return value, ok, nil
}

type runtimeFake struct {
	mu       sync.Mutex
	requests []string
	// healthFailures is the number of probes to refuse before turning healthy
	healthFailures int
	healthSeen     int
	server         *httptest.Server
}

func newRuntimeFake() *runtimeFake {
	f := &runtimeFake{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.URL.Path == "/healthz" {
			f.healthSeen++
			if f.healthSeen <= f.healthFailures {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		f.requests = append(f.requests, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *runtimeFake) controlCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

func testDetails() types.RunDetails {
	return types.RunDetails{
		RunID:            "run-1",
		Commit:           "deadbeef",
		MaxParallel:      1,
		PreflightTimeout: 5,
		Delay:            1,
		Timeout:          30,
		ProbeTimeout:     2,
		MetricRetries:    2,
		MetricRetryWait:  1,
	}
}

func testSequencer(t *testing.T, fake *runtimeFake, plan types.Plan, metrics clients.MetricsClient) (*Sequencer, *clock.FakeClock) {
	t.Helper()
	if metrics == nil {
		metrics = clients.UnavailableMetrics{}
	}
	httpClient := &http.Client{Timeout: 2 * time.Second}
	clientSets := clients.ClientSets{
		Control: &clients.HTTPControl{Client: httpClient},
		Metrics: metrics,
		HTTP:    httpClient,
	}
	fakeClock := clock.NewFake(time.Unix(5000, 0))
	registry := target.NewRegistry(plan.Targets, clientSets)
	recorder := events.NewRecorder(fakeClock)
	return New(testDetails(), plan, registry, recorder, fakeClock), fakeClock
}

func twoTargetPlan(fake *runtimeFake, scenarios ...types.ScenarioSpec) types.Plan {
	return types.Plan{
		Targets: []types.TargetDetails{
			{Name: "serviceA", HealthEndpoint: fake.server.URL + "/healthz", ControlEndpoint: fake.server.URL},
			{Name: "serviceB", HealthEndpoint: fake.server.URL + "/healthz", ControlEndpoint: fake.server.URL},
		},
		Scenarios: scenarios,
	}
}

func TestRun_OneOutcomePerScenario(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "kill-a", Kind: types.KindServiceKill, Targets: []string{"serviceA"}, Thresholds: types.Thresholds{RecoverySeconds: 30}},
		types.ScenarioSpec{ID: "cpu-b", Kind: types.KindCPUSpike, Targets: []string{"serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
		types.ScenarioSpec{ID: "db-b", Kind: types.KindDBFailure, Targets: []string{"serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{ErrorRate: 0.05}},
	)

	seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
		`degradation_percent{service="serviceB"}`: 12,
		`error_rate{service="serviceB"}`:          0.01,
	}})

	outcomes, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to start, got %v", err)
	}
	if len(outcomes) != len(plan.Scenarios) {
		t.Fatalf("expected %d outcomes, got %d", len(plan.Scenarios), len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.ScenarioID != plan.Scenarios[i].ID {
			t.Errorf("outcome %d: expected %s, got %s", i, plan.Scenarios[i].ID, outcome.ScenarioID)
		}
		if outcome.Status != types.StatusPass {
			t.Errorf("scenario %s: expected Pass, got %s (%s)", outcome.ScenarioID, outcome.Status, outcome.Detail)
		}
		if outcome.EndedAt.Before(outcome.StartedAt) {
			t.Errorf("scenario %s: endedAt before startedAt", outcome.ScenarioID)
		}
	}
}

func TestRun_KillRecoveryExample(t *testing.T) {
	// health endpoint answers 200 only after 8 failed polls
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := types.Plan{
		Targets: []types.TargetDetails{
			{Name: "serviceA", HealthEndpoint: fake.server.URL + "/healthz", ControlEndpoint: fake.server.URL},
		},
		Scenarios: []types.ScenarioSpec{
			{ID: "kill-a", Kind: types.KindServiceKill, Targets: []string{"serviceA"}, Params: map[string]string{"settleSeconds": "0"}, Thresholds: types.Thresholds{RecoverySeconds: 30}},
		},
	}

	seq, _ := testSequencer(t, fake, plan, nil)

	fake.mu.Lock()
	fake.healthFailures = 8
	fake.mu.Unlock()

	outcome := seq.executeScenario(context.Background(), plan.Scenarios[0])
	if outcome.Status != types.StatusPass {
		t.Fatalf("expected Pass, got %s (%s)", outcome.Status, outcome.Detail)
	}
	if outcome.ObservedMetric != 8 {
		t.Errorf("expected observedMetric=8, got %v", outcome.ObservedMetric)
	}
}

func TestRun_LatencyBreachFails(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "latency-ab", Kind: types.KindNetworkLatency, Targets: []string{"serviceA", "serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{LatencyMs: 1000}},
	)

	seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
		`p99_latency_ms{service="serviceA"}`: 1400,
	}})

	outcomes, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to start, got %v", err)
	}
	if outcomes[0].Status != types.StatusFail {
		t.Errorf("expected Fail, got %s (%s)", outcomes[0].Status, outcomes[0].Detail)
	}
	if outcomes[0].ObservedMetric != 1400 {
		t.Errorf("expected observedMetric=1400, got %v", outcomes[0].ObservedMetric)
	}
}

func TestRun_MetricsUnreachableIsError(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "db-b", Kind: types.KindDBFailure, Targets: []string{"serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{ErrorRate: 0.05}},
	)

	seq, _ := testSequencer(t, fake, plan, clients.UnavailableMetrics{})

	outcomes, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to start, got %v", err)
	}
	if outcomes[0].Status != types.StatusError {
		t.Errorf("expected Error for observability gap, got %s", outcomes[0].Status)
	}
}

func TestRun_DBFailureFallbackPath(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{
			ID:         "db-b",
			Kind:       types.KindDBFailure,
			Targets:    []string{"serviceB"},
			Params:     map[string]string{"windowSeconds": "5", "fallbackMetric": `fallback_success{service="serviceB"}`},
			Thresholds: types.Thresholds{ErrorRate: 0.05},
		},
	)

	seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
		`error_rate{service="serviceB"}`:       0.5,
		`fallback_success{service="serviceB"}`: 1,
	}})

	outcomes, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to start, got %v", err)
	}
	if outcomes[0].Status != types.StatusPass {
		t.Errorf("expected Pass through the fallback path, got %s (%s)", outcomes[0].Status, outcomes[0].Detail)
	}
}

func TestRun_PreflightFailureAbortsBeforeScenarios(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()
	fake.mu.Lock()
	fake.healthFailures = 1 << 30
	fake.mu.Unlock()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "kill-a", Kind: types.KindServiceKill, Targets: []string{"serviceA"}, Thresholds: types.Thresholds{RecoverySeconds: 30}},
	)

	seq, _ := testSequencer(t, fake, plan, nil)

	outcomes, err := seq.Run(context.Background())
	if err == nil {
		t.Fatal("expected a startup failure")
	}
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
	if calls := fake.controlCalls(); len(calls) != 0 {
		t.Errorf("expected no fault injection before preflight passed, got %v", calls)
	}
}

func TestExecuteScenario_PanicIsIsolated(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "boom", Kind: types.KindCPUSpike, Targets: []string{"serviceA"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
		types.ScenarioSpec{ID: "db-b", Kind: types.KindDBFailure, Targets: []string{"serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{ErrorRate: 0.05}},
	)

	seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
		`error_rate{service="serviceB"}`: 0.01,
	}})
	seq.inject = func(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {
		if spec.ID == "boom" {
			panic("injection blew up")
		}
		return injectScenario(ctx, spec, handles, c)
	}

	outcomes, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to start, got %v", err)
	}
	if outcomes[0].Status != types.StatusError {
		t.Errorf("expected Error for the panicking scenario, got %s", outcomes[0].Status)
	}
	if outcomes[1].Status != types.StatusPass {
		t.Errorf("expected the following scenario to execute and pass, got %s (%s)", outcomes[1].Status, outcomes[1].Detail)
	}
}

func TestExecuteScenario_ClearRunsExactlyOnce(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "cpu-a", Kind: types.KindCPUSpike, Targets: []string{"serviceA"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
	)

	var mu sync.Mutex
	clears := 0
	seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
		`degradation_percent{service="serviceA"}`: 12,
	}})
	seq.clear = func(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
		mu.Lock()
		clears++
		mu.Unlock()
		return clearScenario(ctx, fault, handles)
	}

	outcome := seq.executeScenario(context.Background(), plan.Scenarios[0])
	if outcome.Status != types.StatusPass {
		t.Fatalf("expected Pass, got %s (%s)", outcome.Status, outcome.Detail)
	}

	mu.Lock()
	defer mu.Unlock()
	if clears != 1 {
		t.Errorf("expected clear to run exactly once, got %d", clears)
	}
}

func TestExecuteScenario_ClearRunsWhenInjectionFails(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "cpu-a", Kind: types.KindCPUSpike, Targets: []string{"serviceA"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
	)

	var mu sync.Mutex
	clears := 0
	seq, _ := testSequencer(t, fake, plan, nil)
	seq.inject = func(ctx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {
		return &types.FaultHandle{ScenarioID: spec.ID, Kind: spec.Kind, Targets: spec.Targets, Partial: true},
			&partialInjectionError{}
	}
	seq.clear = func(ctx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
		mu.Lock()
		clears++
		mu.Unlock()
		return nil
	}

	outcome := seq.executeScenario(context.Background(), plan.Scenarios[0])
	if outcome.Status != types.StatusError {
		t.Fatalf("expected Error, got %s", outcome.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if clears != 1 {
		t.Errorf("expected clear to run exactly once for the partial fault, got %d", clears)
	}
}

type partialInjectionError struct{}

func (partialInjectionError) Error() string { return "throttle landed on one of two targets" }

func TestExecuteScenario_CancelledRunStillClears(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "cpu-a", Kind: types.KindCPUSpike, Targets: []string{"serviceA"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
	)

	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	clears := 0
	seq, _ := testSequencer(t, fake, plan, nil)
	seq.inject = func(injectCtx context.Context, spec types.ScenarioSpec, handles []*target.Handle, c clock.Clock) (*types.FaultHandle, error) {
		// the pipeline timeout fires while the fault is in flight
		cancel()
		return injectScenario(injectCtx, spec, handles, c)
	}
	seq.clear = func(clearCtx context.Context, fault *types.FaultHandle, handles []*target.Handle) error {
		if clearCtx.Err() != nil {
			t.Error("clear must run on a context that outlives the cancelled run")
		}
		mu.Lock()
		clears++
		mu.Unlock()
		return clearScenario(clearCtx, fault, handles)
	}

	outcome := seq.executeScenario(ctx, plan.Scenarios[0])
	if outcome.Status != types.StatusError {
		t.Errorf("expected Error for the cancelled scenario, got %s", outcome.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if clears != 1 {
		t.Errorf("expected clear to run exactly once, got %d", clears)
	}
}

func TestExecuteScenario_CancelledBeforeStart(t *testing.T) {
	fake := newRuntimeFake()
	defer fake.server.Close()

	plan := twoTargetPlan(fake,
		types.ScenarioSpec{ID: "kill-a", Kind: types.KindServiceKill, Targets: []string{"serviceA"}, Thresholds: types.Thresholds{RecoverySeconds: 30}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq, _ := testSequencer(t, fake, plan, nil)
	outcome := seq.executeScenario(ctx, plan.Scenarios[0])

	if outcome.Status != types.StatusError {
		t.Errorf("expected Error, got %s", outcome.Status)
	}
	if calls := fake.controlCalls(); len(calls) != 0 {
		t.Errorf("expected no control calls for an unstarted scenario, got %v", calls)
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	run := func(parallel int) []types.ScenarioOutcome {
		fake := newRuntimeFake()
		defer fake.server.Close()

		plan := twoTargetPlan(fake,
			types.ScenarioSpec{ID: "cpu-a", Kind: types.KindCPUSpike, Targets: []string{"serviceA"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{DegradationPercent: 25}},
			types.ScenarioSpec{ID: "db-b", Kind: types.KindDBFailure, Targets: []string{"serviceB"}, Params: map[string]string{"windowSeconds": "5"}, Thresholds: types.Thresholds{ErrorRate: 0.05}},
		)

		seq, _ := testSequencer(t, fake, plan, fakeMetrics{samples: map[string]float64{
			`degradation_percent{service="serviceA"}`: 40,
			`error_rate{service="serviceB"}`:          0.01,
		}})
		seq.details.MaxParallel = parallel

		outcomes, err := seq.Run(context.Background())
		if err != nil {
			t.Fatalf("expected run to start, got %v", err)
		}
		return outcomes
	}

	sequential := run(1)
	parallel := run(2)

	if len(sequential) != len(parallel) {
		t.Fatalf("outcome count differs: %d vs %d", len(sequential), len(parallel))
	}
	for i := range sequential {
		if sequential[i].ScenarioID != parallel[i].ScenarioID || sequential[i].Status != parallel[i].Status {
			t.Errorf("outcome %d differs: %s/%s vs %s/%s", i,
				sequential[i].ScenarioID, sequential[i].Status,
				parallel[i].ScenarioID, parallel[i].Status)
		}
	}
}
