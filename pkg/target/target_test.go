package target

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/clients"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

func testClients() clients.ClientSets {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	return clients.ClientSets{
		Control: &clients.HTTPControl{Client: httpClient},
		Metrics: clients.UnavailableMetrics{},
		HTTP:    httpClient,
	}
}

func TestProbeHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer degraded.Close()

	registry := NewRegistry([]types.TargetDetails{
		{Name: "serviceA", HealthEndpoint: healthy.URL, ControlEndpoint: "http://localhost:1"},
		{Name: "serviceB", HealthEndpoint: degraded.URL, ControlEndpoint: "http://localhost:1"},
		{Name: "serviceC", HealthEndpoint: "http://127.0.0.1:1", ControlEndpoint: "http://localhost:1"},
	}, testClients())

	ctx := context.Background()
	check := func(name string, expected bool) {
		handle, ok := registry.Get(name)
		if !ok {
			t.Fatalf("missing handle for %s", name)
		}
		if got := handle.ProbeHealth(ctx); got != expected {
			t.Errorf("%s: expected healthy=%v, got %v", name, expected, got)
		}
	}

	check("serviceA", true)
	// non-200 and connection refused are both "not healthy yet"
	check("serviceB", false)
	check("serviceC", false)
}

func TestControlOperations(t *testing.T) {
	var mu sync.Mutex
	var operations []string
	runtime := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		operations = append(operations, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer runtime.Close()

	registry := NewRegistry([]types.TargetDetails{
		{Name: "serviceA", HealthEndpoint: runtime.URL, ControlEndpoint: runtime.URL},
	}, testClients())

	handle, _ := registry.Get("serviceA")
	ctx := context.Background()
	if err := handle.Stop(ctx); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if err := handle.Start(ctx); err != nil {
		t.Errorf("start failed: %v", err)
	}
	if err := handle.Throttle(ctx, "latency", 1000, 30); err != nil {
		t.Errorf("throttle failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{"/stop", "/start", "/throttle"}
	if len(operations) != len(expected) {
		t.Fatalf("expected %d control calls, got %d", len(expected), len(operations))
	}
	for i, op := range expected {
		if operations[i] != op {
			t.Errorf("call %d: expected %s, got %s", i, op, operations[i])
		}
	}
}

func TestControlUnreachableIsError(t *testing.T) {
	registry := NewRegistry([]types.TargetDetails{
		{Name: "serviceA", HealthEndpoint: "http://127.0.0.1:1", ControlEndpoint: "http://127.0.0.1:1"},
	}, testClients())

	handle, _ := registry.Get("serviceA")
	if err := handle.Stop(context.Background()); err == nil {
		t.Error("expected error for unreachable control channel")
	}
}

func TestRegistryHandlesUnknownTarget(t *testing.T) {
	registry := NewRegistry(nil, testClients())
	if _, err := registry.Handles([]string{"ghost"}); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestLockSerializesPerTarget(t *testing.T) {
	registry := NewRegistry([]types.TargetDetails{
		{Name: "serviceA", HealthEndpoint: "http://localhost:1", ControlEndpoint: "http://localhost:1"},
		{Name: "serviceB", HealthEndpoint: "http://localhost:1", ControlEndpoint: "http://localhost:1"},
	}, testClients())

	release := registry.Lock([]string{"serviceB", "serviceA", "serviceA"})

	acquired := make(chan struct{})
	go func() {
		releaseSecond := registry.Lock([]string{"serviceA"})
		close(acquired)
		releaseSecond()
	}()

	select {
	case <-acquired:
		t.Fatal("second scenario acquired a locked target")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was never released")
	}
}
