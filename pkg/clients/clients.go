package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// ControlClient is the abstract control channel to the process/container
// runtime that owns the target services, the concrete transport stays with
// the collaborator
type ControlClient interface {
	Start(ctx context.Context, target types.TargetDetails) error
	Stop(ctx context.Context, target types.TargetDetails) error
	Throttle(ctx context.Context, target types.TargetDetails, kind string, magnitude float64, durationSeconds int) error
}

// MetricsClient queries the metrics backend by expression, ok=false means the
// sample is unavailable which callers must treat as a missing sample
type MetricsClient interface {
	Query(ctx context.Context, expr string) (value float64, ok bool, err error)
}

// ClientSets is a collection of all the collaborator clients needed for a run
type ClientSets struct {
	Control ControlClient
	Metrics MetricsClient
	HTTP    *http.Client
}

// NewClientSets wires the default HTTP control channel and, when a metrics
// endpoint is configured, the prometheus metrics client
func NewClientSets(details types.RunDetails) (ClientSets, error) {
	httpClient := &http.Client{Timeout: time.Duration(details.ProbeTimeout) * time.Second}

	clients := ClientSets{
		Control: &HTTPControl{Client: httpClient},
		Metrics: UnavailableMetrics{},
		HTTP:    httpClient,
	}

	if details.MetricsEndpoint != "" {
		promClient, err := NewPromMetrics(details.MetricsEndpoint)
		if err != nil {
			return ClientSets{}, err
		}
		clients.Metrics = promClient
	}
	return clients, nil
}

// HTTPControl drives the runtime collaborator over its HTTP control endpoint
type HTTPControl struct {
	Client *http.Client
}

type controlRequest struct {
	Target    string  `json:"target"`
	Kind      string  `json:"kind,omitempty"`
	Magnitude float64 `json:"magnitude,omitempty"`
	Duration  int     `json:"duration,omitempty"`
}

func (c *HTTPControl) Start(ctx context.Context, target types.TargetDetails) error {
	return c.post(ctx, target, "start", controlRequest{Target: target.Name})
}

func (c *HTTPControl) Stop(ctx context.Context, target types.TargetDetails) error {
	return c.post(ctx, target, "stop", controlRequest{Target: target.Name})
}

func (c *HTTPControl) Throttle(ctx context.Context, target types.TargetDetails, kind string, magnitude float64, durationSeconds int) error {
	return c.post(ctx, target, "throttle", controlRequest{Target: target.Name, Kind: kind, Magnitude: magnitude, Duration: durationSeconds})
}

func (c *HTTPControl) post(ctx context.Context, target types.TargetDetails, operation string, payload controlRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetControl, Target: target.Name, Reason: fmt.Sprintf("unable to encode %s request, %v", operation, err)}
	}

	url := fmt.Sprintf("%s/%s", target.ControlEndpoint, operation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetControl, Target: target.Name, Reason: fmt.Sprintf("unable to build %s request, %v", operation, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetControl, Target: target.Name, Reason: fmt.Sprintf("control channel unreachable for %s, %v", operation, err)}
	}
	defer resp.Body.Close()

	// the runtime treats repeated stop/start as a no-op, any 2xx is success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetControl, Target: target.Name, Reason: fmt.Sprintf("control channel rejected %s with status %d", operation, resp.StatusCode)}
	}
	return nil
}

// UnavailableMetrics stands in when no metrics endpoint is configured, every
// query is a missing sample so metric-based validation surfaces the
// observability gap as an Error outcome
type UnavailableMetrics struct{}

func (UnavailableMetrics) Query(ctx context.Context, expr string) (float64, bool, error) {
	return 0, false, nil
}
