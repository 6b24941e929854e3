package clients

import (
	"context"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromMetrics queries the metrics backend through the prometheus HTTP API
type PromMetrics struct {
	api promv1.API
}

// NewPromMetrics builds a prometheus metrics client for the given endpoint
func NewPromMetrics(endpoint string) (*PromMetrics, error) {
	client, err := api.NewClient(api.Config{Address: endpoint})
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeMetricQuery, Reason: "unable to build prometheus client, " + err.Error()}
	}
	return &PromMetrics{api: promv1.NewAPI(client)}, nil
}

// Query evaluates the expression at the current instant, an empty result or a
// transport failure is reported as an unavailable sample so callers can retry
func (p *PromMetrics) Query(ctx context.Context, expr string) (float64, bool, error) {
	value, _, err := p.api.Query(ctx, expr, time.Now())
	if err != nil {
		return 0, false, cerrors.Error{ErrorCode: cerrors.ErrorTypeMetricQuery, Reason: "metrics backend unreachable, " + err.Error()}
	}

	vector, ok := value.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, false, nil
	}
	return float64(vector[0].Value), true, nil
}
