package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"

	"github.com/tomvdbrandt/canopy/pkg/debug"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

// RetryPolicy configures the shared exponential-backoff retry behavior.
type RetryPolicy struct {
	Attempts int           // retry ceiling, not counting the first try
	BaseWait time.Duration // first backoff interval
	MaxWait  time.Duration // backoff cap
}

// DefaultRetryPolicy matches the server team's recommended client settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, BaseWait: 250 * time.Millisecond, MaxWait: 4 * time.Second}
}

// HTTPGateway is the production Gateway over the canopy REST API.
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTP builds a gateway for baseURL with the given retry policy.
// Close must be called when the session ends.
func NewHTTP(baseURL string, policy RetryPolicy) *HTTPGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(policy.Attempts).
		SetRetryWaitTime(policy.BaseWait).
		SetRetryMaxWaitTime(policy.MaxWait).
		AddRetryConditions(func(res *resty.Response, err error) bool {
			// Network errors and 5xx are transient; everything else is a
			// semantic outcome the caller must see.
			if err != nil {
				return true
			}
			return res.StatusCode() >= http.StatusInternalServerError
		})
	return &HTTPGateway{client: client}
}

// Close releases the underlying HTTP client.
func (g *HTTPGateway) Close() error {
	return g.client.Close()
}

// do issues a request and maps the response status into the error taxonomy.
// A nil out skips body decoding.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	req := g.client.R().SetContext(ctx)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		// Retries exhausted: fail loud so the UI can surface a blocking
		// connectivity error.
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case res.StatusCode() == http.StatusConflict:
		return fmt.Errorf("%w: %s %s", ErrConflict, method, path)
	case res.StatusCode() >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, res.StatusCode())
	}

	if out != nil {
		if err := json.Unmarshal(res.Bytes(), out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (g *HTTPGateway) FetchTree(ctx context.Context) ([]model.Node, error) {
	defer debug.LogEnterExit("gateway.FetchTree")()
	var nodes []model.Node
	if err := g.do(ctx, http.MethodGet, "/api/nodes/tree", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (g *HTTPGateway) FetchStatsAll(ctx context.Context) (map[string]model.NodeStats, error) {
	stats := make(map[string]model.NodeStats)
	if err := g.do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (g *HTTPGateway) FetchInboundStats(ctx context.Context, id string) (model.ConnectionStats, error) {
	var out model.ConnectionStats
	err := g.do(ctx, http.MethodGet, "/api/nodes/"+id+"/stats/inbound", nil, &out)
	return out, err
}

func (g *HTTPGateway) FetchOutboundStats(ctx context.Context, id string) (model.ConnectionStats, error) {
	var out model.ConnectionStats
	err := g.do(ctx, http.MethodGet, "/api/nodes/"+id+"/stats/outbound", nil, &out)
	return out, err
}

// FetchConnectionStats fans out to both directional endpoints concurrently.
func (g *HTTPGateway) FetchConnectionStats(ctx context.Context, id string) (inbound, outbound model.ConnectionStats, err error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var e error
		inbound, e = g.FetchInboundStats(ctx, id)
		return e
	})
	eg.Go(func() error {
		var e error
		outbound, e = g.FetchOutboundStats(ctx, id)
		return e
	})
	err = eg.Wait()
	return inbound, outbound, err
}

type createNodeRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      model.Status `json:"status"`
}

type createNodeResponse struct {
	ID string `json:"id"`
}

func (g *HTTPGateway) CreateNode(ctx context.Context, name, description string, status model.Status) (string, error) {
	var out createNodeResponse
	err := g.do(ctx, http.MethodPost, "/api/nodes",
		createNodeRequest{Name: name, Description: description, Status: status}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *HTTPGateway) UpdateNode(ctx context.Context, id, name, description string, status model.Status) error {
	return g.do(ctx, http.MethodPut, "/api/nodes/"+id,
		createNodeRequest{Name: name, Description: description, Status: status}, nil)
}

func (g *HTTPGateway) DeleteNode(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/api/nodes/"+id, nil, nil)
}

type relationRequest struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

func (g *HTTPGateway) CreateRelation(ctx context.Context, parentID, childID string) error {
	return g.do(ctx, http.MethodPost, "/api/relations",
		relationRequest{ParentID: parentID, ChildID: childID}, nil)
}

func (g *HTTPGateway) DeleteRelation(ctx context.Context, parentID, childID string) error {
	return g.do(ctx, http.MethodDelete,
		fmt.Sprintf("/api/relations/%s/%s", parentID, childID), nil, nil)
}

type clickRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (g *HTTPGateway) RecordClick(ctx context.Context, sourceID, targetID string) error {
	return g.do(ctx, http.MethodPost, "/api/clicks",
		clickRequest{SourceID: sourceID, TargetID: targetID}, nil)
}

func (g *HTTPGateway) SearchNodes(ctx context.Context, term string) ([]model.Node, error) {
	var nodes []model.Node
	err := g.do(ctx, http.MethodGet, "/api/nodes/search?q="+url.QueryEscape(term), nil, &nodes)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

var _ Gateway = (*HTTPGateway)(nil)
