// Package gateway talks to the canopy server. The Gateway interface is the
// only surface the core depends on; the HTTP implementation wraps every call
// in the shared retry/backoff policy.
package gateway

import (
	"context"
	"errors"

	"github.com/tomvdbrandt/canopy/pkg/model"
)

// Error taxonomy. Transient failures are retried inside the implementation
// and never reach callers; these sentinels classify what does.
var (
	// ErrUnavailable means retries were exhausted. Callers surface it as a
	// blocking connectivity error, never silent degradation.
	ErrUnavailable = errors.New("gateway: server unavailable")
	// ErrNotFound maps a 404: the entity does not exist server-side.
	ErrNotFound = errors.New("gateway: not found")
	// ErrConflict maps a 409, e.g. a relation that already exists. Callers
	// treat it as success-equivalent when the desired end state holds.
	ErrConflict = errors.New("gateway: conflict")
)

// Gateway is the remote API contract the core reconciles against.
type Gateway interface {
	// FetchTree returns the full tree snapshot; the first element is the
	// root. An empty list signals "no root exists" and is not an error.
	FetchTree(ctx context.Context) ([]model.Node, error)

	// FetchStatsAll returns bulk connection stats keyed by node id.
	FetchStatsAll(ctx context.Context) (map[string]model.NodeStats, error)

	// FetchInboundStats and FetchOutboundStats return detailed per-peer
	// stats for one node.
	FetchInboundStats(ctx context.Context, id string) (model.ConnectionStats, error)
	FetchOutboundStats(ctx context.Context, id string) (model.ConnectionStats, error)

	// CreateNode creates a node and returns its server-assigned id.
	CreateNode(ctx context.Context, name, description string, status model.Status) (string, error)

	// UpdateNode replaces the content fields of an existing node.
	UpdateNode(ctx context.Context, id, name, description string, status model.Status) error

	// DeleteNode deletes a node; the server cascades to descendants.
	DeleteNode(ctx context.Context, id string) error

	// CreateRelation links childID under parentID. Idempotent: an
	// already-existing relation comes back as ErrConflict, which callers
	// swallow.
	CreateRelation(ctx context.Context, parentID, childID string) error

	// DeleteRelation removes the parent/child link.
	DeleteRelation(ctx context.Context, parentID, childID string) error

	// RecordClick increments the connection counters behind the
	// inbound/outbound filters.
	RecordClick(ctx context.Context, sourceID, targetID string) error

	// SearchNodes runs a server-side search.
	SearchNodes(ctx context.Context, term string) ([]model.Node, error)
}
