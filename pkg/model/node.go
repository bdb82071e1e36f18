// Package model defines the core data types for the canopy node graph:
// nodes, statuses, connection stats, and edit patches. All types are
// JSON-serializable with the field names the canopy server speaks.
package model

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Status is the lifecycle state of a node.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// AllStatuses lists every valid status in display order.
var AllStatuses = []Status{StatusNew, StatusProcessing, StatusCompleted}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Node is a unit of content in the graph. Children holds child ids in the
// order the server returned them; it is semantically a set (a child appears
// at most once per parent) but stored as a sequence. A node may be listed as
// a child by more than one parent (a cross-link).
type Node struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Children    []string `json:"children"`
}

// HasChild reports whether id is already listed in n's children.
func (n *Node) HasChild(id string) bool {
	for _, c := range n.Children {
		if c == id {
			return true
		}
	}
	return false
}

// RemoveChild deletes id from n's children, preserving order.
// Returns true if the id was present.
func (n *Node) RemoveChild(id string) bool {
	for i, c := range n.Children {
		if c == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// NodeStats holds the aggregate connection counts the server tracks per node.
type NodeStats struct {
	Inbound  int `json:"total_inbound_count"`
	Outbound int `json:"total_outbound_count"`
}

// Connection is a single peer entry in a detailed stats response.
type Connection struct {
	PeerID string `json:"peer_id"`
	Count  int    `json:"count"`
}

// ConnectionStats is the detailed per-direction stats payload for one node.
type ConnectionStats struct {
	Total       int          `json:"total_count"`
	Connections []Connection `json:"connections"`
}

// NodePatch describes a partial content edit. Nil fields are left untouched.
// A patch never changes graph structure.
type NodePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p NodePatch) IsZero() bool {
	return p.Name == nil && p.Description == nil && p.Status == nil
}

// EncodeNodes serializes a node list for caching or export.
func EncodeNodes(nodes []Node) ([]byte, error) {
	return json.Marshal(nodes)
}

// DecodeNodes deserializes a node list produced by EncodeNodes.
func DecodeNodes(data []byte) ([]Node, error) {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decoding nodes: %w", err)
	}
	return nodes, nil
}
