package render

import (
	"strings"

	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

// ConnectionFilter restricts visibility by recorded connection direction.
type ConnectionFilter string

const (
	ConnectionAll      ConnectionFilter = "all"
	ConnectionInbound  ConnectionFilter = "inbound"
	ConnectionOutbound ConnectionFilter = "outbound"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// Query length floors. A name/description query shorter than two characters
// is inert; a friendly-id query kicks in from a single character.
const (
	MinNameQueryLen = 2
	MinIDQueryLen   = 1
)

// Filters holds every active visibility criterion. The zero value (with
// empty strings) is equivalent to DefaultFilters: everything visible.
type Filters struct {
	Connection ConnectionFilter
	Status     string // StatusAll or a model.Status value
	NameQuery  string
	IDQuery    string

	// ForceVisible overrides all other criteria. It is populated by the
	// ancestor-preservation pass so the path from root to a match never
	// disappears from a filtered view.
	ForceVisible map[string]bool
}

// DefaultFilters returns filters that let every node through.
func DefaultFilters() Filters {
	return Filters{Connection: ConnectionAll, Status: StatusAll}
}

// SearchActive reports whether either query is long enough to switch the
// renderer into single-node display.
func (f Filters) SearchActive() bool {
	return len(f.NameQuery) >= MinNameQueryLen || len(f.IDQuery) >= MinIDQueryLen
}

// IsVisible applies the connection and status criteria as an AND. Nodes with
// no stats fetched yet pass the connection filter (fail-open) so the view
// does not flicker while stats load. ForceVisible wins over everything.
func (f Filters) IsVisible(n *model.Node, stats model.NodeStats, statsKnown bool) bool {
	if n == nil {
		return false
	}
	if f.ForceVisible[n.ID] {
		return true
	}

	switch f.Connection {
	case ConnectionInbound:
		if statsKnown && stats.Inbound <= 0 {
			return false
		}
	case ConnectionOutbound:
		if statsKnown && stats.Outbound <= 0 {
			return false
		}
	}

	if f.Status != "" && f.Status != StatusAll && string(n.Status) != f.Status {
		return false
	}

	return true
}

// FindSearchTarget resolves the single node a search designates: the first
// match in lexicographic id order. Name/description matching is
// case-insensitive substring with a two character floor; friendly-id
// matching is substring from one character. There is no ranking.
func FindSearchTarget(store *graph.Store, f Filters) (string, bool) {
	nameQ := strings.ToLower(f.NameQuery)
	useName := len(nameQ) >= MinNameQueryLen
	useID := len(f.IDQuery) >= MinIDQueryLen
	if !useName && !useID {
		return "", false
	}

	for _, id := range store.IDs() {
		n, ok := store.Node(id)
		if !ok {
			continue
		}
		if useName {
			if strings.Contains(strings.ToLower(n.Name), nameQ) ||
				strings.Contains(strings.ToLower(n.Description), nameQ) {
				return id, true
			}
		}
		if useID && strings.Contains(store.FriendlyID(id), f.IDQuery) {
			return id, true
		}
	}
	return "", false
}
