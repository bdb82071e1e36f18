// Package render compiles the graph mirror into a pure, presentation-agnostic
// render tree. Each pass is a function of (store, filters) plus a per-pass
// visited set; it never mutates the store.
package render

import (
	"errors"
	"sort"

	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

// ErrNoRoot is returned when the store has never completed a full load (or
// the server tree was empty). It is distinct from a tree emptied by filters,
// so callers can show "no nodes" rather than "no match".
var ErrNoRoot = errors.New("render: graph has no root")

// EmptyReason explains a nil-rooted Tree.
type EmptyReason int

const (
	// EmptyNone means the tree has a root (not empty).
	EmptyNone EmptyReason = iota
	// EmptyNoMatch means filters or search excluded every node.
	EmptyNoMatch
)

// Node is a renderable node. Children are already filtered, deduplicated,
// and sorted; the presentation layer paints them as-is.
type Node struct {
	ID          string
	FriendlyID  string
	Name        string
	Description string
	Status      model.Status
	Stats       model.NodeStats
	StatsKnown  bool
	Depth       int
	Children    []*Node
}

// Tree is the output of one render pass.
type Tree struct {
	Root *Node
	// SingleNode is set in search mode: only the designated match is shown
	// and its children are suppressed.
	SingleNode bool
	// Reason explains an empty (nil Root) tree.
	Reason EmptyReason
	// NodeCount is the number of render nodes emitted.
	NodeCount int
}

// IsEmpty reports whether the pass emitted nothing.
func (t *Tree) IsEmpty() bool { return t == nil || t.Root == nil }

// Render compiles the full tree from the store's root.
func Render(store *graph.Store, f Filters) (*Tree, error) {
	rootID, ok := store.RootID()
	if !ok {
		return nil, ErrNoRoot
	}
	return RenderFrom(store, f, rootID)
}

// RenderFrom compiles the subtree rooted at fromID. The reconciler uses this
// for local patches that only need the nearest stable ancestor redrawn; the
// semantics are identical to a full Render scoped to that subtree.
func RenderFrom(store *graph.Store, f Filters, fromID string) (*Tree, error) {
	if !store.HasRoot() {
		return nil, ErrNoRoot
	}

	// Search mode designates at most one node and suppresses its children.
	if f.SearchActive() {
		id, found := FindSearchTarget(store, f)
		if !found {
			return &Tree{Reason: EmptyNoMatch}, nil
		}
		n, ok := store.Node(id)
		if !ok {
			return &Tree{Reason: EmptyNoMatch}, nil
		}
		return &Tree{Root: renderLeaf(store, n, 0), SingleNode: true, NodeCount: 1}, nil
	}

	eff := withAncestorPreservation(store, f)

	c := &compiler{store: store, filters: eff, visited: make(map[string]bool)}
	root := c.visit(fromID, 0)
	if root == nil {
		return &Tree{Reason: EmptyNoMatch}, nil
	}
	return &Tree{Root: root, NodeCount: c.count}, nil
}

// withAncestorPreservation marks every ancestor of a raw-filter match as
// force-visible, so filtered views keep the path from root to each match.
// Already force-visible entries from the caller are preserved.
func withAncestorPreservation(store *graph.Store, f Filters) Filters {
	if f.Connection == "" {
		f.Connection = ConnectionAll
	}
	if f.Connection == ConnectionAll && (f.Status == "" || f.Status == StatusAll) {
		return f // nothing filtered, nothing to preserve
	}

	force := make(map[string]bool, len(f.ForceVisible))
	for id := range f.ForceVisible {
		force[id] = true
	}

	bare := f
	bare.ForceVisible = nil
	for _, id := range store.IDs() {
		n, ok := store.Node(id)
		if !ok {
			continue
		}
		stats, known := store.Stats(id)
		if !bare.IsVisible(n, stats, known) {
			continue
		}
		for _, anc := range store.Ancestors(id) {
			force[anc] = true
		}
	}

	f.ForceVisible = force
	return f
}

type compiler struct {
	store   *graph.Store
	filters Filters
	visited map[string]bool
	count   int
}

// visit emits the render node for id, or nil when the node is deduplicated,
// dangling, or filtered. Cross-link rule: a node reachable from two parents
// is drawn once, under whichever parent reaches it first in child-iteration
// order; the visited set also makes actual cycles terminate silently.
// Filtered nodes hide their whole subtree unless an ancestor-preservation
// flag keeps them.
func (c *compiler) visit(id string, depth int) *Node {
	if c.visited[id] {
		return nil
	}
	n, ok := c.store.Node(id)
	if !ok {
		// Dangling child id: tolerated and skipped, never an error.
		return nil
	}
	stats, known := c.store.Stats(id)
	if !c.filters.IsVisible(n, stats, known) {
		return nil
	}

	c.visited[id] = true
	c.count++

	rn := &Node{
		ID:          n.ID,
		FriendlyID:  c.store.FriendlyID(n.ID),
		Name:        n.Name,
		Description: n.Description,
		Status:      n.Status,
		Stats:       stats,
		StatsKnown:  known,
		Depth:       depth,
	}

	// Children iterate in lexicographic id order. The backend returns
	// insertion order; sorting keeps sibling layout stable across
	// re-renders, it is not a semantic ordering.
	childIDs := append([]string(nil), n.Children...)
	sort.Strings(childIDs)
	for _, childID := range childIDs {
		if child := c.visit(childID, depth+1); child != nil {
			rn.Children = append(rn.Children, child)
		}
	}

	return rn
}

// renderLeaf builds a childless render node for single-node display.
func renderLeaf(store *graph.Store, n *model.Node, depth int) *Node {
	stats, known := store.Stats(n.ID)
	return &Node{
		ID:          n.ID,
		FriendlyID:  store.FriendlyID(n.ID),
		Name:        n.Name,
		Description: n.Description,
		Status:      n.Status,
		Stats:       stats,
		StatsKnown:  known,
		Depth:       depth,
	}
}

// Walk calls fn for every node in the tree in depth-first order.
func (t *Tree) Walk(fn func(*Node)) {
	var rec func(*Node)
	rec = func(n *Node) {
		if n == nil {
			return
		}
		fn(n)
		for _, c := range n.Children {
			rec(c)
		}
	}
	if t != nil {
		rec(t.Root)
	}
}

// Find returns the render node with the given id, or nil.
func (t *Tree) Find(id string) *Node {
	var found *Node
	t.Walk(func(n *Node) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}
