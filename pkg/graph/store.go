// Package graph owns the client-side mirror of the server-held node tree.
//
// The Store is created empty at session start, replaced wholesale by a full
// reload, and patched in place by single-entity mutations. It carries no
// locking of its own: the reconciler serializes all access behind its lock,
// and every mutation runs to completion before the next one starts.
package graph

import (
	"fmt"
	"sort"

	"github.com/tomvdbrandt/canopy/pkg/debug"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

// friendlyMinWidth is the minimum zero-padding width for friendly labels,
// so small trees still render aligned ids ("001", "002", ...).
const friendlyMinWidth = 3

// Store is the canonical in-memory mirror of the server tree.
type Store struct {
	nodes    map[string]*model.Node
	parentOf map[string]string
	stats    map[string]model.NodeStats
	friendly map[string]string

	rootID  string
	hasRoot bool

	// nextFriendly is the next sequential label index for locally created
	// nodes; recomputed from scratch on every full ingest.
	nextFriendly  int
	friendlyWidth int
}

// NewStore returns an empty store with no root.
func NewStore() *Store {
	s := &Store{}
	s.reset(0)
	return s
}

func (s *Store) reset(capHint int) {
	s.nodes = make(map[string]*model.Node, capHint)
	s.parentOf = make(map[string]string, capHint)
	s.stats = make(map[string]model.NodeStats, capHint)
	s.friendly = make(map[string]string, capHint)
	s.rootID = ""
	s.hasRoot = false
	s.nextFriendly = 1
	s.friendlyWidth = friendlyMinWidth
}

// IngestFullTree replaces the entire mirror with the server snapshot.
// The first element's id becomes the stable root for the session. Friendly
// labels are assigned by list order, 1-based and zero-padded. An empty
// snapshot leaves the store in the distinct "no root" state and returns
// false; callers surface that as an informational view, not an error.
func (s *Store) IngestFullTree(nodes []model.Node) bool {
	s.reset(len(nodes))
	if len(nodes) == 0 {
		return false
	}

	s.rootID = nodes[0].ID
	s.hasRoot = true
	s.friendlyWidth = labelWidth(len(nodes))

	for i := range nodes {
		n := nodes[i] // copy; the store owns its nodes
		if _, dup := s.nodes[n.ID]; dup {
			debug.Log("ingest: duplicate node id %s, keeping first", n.ID)
			continue
		}
		s.nodes[n.ID] = &n
		s.friendly[n.ID] = fmt.Sprintf("%0*d", s.friendlyWidth, s.nextFriendly)
		s.nextFriendly++
	}

	// Derive the parent index by scanning children lists in list order.
	// A cross-linked child has several candidate parents; the first
	// occurrence in traversal order wins and stays authoritative for
	// breadcrumb/ancestor purposes.
	for i := range nodes {
		p := nodes[i].ID
		if _, ok := s.nodes[p]; !ok {
			continue
		}
		for _, childID := range s.nodes[p].Children {
			if childID == p || childID == s.rootID {
				continue
			}
			if _, seen := s.parentOf[childID]; !seen {
				s.parentOf[childID] = p
			}
		}
	}

	return true
}

// HasRoot reports whether a full load has succeeded this session.
func (s *Store) HasRoot() bool { return s.hasRoot }

// RootID returns the stable root id. ok is false in the "no root" state.
func (s *Store) RootID() (string, bool) { return s.rootID, s.hasRoot }

// Len returns the number of nodes currently mirrored.
func (s *Store) Len() int { return len(s.nodes) }

// Node returns the mirrored node for id. The pointer is owned by the store;
// callers must treat it as read-only and go through ApplyLocalEdit for
// changes.
func (s *Store) Node(id string) (*model.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Parent returns the authoritative parent of id, if one was recorded.
// The root has no parent.
func (s *Store) Parent(id string) (string, bool) {
	p, ok := s.parentOf[id]
	return p, ok
}

// Ancestors returns the chain of ancestor ids from the nearest parent up to
// the root. The walk is cycle-guarded: a repeated id terminates it.
func (s *Store) Ancestors(id string) []string {
	var chain []string
	seen := map[string]bool{id: true}
	cur := id
	for {
		p, ok := s.parentOf[cur]
		if !ok || seen[p] {
			return chain
		}
		chain = append(chain, p)
		seen[p] = true
		cur = p
	}
}

// FriendlyID returns the cosmetic sequential label for id, or "" when the
// node is unknown. Friendly labels are recomputed on every full reload and
// must never be treated as stable identifiers.
func (s *Store) FriendlyID(id string) string { return s.friendly[id] }

// ApplyLocalCreate inserts a freshly created node under parentID. The
// interactive flow guarantees the parent exists; an unknown parent is still
// tolerated as an observable no-op (false) because a reload may have raced
// the creation.
func (s *Store) ApplyLocalCreate(parentID string, n model.Node) bool {
	parent, ok := s.nodes[parentID]
	if !ok {
		debug.Log("local create: parent %s not in store, skipping", parentID)
		return false
	}
	if _, exists := s.nodes[n.ID]; exists {
		debug.Log("local create: node %s already present, skipping", n.ID)
		return false
	}
	node := n
	s.nodes[node.ID] = &node
	if !parent.HasChild(node.ID) {
		parent.Children = append(parent.Children, node.ID)
	}
	if _, seen := s.parentOf[node.ID]; !seen {
		s.parentOf[node.ID] = parentID
	}
	s.friendly[node.ID] = fmt.Sprintf("%0*d", s.friendlyWidth, s.nextFriendly)
	s.nextFriendly++
	return true
}

// ApplyLocalEdit mutates content fields in place. Structure (children,
// parent links) is never altered, so sibling order is preserved. Returns
// false when id is not in the store.
func (s *Store) ApplyLocalEdit(id string, patch model.NodePatch) bool {
	n, ok := s.nodes[id]
	if !ok {
		debug.Log("local edit: node %s not in store, skipping", id)
		return false
	}
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.Description != nil {
		n.Description = *patch.Description
	}
	if patch.Status != nil {
		n.Status = *patch.Status
	}
	return true
}

// ApplyLocalDelete removes the node and unlinks it from its recorded parent.
// Descendants are not removed client-side; the backend owns cascading
// deletes and any orphans disappear on the next full reload. Returns false
// when id is not in the store.
func (s *Store) ApplyLocalDelete(id string) bool {
	if _, ok := s.nodes[id]; !ok {
		debug.Log("local delete: node %s not in store, skipping", id)
		return false
	}
	if parentID, ok := s.parentOf[id]; ok {
		if parent, ok := s.nodes[parentID]; ok {
			parent.RemoveChild(id)
		}
	}
	delete(s.nodes, id)
	delete(s.parentOf, id)
	delete(s.stats, id)
	delete(s.friendly, id)
	return true
}

// Stats returns the cached connection stats for id. ok is false when stats
// have not been fetched yet; visibility filtering fails open in that case.
func (s *Store) Stats(id string) (model.NodeStats, bool) {
	st, ok := s.stats[id]
	return st, ok
}

// SetStats caches stats for id with an apply-if-still-present guard: a stale
// response for a node removed by an intervening delete or reload is dropped.
func (s *Store) SetStats(id string, st model.NodeStats) bool {
	if _, ok := s.nodes[id]; !ok {
		debug.Log("stats: node %s gone before stats arrived, dropping", id)
		return false
	}
	s.stats[id] = st
	return true
}

// SetAllStats bulk-applies a stats snapshot, skipping ids no longer present.
// Returns the number of entries applied.
func (s *Store) SetAllStats(all map[string]model.NodeStats) int {
	applied := 0
	for id, st := range all {
		if s.SetStats(id, st) {
			applied++
		}
	}
	return applied
}

// IDs returns every mirrored node id in lexicographic order. Deterministic
// iteration keeps search target selection and render passes stable.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// labelWidth returns the zero-pad width for n friendly labels.
func labelWidth(n int) int {
	w := 1
	for n >= 10 {
		n /= 10
		w++
	}
	if w < friendlyMinWidth {
		w = friendlyMinWidth
	}
	return w
}
