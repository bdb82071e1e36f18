// Package analysis computes structural metrics over the graph mirror:
// local in/out degrees, density, and cross-link cycle detection. The local
// degrees double as a sanity check against the server's connection stats and
// feed the insights footer and export summaries.
package analysis

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

// maxCycleReports caps the number of cyclic groups carried in a Result. A
// handful is enough to warn the user.
const maxCycleReports = 10

// Result holds the metrics of one analysis pass over the mirror.
type Result struct {
	NodeCount int
	EdgeCount int
	Density   float64

	// OutDegree counts children per node; InDegree counts how many parents
	// reference a node. An InDegree above one marks a cross-linked node.
	OutDegree map[string]int
	InDegree  map[string]int

	// Cycles lists up to maxCycleReports groups of mutually reachable ids,
	// each sorted. Groups, not elementary cycles: a dense cross-linked
	// graph has combinatorially many of the latter.
	Cycles [][]string
}

// HasCycles reports whether any cycle was found.
func (r *Result) HasCycles() bool { return len(r.Cycles) > 0 }

// CrossLinked returns the ids referenced by more than one parent, sorted.
func (r *Result) CrossLinked() []string {
	var ids []string
	for id, deg := range r.InDegree {
		if deg > 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Analyze builds a directed graph from the mirror's children lists and
// computes degrees, density, and cycles. Dangling child references and
// self-loops are skipped, matching the renderer's tolerance.
func Analyze(store *graph.Store) *Result {
	ids := store.IDs()
	res := &Result{
		NodeCount: len(ids),
		OutDegree: make(map[string]int, len(ids)),
		InDegree:  make(map[string]int, len(ids)),
	}
	if len(ids) == 0 {
		return res
	}

	// Stable string id <-> int64 node id mapping for gonum.
	index := make(map[string]int64, len(ids))
	reverse := make(map[int64]string, len(ids))
	g := simple.NewDirectedGraph()
	for i, id := range ids {
		nid := int64(i)
		index[id] = nid
		reverse[nid] = id
		g.AddNode(simple.Node(nid))
		res.InDegree[id] = 0
		res.OutDegree[id] = 0
	}

	for _, id := range ids {
		n, ok := store.Node(id)
		if !ok {
			continue
		}
		for _, childID := range n.Children {
			to, ok := index[childID]
			if !ok || childID == id {
				continue
			}
			from := index[id]
			if g.HasEdgeFromTo(from, to) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
			res.OutDegree[id]++
			res.InDegree[childID]++
			res.EdgeCount++
		}
	}

	if res.NodeCount > 1 {
		res.Density = float64(res.EdgeCount) / float64(res.NodeCount*(res.NodeCount-1))
	}

	// Tarjan runs in linear time; any component with more than one node
	// contains a cycle. Self-loops were already excluded above.
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		if len(res.Cycles) >= maxCycleReports {
			break
		}
		group := make([]string, 0, len(scc))
		for _, n := range scc {
			group = append(group, reverse[n.ID()])
		}
		sort.Strings(group)
		res.Cycles = append(res.Cycles, group)
	}

	return res
}

// StatsMismatch records a node whose server connection stats are zero even
// though the local structure links it to other nodes. That usually means the
// bulk stats snapshot predates a recent relation change.
type StatsMismatch struct {
	ID          string
	LocalIn     int
	LocalOut    int
	ServerStats model.NodeStats
}

// CompareStats cross-checks server stats against the locally derived
// degrees. Only nodes with fetched stats are considered; the result is
// sorted by id.
func CompareStats(res *Result, store *graph.Store) []StatsMismatch {
	var out []StatsMismatch
	for _, id := range sortedKeys(res.OutDegree) {
		st, known := store.Stats(id)
		if !known {
			continue
		}
		localIn, localOut := res.InDegree[id], res.OutDegree[id]
		if (st.Inbound == 0 && localIn > 0) || (st.Outbound == 0 && localOut > 0) {
			out = append(out, StatsMismatch{ID: id, LocalIn: localIn, LocalOut: localOut, ServerStats: st})
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
