// Package reconcile decides, per mutation, between a full reload of the
// graph mirror and a local incremental patch, and owns the focus/viewport
// contract across re-renders.
//
// The policy, in one place rather than spread across per-mutation branches:
//
//	relation add/remove   -> full reload (parent index and stats are global)
//	content edit          -> local patch from the nearest stable ancestor
//	create                -> optimistic local patch, full reload on failure
//	delete                -> local patch of the parent subtree; full reload
//	                         when the parent is the root or unknown
//
// Local patch is always the best-effort fast path and full reload the
// correctness fallback, never the reverse.
//
// The reconciler is safe for concurrent use: network calls run outside the
// lock, while every store mutation, render pass, and focus/task bookkeeping
// step is serialized behind it, so presentation-layer goroutines can overlap
// a reload with a refilter.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/tomvdbrandt/canopy/pkg/debug"
	"github.com/tomvdbrandt/canopy/pkg/gateway"
	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
	"github.com/tomvdbrandt/canopy/pkg/render"
	"github.com/tomvdbrandt/canopy/pkg/statecache"
)

// Outcome is the result of one reconciled mutation: the fresh render tree
// plus the viewport instruction for the presentation layer. Exactly one of
// FocusNode / PreserveViewport is honored per render; FocusNode requests are
// one-shot and already cleared by the time the outcome is returned.
type Outcome struct {
	Tree *render.Tree

	// FocusNode, when non-empty, asks the presentation layer to scroll the
	// node into the viewport center and apply a transient highlight.
	FocusNode string

	// PreserveViewport asks the presentation layer to restore the scroll
	// position saved before the re-render.
	PreserveViewport bool

	// FullReload records whether the store was rebuilt from the server.
	FullReload bool

	// NoRoot is set when the server tree is empty. Distinct from a tree
	// emptied by filters so the caller shows "no nodes", not "no match".
	NoRoot bool
}

// Task is a post-render continuation (stats fetch-and-patch, layout metric
// recalculation). Tasks run after a render commits and must guard their own
// writes with apply-if-still-present checks.
type Task func(ctx context.Context) error

// Reconciler coordinates the store, the gateway, and the renderer.
type Reconciler struct {
	gw    gateway.Gateway
	cache *statecache.Cache // optional

	// mu guards the store, filters, focus request, and task queue. Gateway
	// calls never run under it.
	mu      sync.Mutex
	store   *graph.Store
	filters render.Filters

	pendingFocus string
	tasks        []Task
}

// New creates a reconciler. cache may be nil when persistence is disabled.
func New(store *graph.Store, gw gateway.Gateway, cache *statecache.Cache) *Reconciler {
	return &Reconciler{
		store:   store,
		gw:      gw,
		cache:   cache,
		filters: render.DefaultFilters(),
	}
}

// SetFilters replaces the active filters for subsequent renders.
func (r *Reconciler) SetFilters(f render.Filters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = f
}

// Filters returns the active filters.
func (r *Reconciler) Filters() render.Filters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filters
}

// Store exposes the mirror for single-goroutine consumers (analysis,
// export, headless paths). Concurrent callers go through the locked
// accessors instead.
func (r *Reconciler) Store() *graph.Store { return r.store }

// Parent reports the authoritative parent of id from the mirror.
func (r *Reconciler) Parent(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Parent(id)
}

// RequestFocus arms a one-shot focus request consumed by the next render.
func (r *Reconciler) RequestFocus(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingFocus = id
}

// LoadCached ingests the last cached tree snapshot, if any is fresh, and
// renders it with the current filters. It never touches the network: the
// caller paints this frame while the first real reload is in flight, and
// that reload replaces it wholesale. ok is false when no usable snapshot
// exists.
func (r *Reconciler) LoadCached() (Outcome, bool) {
	if r.cache == nil {
		return Outcome{}, false
	}
	nodes, ok, err := r.cache.LoadTree()
	if err != nil || !ok {
		return Outcome{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.store.IngestFullTree(nodes) {
		return Outcome{}, false
	}
	out, err := r.renderOutcome(false)
	if err != nil {
		return Outcome{}, false
	}
	debug.Log("painted %d cached nodes before first fetch", len(nodes))
	return out, true
}

// FullReload refetches the whole tree, rebuilds the mirror, and re-renders
// from the root. An empty server tree is not an error: the outcome carries a
// nil-rooted tree and the caller shows the "no nodes" state.
func (r *Reconciler) FullReload(ctx context.Context) (Outcome, error) {
	defer debug.LogEnterExit("reconcile.FullReload")()

	nodes, err := r.gw.FetchTree(ctx)
	if err != nil {
		return Outcome{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.IngestFullTree(nodes) {
		r.pendingFocus = ""
		return Outcome{Tree: &render.Tree{}, FullReload: true, NoRoot: true}, nil
	}

	if r.cache != nil {
		if err := r.cache.SaveTree(nodes); err != nil {
			debug.Log("reload: caching tree failed: %v", err)
		}
	}

	r.enqueueStatsRefreshLocked()
	return r.renderOutcome(true)
}

// Refilter re-renders with the current filters without touching the store.
// Used when the user changes filter or search state, and when freshly
// applied stats must re-evaluate a fail-open connection filter.
func (r *Reconciler) Refilter() (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renderOutcome(false)
}

// CreateNode performs the optimistic create fast path: the node is created
// remotely, linked under parentID, and appended to the local mirror
// immediately. If the local patch cannot be applied (the parent vanished
// under a racing reload), it falls back to a full reload.
func (r *Reconciler) CreateNode(ctx context.Context, parentID, name, description string, status model.Status) (Outcome, error) {
	id, err := r.gw.CreateNode(ctx, name, description, status)
	if err != nil {
		return Outcome{}, err
	}
	if err := r.gw.CreateRelation(ctx, parentID, id); err != nil && !errors.Is(err, gateway.ErrConflict) {
		return Outcome{}, err
	}
	r.invalidateTreeCache()

	node := model.Node{ID: id, Name: name, Description: description, Status: status}
	r.mu.Lock()
	r.pendingFocus = id
	if !r.store.ApplyLocalCreate(parentID, node) {
		r.mu.Unlock()
		debug.Log("create: optimistic patch failed for parent %s, reloading", parentID)
		return r.FullReload(ctx)
	}
	out, err := r.renderOutcome(false)
	r.mu.Unlock()
	return out, err
}

// EditNode applies a pure content edit: remote update, then an in-place
// local patch. No structure changes, so no reload; the edited node keeps its
// position among its siblings and regains focus without a viewport reset.
func (r *Reconciler) EditNode(ctx context.Context, id string, patch model.NodePatch) (Outcome, error) {
	if patch.IsZero() {
		return r.Refilter()
	}

	r.mu.Lock()
	n, ok := r.store.Node(id)
	r.mu.Unlock()
	if !ok {
		// Racing reload removed the node; settle with server state.
		return r.FullReload(ctx)
	}

	name, description, status := n.Name, n.Description, n.Status
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.Status != nil {
		status = *patch.Status
	}
	if err := r.gw.UpdateNode(ctx, id, name, description, status); err != nil {
		return Outcome{}, err
	}
	r.invalidateTreeCache()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.ApplyLocalEdit(id, patch)
	r.pendingFocus = id
	return r.renderOutcome(false)
}

// DeleteNode removes the node remotely and patches the parent subtree
// locally. When the parent is the root or unknown, the structural context is
// ambiguous and a full reload settles it. A delete never focuses: any stale
// focus request is dropped so the viewport stays put.
func (r *Reconciler) DeleteNode(ctx context.Context, id string) (Outcome, error) {
	if err := r.gw.DeleteNode(ctx, id); err != nil {
		return Outcome{}, err
	}
	r.invalidateTreeCache()

	r.mu.Lock()
	parentID, hasParent := r.store.Parent(id)
	rootID, _ := r.store.RootID()
	r.store.ApplyLocalDelete(id)
	if !hasParent || parentID == rootID {
		r.mu.Unlock()
		return r.FullReload(ctx)
	}

	r.pendingFocus = ""
	out, err := r.renderOutcome(false)
	r.mu.Unlock()
	return out, err
}

// Link adds a relation. Relations change the derived parent index and the
// inbound/outbound stats globally, which are expensive to patch correctly
// piecemeal, so this always reloads. An already-existing relation is
// success: the desired end state holds and the duplicate is suppressed.
func (r *Reconciler) Link(ctx context.Context, parentID, childID string) (Outcome, error) {
	if err := r.gw.CreateRelation(ctx, parentID, childID); err != nil && !errors.Is(err, gateway.ErrConflict) {
		return Outcome{}, err
	}
	r.invalidateTreeCache()
	r.RequestFocus(childID)
	return r.FullReload(ctx)
}

// Unlink removes a relation; structural, so always a full reload.
func (r *Reconciler) Unlink(ctx context.Context, parentID, childID string) (Outcome, error) {
	if err := r.gw.DeleteRelation(ctx, parentID, childID); err != nil {
		return Outcome{}, err
	}
	r.invalidateTreeCache()
	return r.FullReload(ctx)
}

// RecordClick forwards a click event; counter updates surface on the next
// stats refresh, so no re-render happens here.
func (r *Reconciler) RecordClick(ctx context.Context, sourceID, targetID string) error {
	return r.gw.RecordClick(ctx, sourceID, targetID)
}

// Enqueue adds a post-render task.
func (r *Reconciler) Enqueue(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

// RunPendingTasks drains the post-render queue in order. Task errors are
// logged and do not stop the drain; a task's writes are themselves guarded
// by apply-if-still-present checks in the store. The tasks run outside the
// lock so a slow stats fetch never blocks a refilter.
func (r *Reconciler) RunPendingTasks(ctx context.Context) {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, t := range tasks {
		if err := t(ctx); err != nil {
			debug.Log("post-render task: %v", err)
		}
	}
}

// PendingTaskCount reports how many tasks await the next drain.
func (r *Reconciler) PendingTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// enqueueStatsRefreshLocked schedules the bulk stats fetch-and-patch that
// follows every full reload. The caller holds r.mu; the task itself fetches
// unlocked and only takes the lock to apply. Stale entries for since-removed
// nodes are dropped by the store's apply guard.
func (r *Reconciler) enqueueStatsRefreshLocked() {
	r.tasks = append(r.tasks, func(ctx context.Context) error {
		stats, err := r.gw.FetchStatsAll(ctx)
		if err != nil {
			return err
		}
		r.mu.Lock()
		applied := r.store.SetAllStats(stats)
		r.mu.Unlock()
		debug.Log("stats refresh: applied %d/%d entries", applied, len(stats))
		return nil
	})
}

func (r *Reconciler) invalidateTreeCache() {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateTree(); err != nil {
		debug.Log("cache invalidation failed: %v", err)
	}
}

// renderOutcome runs a render pass and settles the focus/viewport contract:
// an armed focus request wins and is cleared (one-shot); otherwise the saved
// viewport is preserved. The request is consumed even when the render fails,
// so it can never leak into a later unrelated render. Caller holds r.mu.
func (r *Reconciler) renderOutcome(fullReload bool) (Outcome, error) {
	focus := r.pendingFocus
	r.pendingFocus = ""

	tree, err := render.Render(r.store, r.filters)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Tree: tree, FullReload: fullReload}
	if focus != "" && tree.Find(focus) != nil {
		out.FocusNode = focus
	} else {
		out.PreserveViewport = true
	}
	return out, nil
}
