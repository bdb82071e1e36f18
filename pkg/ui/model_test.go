package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomvdbrandt/canopy/pkg/config"
	"github.com/tomvdbrandt/canopy/pkg/gateway"
	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
	"github.com/tomvdbrandt/canopy/pkg/reconcile"
	"github.com/tomvdbrandt/canopy/pkg/render"
	"github.com/tomvdbrandt/canopy/pkg/statecache"
)

// stripANSI removes ANSI escape sequences for plain-text assertions.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

// stubGateway serves a fixed tree; mutations are accepted and ignored.
type stubGateway struct {
	tree []model.Node
}

func (s *stubGateway) FetchTree(ctx context.Context) ([]model.Node, error) { return s.tree, nil }
func (s *stubGateway) FetchStatsAll(ctx context.Context) (map[string]model.NodeStats, error) {
	return map[string]model.NodeStats{}, nil
}
func (s *stubGateway) FetchInboundStats(ctx context.Context, id string) (model.ConnectionStats, error) {
	return model.ConnectionStats{}, nil
}
func (s *stubGateway) FetchOutboundStats(ctx context.Context, id string) (model.ConnectionStats, error) {
	return model.ConnectionStats{}, nil
}
func (s *stubGateway) CreateNode(ctx context.Context, name, description string, status model.Status) (string, error) {
	return "srv-new", nil
}
func (s *stubGateway) UpdateNode(ctx context.Context, id, name, description string, status model.Status) error {
	return nil
}
func (s *stubGateway) DeleteNode(ctx context.Context, id string) error { return nil }
func (s *stubGateway) CreateRelation(ctx context.Context, parentID, childID string) error {
	return nil
}
func (s *stubGateway) DeleteRelation(ctx context.Context, parentID, childID string) error {
	return nil
}
func (s *stubGateway) RecordClick(ctx context.Context, sourceID, targetID string) error { return nil }
func (s *stubGateway) SearchNodes(ctx context.Context, term string) ([]model.Node, error) {
	return nil, nil
}

var _ gateway.Gateway = (*stubGateway)(nil)

func testNodes() []model.Node {
	return []model.Node{
		{ID: "root", Name: "Root", Status: model.StatusNew, Children: []string{"a", "b"}},
		{ID: "a", Name: "Alpha", Status: model.StatusProcessing, Children: []string{"c"}},
		{ID: "b", Name: "Beta", Status: model.StatusNew},
		{ID: "c", Name: "Gamma", Status: model.StatusCompleted},
	}
}

func newTestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(nil))
}

// newTestModel builds a sized model with the tree already loaded.
func newTestModel(t *testing.T, nodes []model.Node) Model {
	t.Helper()
	r := reconcile.New(graph.NewStore(), &stubGateway{tree: nodes}, nil)
	m := New(r, nil, newTestTheme(), config.DefaultConfig().UI)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	out, err := r.FullReload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	next, _ = m.Update(outcomeMsg{out: out})
	return next.(Model)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(m Model, key string) Model {
	next, _ := m.Update(keyMsg(key))
	return next.(Model)
}

func TestFlattenDepthFirst(t *testing.T) {
	m := newTestModel(t, testNodes())

	var got []string
	for _, n := range m.flat {
		got = append(got, n.ID)
	}
	want := []string{"root", "a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("flat = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flat[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBranchPrefixes(t *testing.T) {
	m := newTestModel(t, testNodes())

	if m.prefixes[0] != "" {
		t.Errorf("root prefix = %q, want empty", m.prefixes[0])
	}
	// a is not the last child of root, b is.
	if !strings.HasPrefix(m.prefixes[1], "├─") {
		t.Errorf("prefix for a = %q", m.prefixes[1])
	}
	if !strings.HasPrefix(m.prefixes[3], "└─") {
		t.Errorf("prefix for b = %q", m.prefixes[3])
	}
}

func TestCursorMovement(t *testing.T) {
	m := newTestModel(t, testNodes())

	if m.cursor != 0 {
		t.Fatalf("initial cursor = %d", m.cursor)
	}
	m = press(m, "j")
	m = press(m, "j")
	if m.cursor != 2 {
		t.Errorf("cursor after jj = %d, want 2", m.cursor)
	}
	m = press(m, "k")
	if m.cursor != 1 {
		t.Errorf("cursor after k = %d, want 1", m.cursor)
	}
	m = press(m, "G")
	if m.cursor != len(m.flat)-1 {
		t.Errorf("cursor after G = %d", m.cursor)
	}
	m = press(m, "g")
	if m.cursor != 0 {
		t.Errorf("cursor after g = %d", m.cursor)
	}
	// k at the top stays put.
	m = press(m, "k")
	if m.cursor != 0 {
		t.Errorf("cursor after k at top = %d", m.cursor)
	}
}

func TestViewShowsTree(t *testing.T) {
	m := newTestModel(t, testNodes())
	view := stripANSI(m.View())

	for _, want := range []string{"canopy", "4 nodes", "Root", "Alpha", "Beta", "Gamma", "001", "002"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewNoRootState(t *testing.T) {
	m := newTestModel(t, nil)
	view := stripANSI(m.View())

	if !strings.Contains(view, "No nodes yet") {
		t.Errorf("empty server tree must show the no-nodes state, got:\n%s", view)
	}
	if strings.Contains(view, "No matches") {
		t.Error("no-root state must not read as a filter miss")
	}
}

func TestViewNoMatchState(t *testing.T) {
	m := newTestModel(t, testNodes())

	f := render.DefaultFilters()
	f.NameQuery = "zzzz"
	m.reconciler.SetFilters(f)
	m, _ = m.refilter(false)
	view := stripANSI(m.View())

	if !strings.Contains(view, "No matches") {
		t.Errorf("filtered-empty tree must show the no-match state, got:\n%s", view)
	}
	if strings.Contains(view, "No nodes yet") {
		t.Error("filter miss must not read as an empty server tree")
	}
}

func TestSearchKeysUpdateFilters(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "/")
	if m.mode != modeSearchName {
		t.Fatalf("mode = %v, want search", m.mode)
	}
	m = press(m, "g")
	m = press(m, "a")
	if got := m.reconciler.Filters().NameQuery; got != "ga" {
		t.Errorf("NameQuery = %q, want ga", got)
	}
	// Two characters: single-node display of Gamma.
	if m.tree == nil || !m.tree.SingleNode || m.tree.Root.ID != "c" {
		t.Errorf("tree = %+v, want single node c", m.tree)
	}

	m = press(m, "esc")
	if m.mode != modeBrowse {
		t.Errorf("esc must leave search mode, mode = %v", m.mode)
	}
	if m.reconciler.Filters().NameQuery != "" {
		t.Error("esc must clear the query")
	}
	if m.tree.NodeCount != 4 {
		t.Errorf("tree after clearing search has %d nodes", m.tree.NodeCount)
	}
}

func TestOneCharNameQueryKeepsFullTree(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "/")
	m = press(m, "g")
	if m.tree.SingleNode {
		t.Error("one-character name query must not switch display modes")
	}
	if m.tree.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4", m.tree.NodeCount)
	}
}

func TestStatusFilterCycling(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "s")
	if got := m.reconciler.Filters().Status; got != "new" {
		t.Errorf("first cycle = %q, want new", got)
	}
	m = press(m, "s")
	m = press(m, "s")
	m = press(m, "s")
	if got := m.reconciler.Filters().Status; got != render.StatusAll {
		t.Errorf("full cycle = %q, want all", got)
	}
}

func TestConnectionFilterCycling(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "c")
	if got := m.reconciler.Filters().Connection; got != render.ConnectionInbound {
		t.Errorf("first cycle = %v", got)
	}
	m = press(m, "c")
	if got := m.reconciler.Filters().Connection; got != render.ConnectionOutbound {
		t.Errorf("second cycle = %v", got)
	}
	m = press(m, "c")
	if got := m.reconciler.Filters().Connection; got != render.ConnectionAll {
		t.Errorf("third cycle = %v", got)
	}
}

func TestApplyOutcomeFocusMovesCursor(t *testing.T) {
	m := newTestModel(t, testNodes())

	m.reconciler.RequestFocus("b")
	out, err := m.reconciler.Refilter()
	if err != nil {
		t.Fatal(err)
	}
	next, _ := m.applyOutcome(out)
	m = next.(Model)

	if m.highlightID != "b" {
		t.Errorf("highlightID = %q, want b", m.highlightID)
	}
	if m.flat[m.cursor].ID != "b" {
		t.Errorf("cursor on %q, want b", m.flat[m.cursor].ID)
	}
}

func TestErrorStateAndRetry(t *testing.T) {
	m := newTestModel(t, testNodes())

	next, _ := m.Update(errMsg{err: gateway.ErrUnavailable})
	m = next.(Model)
	if m.mode != modeError {
		t.Fatalf("mode = %v, want error", m.mode)
	}
	view := stripANSI(m.View())
	if !strings.Contains(view, "unavailable") {
		t.Errorf("error view missing message:\n%s", view)
	}
	if !strings.Contains(view, "r retry") {
		t.Error("error view must offer retry")
	}

	// r leaves the error state and issues a reload command.
	next, cmd := m.Update(keyMsg("r"))
	m = next.(Model)
	if m.mode == modeError {
		t.Error("retry must leave the error state")
	}
	if cmd == nil {
		t.Error("retry must trigger a reload")
	}
}

func TestDetailModeEnterAndBack(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "j") // cursor on a
	m = press(m, "enter")
	if m.mode != modeDetail {
		t.Fatalf("mode = %v, want detail", m.mode)
	}
	m = press(m, "esc")
	if m.mode != modeBrowse {
		t.Errorf("esc must leave detail mode, mode = %v", m.mode)
	}
}

func TestFormOpensForCreateAndEdit(t *testing.T) {
	m := newTestModel(t, testNodes())

	m = press(m, "n")
	if m.mode != modeForm || m.form == nil || m.form.kind != formCreate {
		t.Fatalf("n must open the create form, mode=%v", m.mode)
	}
	m = press(m, "esc")
	if m.mode != modeBrowse || m.form != nil {
		t.Fatal("esc must close the form")
	}

	m = press(m, "e")
	if m.mode != modeForm || m.form == nil || m.form.kind != formEdit {
		t.Fatalf("e must open the edit form, mode=%v", m.mode)
	}
	if m.form.name != "Root" {
		t.Errorf("edit form name = %q, want Root", m.form.name)
	}
}

func TestStatsAppliedRefilters(t *testing.T) {
	m := newTestModel(t, testNodes())

	f := render.DefaultFilters()
	f.Connection = render.ConnectionInbound
	m.reconciler.SetFilters(f)

	// Stats arrive showing b has no inbound connections.
	m.reconciler.Store().SetAllStats(map[string]model.NodeStats{
		"root": {Inbound: 1}, "a": {Inbound: 1}, "b": {}, "c": {Inbound: 1},
	})
	next, _ := m.Update(statsAppliedMsg{})
	m = next.(Model)

	if m.tree.Find("b") != nil {
		t.Error("stats application must re-evaluate the connection filter")
	}
}

func TestStatsBadgeRespectsShowStatsPreference(t *testing.T) {
	m := newTestModel(t, testNodes())
	m.reconciler.Store().SetAllStats(map[string]model.NodeStats{
		"a": {Inbound: 2, Outbound: 1},
	})
	m, _ = m.refilter(false)
	if !strings.Contains(stripANSI(m.View()), "[↓2 ↑1]") {
		t.Fatal("stats badge missing with show_stats enabled")
	}

	m.showStats = false
	m.refreshViewport()
	if strings.Contains(stripANSI(m.View()), "[↓") {
		t.Error("stats badge shown with show_stats disabled")
	}
}

func tallNodes(n int) []model.Node {
	nodes := []model.Node{{ID: "root", Name: "Root", Status: model.StatusNew}}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%02d", i)
		nodes[0].Children = append(nodes[0].Children, id)
		nodes = append(nodes, model.Node{ID: id, Name: "Node " + id, Status: model.StatusNew})
	}
	return nodes
}

func TestRestoresPersistedViewportOffset(t *testing.T) {
	cache, err := statecache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	if err := cache.SaveViewport(statecache.Viewport{Zoom: 1.0, OffsetY: 5}); err != nil {
		t.Fatal(err)
	}

	r := reconcile.New(graph.NewStore(), &stubGateway{tree: tallNodes(40)}, cache)
	m := New(r, cache, newTestTheme(), config.DefaultConfig().UI)
	if !m.pendingRestore {
		t.Fatal("persisted offset not picked up at construction")
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	out, err := r.FullReload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	next, _ = m.Update(outcomeMsg{out: out})
	m = next.(Model)

	if m.viewport.YOffset != 5 {
		t.Errorf("YOffset = %d, want the persisted 5", m.viewport.YOffset)
	}
	if m.pendingRestore {
		t.Error("restore must be one-shot")
	}
}

func TestTruncateCells(t *testing.T) {
	if got := truncateCells("hello", 10, "…"); got != "hello" {
		t.Errorf("no-op truncate = %q", got)
	}
	got := truncateCells("hello world", 8, "…")
	if got != "hello w…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncateCells("anything", 0, "…"); got != "" {
		t.Errorf("zero width = %q", got)
	}
}

func TestStatusGlyphs(t *testing.T) {
	if StatusGlyph(model.StatusNew) == StatusGlyph(model.StatusCompleted) {
		t.Error("statuses must have distinct glyphs")
	}
	if StatusGlyph(model.StatusProcessing) != "◐" {
		t.Errorf("processing glyph = %q", StatusGlyph(model.StatusProcessing))
	}
}
