// Package ui is the terminal presentation layer. It consumes the pure
// render tree produced by pkg/render and never reaches into the graph
// mirror directly for drawing; mutations go through the reconciler.
package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tomvdbrandt/canopy/pkg/config"
	"github.com/tomvdbrandt/canopy/pkg/debug"
	"github.com/tomvdbrandt/canopy/pkg/reconcile"
	"github.com/tomvdbrandt/canopy/pkg/render"
	"github.com/tomvdbrandt/canopy/pkg/statecache"
)

// mode is the top-level UI state.
type mode int

const (
	modeBrowse mode = iota
	modeSearchName
	modeSearchID
	modeForm
	modeDetail
	modeError
)

// Model is the bubbletea model for the canopy client.
type Model struct {
	reconciler *reconcile.Reconciler
	cache      *statecache.Cache // may be nil
	theme      Theme
	showStats  bool

	mode mode
	tree *render.Tree
	flat []*render.Node // depth-first flattened visible nodes
	// prefixes holds the tree-branch prefix per flat row, rebuilt with flat.
	prefixes []string
	cursor   int
	noRoot   bool

	viewport viewport.Model
	search   textinput.Model
	form     *nodeForm
	detail   string // glamour-rendered description

	// Exactly one of highlightID / a preserved offset is applied per
	// re-render; focus requests are one-shot.
	highlightID   string
	savedOffset   int
	statusMessage string

	// restoreOffset carries the scroll position persisted by the previous
	// session; applied once on the first unfocused render.
	restoreOffset  int
	pendingRestore bool

	err    error
	width  int
	height int
	ready  bool
}

// New builds the UI model. cache may be nil.
func New(r *reconcile.Reconciler, cache *statecache.Cache, theme Theme, prefs config.UIConfig) Model {
	search := textinput.New()
	search.Prompt = "/"
	search.CharLimit = 80

	m := Model{
		reconciler: r,
		cache:      cache,
		theme:      theme,
		showStats:  prefs.ShowStats,
		search:     search,
	}
	if cache != nil {
		if v, ok, _ := cache.LoadViewport(); ok && v.OffsetY > 0 {
			m.restoreOffset = v.OffsetY
			m.pendingRestore = true
		}
	}
	return m
}

// Init paints the cached snapshot first, if one is fresh, then fetches the
// real tree; the reload replaces the cached frame wholesale when it lands.
func (m Model) Init() tea.Cmd {
	r := m.reconciler
	cached := func() tea.Msg {
		if out, ok := r.LoadCached(); ok {
			return outcomeMsg{out: out}
		}
		return nil
	}
	return tea.Sequence(cached, outcomeCmd(r.FullReload))
}

// Update is the single writer for all UI state; store mutation is
// serialized inside the reconciler, so command goroutines may overlap it.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerLines := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerLines-1, 1))
		m.ready = true
		m.refreshViewport()
		return m, nil

	case outcomeMsg:
		return m.applyOutcome(msg.out)

	case statsAppliedMsg:
		// Stats may flip a fail-open connection filter; refilter and
		// keep the viewport where it was.
		out, err := m.reconciler.Refilter()
		if err != nil {
			return m.fail(err)
		}
		out.PreserveViewport = true
		return m.applyOutcome(out)

	case errMsg:
		return m.fail(msg.err)

	case clearHighlightMsg:
		m.highlightID = ""
		m.refreshViewport()
		return m, nil

	case configChangedMsg:
		m.statusMessage = "config reloaded"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode == modeForm && m.form != nil {
		cmd := m.form.update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSearchName, modeSearchID:
		return m.handleSearchKey(msg)
	case modeForm:
		return m.handleFormKey(msg)
	case modeDetail:
		switch msg.String() {
		case "esc", "q", "enter":
			m.mode = modeBrowse
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case modeError:
		switch msg.String() {
		case "r":
			m.mode = modeBrowse
			m.err = nil
			return m, outcomeCmd(m.reconciler.FullReload)
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}
	return m.handleBrowseKey(msg)
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.persistViewport()
		return m, tea.Quit

	case "j", "down":
		if m.cursor < len(m.flat)-1 {
			m.cursor++
			m.ensureCursorVisible()
			m.refreshViewport()
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
			m.refreshViewport()
		}
	case "g":
		m.cursor = 0
		m.viewport.GotoTop()
		m.refreshViewport()
	case "G":
		if len(m.flat) > 0 {
			m.cursor = len(m.flat) - 1
		}
		m.viewport.GotoBottom()
		m.refreshViewport()

	case "r":
		return m, outcomeCmd(m.reconciler.FullReload)

	case "/":
		m.mode = modeSearchName
		m.search.Prompt = "/"
		m.search.SetValue("")
		return m, m.search.Focus()
	case "#":
		m.mode = modeSearchID
		m.search.Prompt = "#"
		m.search.SetValue("")
		return m, m.search.Focus()

	case "s":
		return m.cycleStatusFilter()
	case "c":
		return m.cycleConnectionFilter()

	case "esc":
		// Clear search and filters.
		f := render.DefaultFilters()
		m.reconciler.SetFilters(f)
		return m.refilter(true)

	case "n":
		if n := m.selected(); n != nil {
			m.form = newCreateForm(n.ID, n.Name)
			m.mode = modeForm
			return m, m.form.init()
		}
	case "e":
		if n := m.selected(); n != nil {
			m.form = newEditForm(n)
			m.mode = modeForm
			return m, m.form.init()
		}
	case "d":
		if n := m.selected(); n != nil {
			id := n.ID
			return m, outcomeCmd(func(ctx context.Context) (reconcile.Outcome, error) {
				return m.reconciler.DeleteNode(ctx, id)
			})
		}
	case "L":
		if n := m.selected(); n != nil {
			m.form = newLinkForm(n.ID, n.Name)
			m.mode = modeForm
			return m, m.form.init()
		}
	case "U":
		if n := m.selected(); n != nil {
			if parentID, ok := m.reconciler.Parent(n.ID); ok {
				childID := n.ID
				return m, outcomeCmd(func(ctx context.Context) (reconcile.Outcome, error) {
					return m.reconciler.Unlink(ctx, parentID, childID)
				})
			}
			m.statusMessage = "node has no recorded parent"
		}

	case "y":
		if n := m.selected(); n != nil {
			if err := clipboard.WriteAll(n.ID); err != nil {
				m.statusMessage = "clipboard unavailable"
			} else {
				m.statusMessage = "copied " + n.ID
			}
		}

	case "enter":
		if n := m.selected(); n != nil {
			m.detail = renderDetail(n, m.width)
			m.mode = modeDetail
			// Clicking through to a node feeds the connection stats.
			if parentID, ok := m.reconciler.Parent(n.ID); ok {
				src, dst := parentID, n.ID
				r := m.reconciler
				return m, func() tea.Msg {
					ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
					defer cancel()
					if err := r.RecordClick(ctx, src, dst); err != nil {
						debug.Log("record click: %v", err)
					}
					return nil
				}
			}
		}
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.search.Blur()
		f := m.reconciler.Filters()
		f.NameQuery, f.IDQuery = "", ""
		m.reconciler.SetFilters(f)
		return m.refilter(true)
	case "enter":
		m.mode = modeBrowse
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)

	f := m.reconciler.Filters()
	if m.mode == modeSearchName {
		f.NameQuery = m.search.Value()
		f.IDQuery = ""
	} else {
		f.IDQuery = m.search.Value()
		f.NameQuery = ""
	}
	m.reconciler.SetFilters(f)

	next, searchCmd := m.refilter(true)
	return next, tea.Batch(cmd, searchCmd)
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.mode = modeBrowse
		m.form = nil
		return m, nil
	}
	cmd := m.form.update(msg)
	switch m.form.state() {
	case formCompleted:
		submit := m.form.submit(m.reconciler)
		m.mode = modeBrowse
		m.form = nil
		return m, submit
	case formAborted:
		m.mode = modeBrowse
		m.form = nil
		return m, nil
	}
	return m, cmd
}

// cycleStatusFilter advances all -> new -> processing -> completed -> all.
func (m Model) cycleStatusFilter() (tea.Model, tea.Cmd) {
	order := []string{render.StatusAll, "new", "processing", "completed"}
	f := m.reconciler.Filters()
	cur := 0
	for i, s := range order {
		if f.Status == s {
			cur = i
			break
		}
	}
	f.Status = order[(cur+1)%len(order)]
	m.reconciler.SetFilters(f)
	m.statusMessage = "status filter: " + f.Status
	return m.refilter(true)
}

// cycleConnectionFilter advances all -> inbound -> outbound -> all.
func (m Model) cycleConnectionFilter() (tea.Model, tea.Cmd) {
	f := m.reconciler.Filters()
	switch f.Connection {
	case render.ConnectionInbound:
		f.Connection = render.ConnectionOutbound
	case render.ConnectionOutbound:
		f.Connection = render.ConnectionAll
	default:
		f.Connection = render.ConnectionInbound
	}
	m.reconciler.SetFilters(f)
	m.statusMessage = "connections: " + string(f.Connection)
	return m.refilter(true)
}

func (m Model) refilter(preserve bool) (Model, tea.Cmd) {
	out, err := m.reconciler.Refilter()
	if err != nil {
		next, _ := m.fail(err)
		return next.(Model), nil
	}
	out.PreserveViewport = preserve
	next, cmd := m.applyOutcome(out)
	return next.(Model), cmd
}

// applyOutcome installs a fresh render tree and honors the focus/viewport
// contract: a focus target is centered and highlighted, otherwise the saved
// scroll offset is restored.
func (m Model) applyOutcome(out reconcile.Outcome) (tea.Model, tea.Cmd) {
	m.err = nil
	if m.mode == modeError {
		m.mode = modeBrowse
	}
	m.tree = out.Tree
	m.noRoot = out.NoRoot
	m.savedOffset = m.viewport.YOffset
	m.rebuildFlat()

	var cmds []tea.Cmd
	if out.FocusNode != "" {
		m.highlightID = out.FocusNode
		for i, n := range m.flat {
			if n.ID == out.FocusNode {
				m.cursor = i
				break
			}
		}
		m.refreshViewport()
		m.centerCursor()
		cmds = append(cmds, clearHighlightCmd())
	} else {
		if m.cursor >= len(m.flat) {
			m.cursor = max(len(m.flat)-1, 0)
		}
		m.refreshViewport()
		if m.pendingRestore {
			m.viewport.SetYOffset(m.restoreOffset)
			m.pendingRestore = false
		} else if out.PreserveViewport {
			m.viewport.SetYOffset(m.savedOffset)
		}
	}

	if cmd := drainTasksCmd(m.reconciler); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	debug.Log("ui error state: %v", err)
	m.err = err
	m.mode = modeError
	return m, nil
}

func (m *Model) selected() *render.Node {
	if m.cursor < 0 || m.cursor >= len(m.flat) {
		return nil
	}
	return m.flat[m.cursor]
}

// rebuildFlat flattens the render tree into cursor-addressable rows and
// precomputes the branch prefixes.
func (m *Model) rebuildFlat() {
	m.flat = nil
	m.prefixes = nil
	if m.tree == nil || m.tree.Root == nil {
		return
	}
	var walk func(n *render.Node, prefix string, last bool, root bool)
	walk = func(n *render.Node, prefix string, last bool, root bool) {
		rowPrefix := ""
		childPrefix := ""
		if !root {
			if last {
				rowPrefix = prefix + "└─ "
				childPrefix = prefix + "   "
			} else {
				rowPrefix = prefix + "├─ "
				childPrefix = prefix + "│  "
			}
		}
		m.flat = append(m.flat, n)
		m.prefixes = append(m.prefixes, rowPrefix)
		for i, c := range n.Children {
			walk(c, childPrefix, i == len(n.Children)-1, false)
		}
	}
	walk(m.tree.Root, "", true, true)
}

func (m *Model) ensureCursorVisible() {
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m *Model) centerCursor() {
	offset := m.cursor - m.viewport.Height/2
	if offset < 0 {
		offset = 0
	}
	m.viewport.SetYOffset(offset)
}

// persistViewport saves scroll state on exit; best effort.
func (m *Model) persistViewport() {
	if m.cache == nil {
		return
	}
	v := statecache.Viewport{Zoom: 1.0, OffsetY: m.viewport.YOffset}
	if err := m.cache.SaveViewport(v); err != nil {
		debug.Log("saving viewport: %v", err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// renderDetail formats a node's description through glamour for the detail
// pane; plain fallback when markdown rendering fails.
func renderDetail(n *render.Node, width int) string {
	body := n.Description
	if strings.TrimSpace(body) == "" {
		body = "_no description_"
	}
	md := "# " + n.Name + "\n\n" + body
	out, err := renderMarkdown(md, width)
	if err != nil {
		return md
	}
	return out
}
