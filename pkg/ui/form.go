package ui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/tomvdbrandt/canopy/pkg/model"
	"github.com/tomvdbrandt/canopy/pkg/reconcile"
	"github.com/tomvdbrandt/canopy/pkg/render"
)

type formKind int

const (
	formCreate formKind = iota
	formEdit
	formLink
)

type formState int

const (
	formRunning formState = iota
	formCompleted
	formAborted
)

// nodeForm wraps a huh.Form plus the values it binds to and enough
// context to turn a completed form into a reconciler call.
type nodeForm struct {
	kind formKind
	form *huh.Form

	targetID string // node being edited, or parent for create/link
	name     string
	desc     string
	status   string
	childID  string

	// edit mode keeps originals so unchanged fields stay out of the patch
	origName   string
	origDesc   string
	origStatus string
}

func statusOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("new", string(model.StatusNew)),
		huh.NewOption("processing", string(model.StatusProcessing)),
		huh.NewOption("completed", string(model.StatusCompleted)),
	}
}

func requireText(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(label + " is required")
		}
		return nil
	}
}

// newCreateForm builds the form for adding a child under parentID.
func newCreateForm(parentID, parentName string) *nodeForm {
	f := &nodeForm{
		kind:     formCreate,
		targetID: parentID,
		status:   string(model.StatusNew),
	}
	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("New node under "+parentName).
				Validate(requireText("name")).
				Value(&f.name),
			huh.NewText().
				Title("Description").
				Lines(4).
				Value(&f.desc),
			huh.NewSelect[string]().
				Title("Status").
				Options(statusOptions()...).
				Value(&f.status),
		),
	).WithTheme(huh.ThemeDracula())
	return f
}

// newEditForm builds the form pre-populated from a rendered node.
func newEditForm(n *render.Node) *nodeForm {
	f := &nodeForm{
		kind:       formEdit,
		targetID:   n.ID,
		name:       n.Name,
		desc:       n.Description,
		status:     string(n.Status),
		origName:   n.Name,
		origDesc:   n.Description,
		origStatus: string(n.Status),
	}
	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Validate(requireText("name")).
				Value(&f.name),
			huh.NewText().
				Title("Description").
				Lines(4).
				Value(&f.desc),
			huh.NewSelect[string]().
				Title("Status").
				Options(statusOptions()...).
				Value(&f.status),
		),
	).WithTheme(huh.ThemeDracula())
	return f
}

// newLinkForm asks for the id of an existing node to attach under parentID.
func newLinkForm(parentID, parentName string) *nodeForm {
	f := &nodeForm{kind: formLink, targetID: parentID}
	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Child node id").
				Description("Link an existing node under "+parentName).
				Validate(requireText("node id")).
				Value(&f.childID),
		),
	).WithTheme(huh.ThemeDracula())
	return f
}

func (f *nodeForm) init() tea.Cmd { return f.form.Init() }

func (f *nodeForm) update(msg tea.Msg) tea.Cmd {
	next, cmd := f.form.Update(msg)
	if form, ok := next.(*huh.Form); ok {
		f.form = form
	}
	return cmd
}

func (f *nodeForm) state() formState {
	switch f.form.State {
	case huh.StateCompleted:
		return formCompleted
	case huh.StateAborted:
		return formAborted
	}
	return formRunning
}

func (f *nodeForm) view() string { return f.form.View() }

// submit converts the collected values into the reconciler call for the
// form's kind and returns the command that runs it.
func (f *nodeForm) submit(r *reconcile.Reconciler) tea.Cmd {
	switch f.kind {
	case formCreate:
		parentID := f.targetID
		name, desc := f.name, f.desc
		status := model.Status(f.status)
		return outcomeCmd(func(ctx context.Context) (reconcile.Outcome, error) {
			return r.CreateNode(ctx, parentID, name, desc, status)
		})

	case formEdit:
		var patch model.NodePatch
		if f.name != f.origName {
			name := f.name
			patch.Name = &name
		}
		if f.desc != f.origDesc {
			desc := f.desc
			patch.Description = &desc
		}
		if f.status != f.origStatus {
			status := model.Status(f.status)
			patch.Status = &status
		}
		if patch.IsZero() {
			return nil
		}
		id := f.targetID
		return outcomeCmd(func(ctx context.Context) (reconcile.Outcome, error) {
			return r.EditNode(ctx, id, patch)
		})

	case formLink:
		parentID := f.targetID
		childID := strings.TrimSpace(f.childID)
		return outcomeCmd(func(ctx context.Context) (reconcile.Outcome, error) {
			return r.Link(ctx, parentID, childID)
		})
	}
	return nil
}
