package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
	"github.com/tomvdbrandt/canopy/pkg/render"
)

func testTree(t *testing.T) *render.Tree {
	t.Helper()
	s := graph.NewStore()
	s.IngestFullTree([]model.Node{
		{ID: "root", Name: "Root", Status: model.StatusNew, Children: []string{"a", "b"}},
		{ID: "a", Name: "Alpha", Status: model.StatusProcessing},
		{ID: "b", Name: "Beta", Status: model.StatusCompleted},
	})
	tree, err := render.Render(s, render.DefaultFilters())
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestSaveSnapshotEmptyTree(t *testing.T) {
	err := SaveSnapshot(SnapshotOptions{Path: "out.svg", Tree: &render.Tree{}})
	if err == nil {
		t.Fatal("expected error for empty tree")
	}
}

func TestSaveSnapshotRejectsUnknownFormat(t *testing.T) {
	err := SaveSnapshot(SnapshotOptions{
		Path:   filepath.Join(t.TempDir(), "out.gif"),
		Format: "gif",
		Tree:   testTree(t),
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("err = %v", err)
	}
}

func TestSaveSnapshotSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.svg")
	err := SaveSnapshot(SnapshotOptions{Path: path, Title: "Test Export", Tree: testTree(t)})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	svg := string(data)
	for _, want := range []string{"<svg", "Test Export", "Root", "Alpha", "Beta", "nodes: 3"} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestSaveSnapshotInfersFormatAndExtension(t *testing.T) {
	// No extension: defaults to svg and appends it.
	base := filepath.Join(t.TempDir(), "tree")
	if err := SaveSnapshot(SnapshotOptions{Path: base, Tree: testTree(t)}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(base + ".svg"); err != nil {
		t.Errorf("expected %s.svg to exist: %v", base, err)
	}
}

func TestSaveSnapshotPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.png")
	if err := SaveSnapshot(SnapshotOptions{Path: path, Tree: testTree(t)}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("output is not a PNG file")
	}
}

func TestBuildLayoutColumnsByDepth(t *testing.T) {
	layout := buildLayout(SnapshotOptions{Tree: testTree(t)})

	if layout.Count != 3 {
		t.Fatalf("Count = %d, want 3", layout.Count)
	}
	if len(layout.Edges) != 2 {
		t.Errorf("Edges = %d, want 2", len(layout.Edges))
	}

	byID := map[string]layoutNode{}
	for _, n := range layout.Nodes {
		byID[n.ID] = n
	}
	if byID["root"].X >= byID["a"].X {
		t.Error("children must be placed in a deeper column than the root")
	}
	if byID["a"].X != byID["b"].X {
		t.Error("siblings must share a column")
	}
	if byID["a"].Y == byID["b"].Y {
		t.Error("siblings must not overlap")
	}
}

func TestBuildLayoutScale(t *testing.T) {
	tree := testTree(t)
	base := buildLayout(SnapshotOptions{Tree: tree})
	doubled := buildLayout(SnapshotOptions{Tree: tree, Scale: 2.0})

	if doubled.Width <= base.Width || doubled.Height <= base.Height {
		t.Errorf("scale 2 layout %dx%d not larger than %dx%d",
			doubled.Width, doubled.Height, base.Width, base.Height)
	}

	baseByID := map[string]layoutNode{}
	for _, n := range base.Nodes {
		baseByID[n.ID] = n
	}
	for _, n := range doubled.Nodes {
		if n.W != baseByID[n.ID].W*2 {
			t.Errorf("node %s width = %v, want doubled %v", n.ID, n.W, baseByID[n.ID].W*2)
		}
	}

	// Zero scale falls back to 1.0.
	fallback := buildLayout(SnapshotOptions{Tree: tree, Scale: 0})
	if fallback.Width != base.Width {
		t.Errorf("zero scale width = %d, want %d", fallback.Width, base.Width)
	}
}

func TestTruncateLongNames(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 40)
	if len([]rune(got)) != 40 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(long) = %q", got)
	}
}
