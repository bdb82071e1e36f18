package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomvdbrandt/canopy/pkg/gateway"
	"github.com/tomvdbrandt/canopy/pkg/graph"
	"github.com/tomvdbrandt/canopy/pkg/model"
)

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
	return "", nil
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

func TestRunHeadlessExportWritesSVG(t *testing.T) {
	gw := &stubGateway{tree: []model.Node{
		{ID: "root", Name: "Root", Status: model.StatusNew, Children: []string{"a"}},
		{ID: "a", Name: "Alpha", Status: model.StatusProcessing},
	}}
	path := filepath.Join(t.TempDir(), "out.svg")

	if err := runHeadless(graph.NewStore(), gw, path, "", 1.0, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Error("export did not produce SVG content")
	}
}

func TestRunHeadlessEmptyTreeFails(t *testing.T) {
	gw := &stubGateway{}
	err := runHeadless(graph.NewStore(), gw, filepath.Join(t.TempDir(), "out.svg"), "", 1.0, false)
	if err == nil {
		t.Fatal("expected error for empty graph")
	}
}

func TestRunHeadlessAnalyzeOnly(t *testing.T) {
	gw := &stubGateway{tree: []model.Node{
		{ID: "root", Name: "Root", Children: []string{"a"}},
		{ID: "a", Name: "Alpha"},
	}}
	if err := runHeadless(graph.NewStore(), gw, "", "", 1.0, true); err != nil {
		t.Fatal(err)
	}
}
