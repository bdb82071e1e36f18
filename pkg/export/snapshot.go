// Package export renders static snapshots of a render tree, so the current
// view can be shared outside the terminal. SVG and PNG are supported; the
// visual language is deliberately minimal.
package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/tomvdbrandt/canopy/pkg/model"
	"github.com/tomvdbrandt/canopy/pkg/render"
)

// SnapshotOptions controls snapshot export behaviour.
type SnapshotOptions struct {
	Path   string       // Output path; format inferred from extension when Format empty
	Format string       // "svg" or "png" (case-insensitive). If empty, inferred from Path.
	Title  string       // Optional title rendered in the header block
	Scale  float64      // Node and gap size multiplier; <= 0 means 1.0
	Tree   *render.Tree // Render tree to draw
}

// SaveSnapshot renders the tree to a static SVG or PNG file.
func SaveSnapshot(opts SnapshotOptions) error {
	if opts.Tree.IsEmpty() {
		return fmt.Errorf("no nodes to export")
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".svg":
			format = "svg"
		case ".png":
			format = "png"
		default:
			format = "svg"
			if opts.Path != "" && filepath.Ext(opts.Path) == "" {
				opts.Path = opts.Path + ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	layout := buildLayout(opts)

	switch format {
	case "svg":
		file, err := os.Create(opts.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		return renderSVGToWriter(file, layout)
	case "png":
		return renderPNG(opts.Path, layout)
	default:
		return fmt.Errorf("unhandled format %q", format)
	}
}

// --- layout computation ----------------------------------------------------

type layoutNode struct {
	ID       string
	Friendly string
	Name     string
	Status   model.Status
	Depth    int
	X, Y     float64
	W, H     float64
}

type layoutEdge struct {
	From string
	To   string
}

type layoutResult struct {
	Nodes  []layoutNode
	Edges  []layoutEdge
	Width  int
	Height int
	Header float64
	Title  string
	Count  int
}

// buildLayout places nodes column-per-depth, row-per-visit-order. The render
// tree is already deduplicated and sorted, so the walk order is stable.
func buildLayout(opts SnapshotOptions) layoutResult {
	const (
		padding      = 32.0
		headerHeight = 72.0
	)
	scale := opts.Scale
	if scale <= 0 {
		scale = 1.0
	}
	nodeW := 180.0 * scale
	nodeH := 64.0 * scale
	colGap := 70.0 * scale
	rowGap := 28.0 * scale

	var nodes []layoutNode
	var edges []layoutEdge
	maxDepth := 0
	rowByDepth := make(map[int]int)

	opts.Tree.Walk(func(n *render.Node) {
		row := rowByDepth[n.Depth]
		rowByDepth[n.Depth] = row + 1
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
		nodes = append(nodes, layoutNode{
			ID:       n.ID,
			Friendly: n.FriendlyID,
			Name:     truncate(n.Name, 40),
			Status:   n.Status,
			Depth:    n.Depth,
			X:        padding + float64(n.Depth)*(nodeW+colGap),
			Y:        padding + headerHeight + float64(row)*(nodeH+rowGap),
			W:        nodeW,
			H:        nodeH,
		})
		for _, c := range n.Children {
			edges = append(edges, layoutEdge{From: n.ID, To: c.ID})
		}
	})

	maxRows := 0
	for _, rows := range rowByDepth {
		if rows > maxRows {
			maxRows = rows
		}
	}

	width := int(padding*2 + float64(maxDepth+1)*(nodeW+colGap))
	if width < 640 {
		width = 640
	}
	height := int(padding*2 + headerHeight + float64(maxRows)*(nodeH+rowGap))
	if height < 400 {
		height = 400
	}

	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = "Canopy Snapshot"
	}

	return layoutResult{
		Nodes:  nodes,
		Edges:  edges,
		Width:  width,
		Height: height,
		Header: headerHeight,
		Title:  title,
		Count:  len(nodes),
	}
}

// --- rendering -------------------------------------------------------------

var (
	colorNew        = color.RGBA{0xc8, 0xe6, 0xc9, 0xff}
	colorProcessing = color.RGBA{0xff, 0xf3, 0xe0, 0xff}
	colorCompleted  = color.RGBA{0xcf, 0xd8, 0xdc, 0xff}
	colorStroke     = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorEdge       = color.RGBA{0x6b, 0x80, 0xbf, 0xff}
	colorText       = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle     = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop   = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG   = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
)

func statusColor(s model.Status) color.RGBA {
	switch s {
	case model.StatusProcessing:
		return colorProcessing
	case model.StatusCompleted:
		return colorCompleted
	default:
		return colorNew
	}
}

func renderPNG(path string, layout layoutResult) error {
	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(layout.Width)-32, layout.Header-24, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)

	dc.SetColor(colorText)
	dc.DrawStringAnchored(layout.Title, 32, 36, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(fmt.Sprintf("nodes: %d", layout.Count), 32, 54, 0, 0.5)

	nodePos := make(map[string]layoutNode, len(layout.Nodes))
	for _, n := range layout.Nodes {
		nodePos[n.ID] = n
	}

	dc.SetColor(colorEdge)
	dc.SetLineWidth(2)
	for _, e := range layout.Edges {
		from := nodePos[e.From]
		to := nodePos[e.To]
		x1 := from.X + from.W
		y1 := from.Y + from.H/2
		x2 := to.X
		y2 := to.Y + to.H/2
		dc.DrawLine(x1, y1, x2, y2)
		dc.Stroke()
	}

	for _, n := range layout.Nodes {
		dc.SetColor(statusColor(n.Status))
		dc.DrawRoundedRectangle(n.X, n.Y, n.W, n.H, 8)
		dc.Fill()
		dc.SetColor(colorStroke)
		dc.SetLineWidth(1.2)
		dc.DrawRoundedRectangle(n.X, n.Y, n.W, n.H, 8)
		dc.Stroke()

		dc.SetColor(colorText)
		dc.DrawStringAnchored(n.Friendly+" "+n.ID, n.X+10, n.Y+18, 0, 0.5)
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(n.Name, n.X+10, n.Y+38, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func renderSVGToWriter(w io.Writer, layout layoutResult) error {
	canvas := svg.New(w)
	canvas.Start(layout.Width, layout.Height)
	canvas.Rect(0, 0, layout.Width, layout.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, layout.Width-32, int(layout.Header-24), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))

	canvas.Text(32, 40, layout.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(32, 58, fmt.Sprintf("nodes: %d", layout.Count), fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	nodePos := make(map[string]layoutNode, len(layout.Nodes))
	for _, n := range layout.Nodes {
		nodePos[n.ID] = n
	}

	for _, e := range layout.Edges {
		from := nodePos[e.From]
		to := nodePos[e.To]
		x1 := int(from.X + from.W)
		y1 := int(from.Y + from.H/2)
		x2 := int(to.X)
		y2 := int(to.Y + to.H/2)
		canvas.Line(x1, y1, x2, y2, fmt.Sprintf("stroke:%s;stroke-width:2", css(colorEdge)))
		canvas.Polygon(
			[]int{x2, x2 + 8, x2 + 8},
			[]int{y2, y2 + 4, y2 - 4},
			fmt.Sprintf("fill:%s", css(colorEdge)),
		)
	}

	for _, n := range layout.Nodes {
		x := int(n.X)
		y := int(n.Y)
		canvas.Roundrect(x, y, int(n.W), int(n.H), 8, 8,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1.2", css(statusColor(n.Status)), css(colorStroke)))
		canvas.Text(x+10, y+22, n.Friendly+" "+n.ID, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace;font-weight:bold", css(colorText)))
		canvas.Text(x+10, y+42, n.Name, fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))
	}

	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
