// Package tiling splits large diagrams into overlapping tiles whose boxes are
// expressed in image-global normalized coordinates.
package tiling

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"blueprintvision/internal/geometry"
)

const (
	DefaultThreshold = 500000
	DefaultRows      = 2
	DefaultCols      = 2
	DefaultOverlap   = 0.10
)

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string { return fmt.Sprintf("r%dc%d", p.Row, p.Col) }

// FullName labels detections made on the untiled image.
const FullName = "full"

// Tile is immutable once planned.
type Tile struct {
	Position
	Name   string       `json:"name"`
	BBox   geometry.Box `json:"bbox"`
	Image  Image        `json:"-"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
}

type Plan struct {
	Tiles  []Tile
	Full   Tile
	Tiled  bool
	Width  int
	Height int
}

type Planner struct {
	// Threshold is the encoded payload size above which the image is tiled.
	Threshold int
	Rows      int
	Cols      int
	// Overlap extends every interior tile edge by this fraction of a cell.
	Overlap float64
}

func DefaultPlanner() Planner {
	return Planner{Threshold: DefaultThreshold, Rows: DefaultRows, Cols: DefaultCols, Overlap: DefaultOverlap}
}

func (p Planner) withDefaults() Planner {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Rows <= 0 {
		p.Rows = DefaultRows
	}
	if p.Cols <= 0 {
		p.Cols = DefaultCols
	}
	if p.Overlap < 0 || p.Overlap >= 1 {
		p.Overlap = DefaultOverlap
	}
	return p
}

func (p Planner) ShouldTile(img Image) bool {
	p = p.withDefaults()
	return img.Size() > p.Threshold && p.Rows*p.Cols > 1
}

// Single is the trivial plan: one tile covering the whole image.
func Single(img Image) Plan {
	full := Tile{Name: FullName, BBox: geometry.Full, Image: img}
	return Plan{Tiles: []Tile{full}, Full: full}
}

// Plan tiles img when it is above the threshold. If the image cannot be
// decoded the single-tile plan is returned together with the error.
func (p Planner) Plan(img Image) (Plan, error) {
	if img.Empty() {
		return Plan{}, ErrEmptyImage
	}
	p = p.withDefaults()
	if !p.ShouldTile(img) {
		return Single(img), nil
	}

	raw, err := img.Bytes()
	if err != nil {
		return Single(img), err
	}
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return Single(img), fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < p.Cols*2 || h < p.Rows*2 {
		return Single(img), fmt.Errorf("image %dx%d too small for a %dx%d grid", w, h, p.Rows, p.Cols)
	}

	// tiles are cut from the EXIF-oriented pixels, so the full image sent for
	// refinement must be in the same frame
	var full bytes.Buffer
	if err := imaging.Encode(&full, src, imaging.PNG); err != nil {
		return Single(img), fmt.Errorf("encode full image: %w", err)
	}
	plan := Plan{Tiled: true, Width: w, Height: h}
	plan.Full = Tile{Name: FullName, BBox: geometry.Full, Image: FromBytes(full.Bytes(), "image/png"), Width: w, Height: h}
	for _, cell := range Grid(w, h, p.Rows, p.Cols, p.Overlap) {
		crop := imaging.Crop(src, cell.Rect.Add(b.Min))
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, crop, imaging.PNG); err != nil {
			return Single(img), fmt.Errorf("encode tile %s: %w", cell.Position, err)
		}
		plan.Tiles = append(plan.Tiles, Tile{
			Position: cell.Position,
			Name:     cell.Position.String(),
			BBox:     cell.BBox,
			Image:    FromBytes(buf.Bytes(), "image/png"),
			Width:    cell.Rect.Dx(),
			Height:   cell.Rect.Dy(),
		})
	}
	return plan, nil
}

// Cell is one grid rectangle in pixels plus its normalized box.
type Cell struct {
	Position Position
	Rect     image.Rectangle
	BBox     geometry.Box
}

// Grid lays out rows x cols cells over a w x h image. Interior edges are
// pushed outward by overlap times the cell extent; outer edges stay on the
// image border. Cells are returned row-major.
func Grid(w, h, rows, cols int, overlap float64) []Cell {
	cw, ch := float64(w)/float64(cols), float64(h)/float64(rows)
	ox, oy := math.Floor(cw*overlap), math.Floor(ch*overlap)
	cells := make([]Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		y0, y1 := span(r, rows, ch, oy, h)
		for c := 0; c < cols; c++ {
			x0, x1 := span(c, cols, cw, ox, w)
			rect := image.Rect(x0, y0, x1, y1)
			cells = append(cells, Cell{
				Position: Position{Row: r, Col: c},
				Rect:     rect,
				BBox: geometry.Box{
					float64(x0) / float64(w),
					float64(y0) / float64(h),
					float64(x1) / float64(w),
					float64(y1) / float64(h),
				},
			})
		}
	}
	return cells
}

func span(i, n int, size, ov float64, limit int) (int, int) {
	lo := float64(i) * size
	hi := float64(i+1) * size
	if i > 0 {
		lo -= ov
	}
	if i < n-1 {
		hi += ov
	}
	a := int(math.Max(0, math.Floor(lo)))
	b := int(math.Min(float64(limit), math.Ceil(hi)))
	if i == n-1 {
		b = limit
	}
	return a, b
}
