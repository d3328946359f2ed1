// Package remap moves tile-local boxes into image-global coordinates.
package remap

import (
	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
)

// Order names the interpretation chosen for a local box.
type Order string

const (
	Corner  Order = "xyxy" // [x1,y1,x2,y2]
	Swapped Order = "yxyx" // [ymin,xmin,ymax,xmax]
	Clamped Order = "clamped"
)

// Project maps a corner-form local box through tile.
func Project(local, tile geometry.Box) geometry.Box {
	w, h := tile.Width(), tile.Height()
	return geometry.Box{
		tile[0] + local[0]*w,
		tile[1] + local[1]*h,
		tile[0] + local[2]*w,
		tile[1] + local[3]*h,
	}
}

// ToGlobal tries the corner and the axis-swapped reading of local and returns
// the first that lands inside the image with positive extent, corner first.
// If neither does, the corner reading is ordered and clamped; ok is false
// only when even that is degenerate.
func ToGlobal(local, tile geometry.Box) (geometry.Box, Order, bool) {
	if g := Project(local, tile); g.Valid() {
		return clampNoise(g), Corner, true
	}
	if g := Project(local.Swap(), tile); g.Valid() {
		return clampNoise(g), Swapped, true
	}
	g := Project(local, tile).Normalize()
	if g.Area() <= 0 {
		return g, Clamped, false
	}
	return g, Clamped, true
}

// Stats counts what happened while remapping one tile.
type Stats struct {
	Swapped int
	Clamped int
	Dropped []string
}

// Components remaps every component of one tile in place order, tagging
// meta with the tile and chosen order. Degenerate boxes are dropped.
func Components(comps []detection.Component, tile geometry.Box, tileName string) ([]detection.Component, Stats) {
	var st Stats
	out := make([]detection.Component, 0, len(comps))
	for _, c := range comps {
		g, order, ok := ToGlobal(c.BBox, tile)
		if !ok {
			st.Dropped = append(st.Dropped, c.ID)
			continue
		}
		switch order {
		case Swapped:
			st.Swapped++
		case Clamped:
			st.Clamped++
		}
		c.BBox = g
		c.Meta = detection.CloneMeta(c.Meta)
		c.SetMeta("bbox_order", string(order))
		if tileName != "" {
			c.SetMeta("source_tile", tileName)
		}
		out = append(out, c)
	}
	return out, st
}

// clampNoise pins values that passed Valid within epsilon onto [0,1].
func clampNoise(b geometry.Box) geometry.Box {
	for i, v := range b {
		if v < 0 {
			b[i] = 0
		} else if v > 1 {
			b[i] = 1
		}
	}
	return b
}
