// Package merge reconciles per-tile detections into one global set using
// greedy, confidence-first non-maximum suppression.
package merge

import (
	"sort"
	"strconv"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
)

const DefaultIoUThreshold = 0.5

type Options struct {
	// IoUThreshold suppresses a box whose IoU with a kept box is strictly greater.
	IoUThreshold float64
	// ClassAware only lets boxes of the same type suppress each other.
	ClassAware bool
}

func (o Options) threshold() float64 {
	if o.IoUThreshold <= 0 || o.IoUThreshold > 1 {
		return DefaultIoUThreshold
	}
	return o.IoUThreshold
}

// NMS keeps the highest-confidence box of each overlapping group verbatim.
// Ties keep input order. aliases maps each suppressed id to its survivor.
func NMS(comps []detection.Component, opts Options) (kept []detection.Component, aliases map[string]string) {
	order := make([]int, len(comps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return comps[order[a]].Confidence > comps[order[b]].Confidence
	})

	thr := opts.threshold()
	aliases = make(map[string]string)
	suppressed := make([]bool, len(order))
	kept = make([]detection.Component, 0, len(comps))
	for i, oi := range order {
		if suppressed[i] {
			continue
		}
		d := comps[oi]
		kept = append(kept, d)
		for j := i + 1; j < len(order); j++ {
			if suppressed[j] {
				continue
			}
			other := comps[order[j]]
			if opts.ClassAware && other.Type != d.Type {
				continue
			}
			if geometry.IoU(d.BBox, other.BBox) > thr {
				suppressed[j] = true
				if other.ID != d.ID {
					aliases[other.ID] = d.ID
				}
			}
		}
	}
	return kept, aliases
}

// Tile is one tile's remapped detections.
type Tile struct {
	Name        string
	Components  []detection.Component
	Connections []detection.Connection
}

type Outcome struct {
	Components         []detection.Component
	Connections        []detection.Connection
	Suppressed         int
	Aliases            map[string]string
	DroppedConnections int
}

// Tiles concatenates tiles in order, renames ids that collide with an
// earlier tile, runs NMS and rewires connections onto the survivors.
func Tiles(tiles []Tile, opts Options) Outcome {
	var all []detection.Component
	var conns []detection.Connection
	usedComp := make(map[string]bool)
	usedConn := make(map[string]bool)
	for _, t := range tiles {
		renamed := make(map[string]string)
		for _, c := range t.Components {
			if usedComp[c.ID] {
				id := uniqueID(c.ID, t.Name, usedComp)
				renamed[c.ID] = id
				c.ID = id
			}
			usedComp[c.ID] = true
			all = append(all, c)
		}
		for _, cn := range t.Connections {
			if id, ok := renamed[cn.FromID]; ok {
				cn.FromID = id
			}
			if id, ok := renamed[cn.ToID]; ok {
				cn.ToID = id
			}
			if usedConn[cn.ID] {
				cn.ID = uniqueID(cn.ID, t.Name, usedConn)
			}
			usedConn[cn.ID] = true
			conns = append(conns, cn)
		}
	}

	kept, aliases := NMS(all, opts)
	kc, dropped := Reconcile(conns, kept, aliases)
	return Outcome{
		Components:         kept,
		Connections:        kc,
		Suppressed:         len(all) - len(kept),
		Aliases:            aliases,
		DroppedConnections: dropped,
	}
}

// Reconcile points connection endpoints at surviving components. A
// connection is dropped when an endpoint is still unknown, when it collapses
// into a self-loop, or when it repeats an earlier from/to/type triple.
func Reconcile(conns []detection.Connection, comps []detection.Component, aliases map[string]string) ([]detection.Connection, int) {
	alive := make(map[string]bool, len(comps))
	for _, c := range comps {
		alive[c.ID] = true
	}
	type edge struct{ from, to, typ string }
	seen := make(map[edge]bool, len(conns))
	out := make([]detection.Connection, 0, len(conns))
	dropped := 0
	for _, cn := range conns {
		cn.FromID = resolve(cn.FromID, aliases)
		cn.ToID = resolve(cn.ToID, aliases)
		e := edge{cn.FromID, cn.ToID, cn.Type}
		if !alive[cn.FromID] || !alive[cn.ToID] || cn.FromID == cn.ToID || seen[e] {
			dropped++
			continue
		}
		seen[e] = true
		out = append(out, cn)
	}
	return out, dropped
}

func resolve(id string, aliases map[string]string) string {
	for i := 0; i <= len(aliases); i++ {
		next, ok := aliases[id]
		if !ok {
			return id
		}
		id = next
	}
	return id
}

func uniqueID(id, tile string, used map[string]bool) string {
	if tile == "" {
		tile = "dup"
	}
	out := id + "@" + tile
	for n := 2; used[out]; n++ {
		out = id + "@" + tile + "#" + strconv.Itoa(n)
	}
	return out
}
