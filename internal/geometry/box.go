package geometry

import "math"

// Box is a normalized rectangle in corner form [x1, y1, x2, y2].
// Oracle output may arrive as [ymin, xmin, ymax, xmax]; see remap.
type Box [4]float64

// Full covers the whole image.
var Full = Box{0, 0, 1, 1}

// Eps absorbs float noise when checking the [0,1] range.
const Eps = 1e-6

func (b Box) X1() float64 { return b[0] }
func (b Box) Y1() float64 { return b[1] }
func (b Box) X2() float64 { return b[2] }
func (b Box) Y2() float64 { return b[3] }

func (b Box) Width() float64  { return b[2] - b[0] }
func (b Box) Height() float64 { return b[3] - b[1] }

// Area is zero for inverted or degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b Box) Center() (float64, float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// Valid reports whether b is a non-degenerate box inside the unit square.
func (b Box) Valid() bool {
	if !(b.Width() > 0) || !(b.Height() > 0) {
		return false
	}
	for _, v := range b {
		if math.IsNaN(v) || v < -Eps || v > 1+Eps {
			return false
		}
	}
	return true
}

// Normalize orders the corners and clamps them into [0,1].
func (b Box) Normalize() Box {
	x1, x2 := math.Min(b[0], b[2]), math.Max(b[0], b[2])
	y1, y2 := math.Min(b[1], b[3]), math.Max(b[1], b[3])
	return Box{clamp01(x1), clamp01(y1), clamp01(x2), clamp01(y2)}
}

// Swap exchanges the x and y axes: [a,b,c,d] -> [b,a,d,c].
func (b Box) Swap() Box {
	return Box{b[1], b[0], b[3], b[2]}
}

// Intersect returns the overlapping region and whether it has positive area.
func Intersect(a, b Box) (Box, bool) {
	out := Box{
		math.Max(a[0], b[0]),
		math.Max(a[1], b[1]),
		math.Min(a[2], b[2]),
		math.Min(a[3], b[3]),
	}
	if out.Width() <= 0 || out.Height() <= 0 {
		return Box{}, false
	}
	return out, true
}

// IoU is intersection over union. Disjoint or degenerate inputs yield 0.
func IoU(a, b Box) float64 {
	inter, ok := Intersect(a, b)
	if !ok {
		return 0
	}
	ia := inter.Area()
	union := a.Area() + b.Area() - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// Bounds returns the tight box around a flat list of x,y pairs.
func Bounds(points []float64) (Box, bool) {
	if len(points) < 4 || len(points)%2 != 0 {
		return Box{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < len(points); i += 2 {
		x, y := points[i], points[i+1]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return Box{minX, minY, maxX, maxY}, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
