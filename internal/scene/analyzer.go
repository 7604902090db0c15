// Package scene implements SceneAnalyzer (spec §4.3, C5): the stateless
// reduction of a paired depth+segmentation frame into a column-wise
// SceneUnderstanding descriptor (spec §3, C3).
package scene

import (
	"math"
	"sort"

	"github.com/pathfinder-nav/pathfinder/internal/depthmap"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

// Params are the tunables SceneAnalyzer needs from config.Scene (spec §4.1).
type Params struct {
	Columns                     int
	WalkableIDs                 map[uint8]struct{}
	SkyDepthThreshold           float64
	DiscontinuityMinAbsGradient float64
	DiscontinuityThreshold      float64
}

// Analyzer is the stateless depth+seg -> SceneUnderstanding transform.
type Analyzer struct {
	p Params
}

// New constructs an Analyzer from its parameters.
func New(p Params) *Analyzer {
	if p.Columns <= 0 {
		p.Columns = 36
	}
	return &Analyzer{p: p}
}

// Analyze reduces depth+seg into a SceneUnderstanding descriptor. It never
// fails: degenerate inputs (no walkable pixels, empty slabs) produce
// zeroed/infinite fields rather than an error (spec §4.3).
func (a *Analyzer) Analyze(depth *depthmap.DepthMap, seg types.RawSegmentation, cameraHFOV float64) types.SceneUnderstanding {
	cols := a.p.Columns
	out := types.SceneUnderstanding{
		Columns:          cols,
		ColumnBearings:   make([]float64, cols),
		Traversability:   make([]float64, cols),
		ObstacleDistance: make([]float64, cols),
		Discontinuities:  nil,
	}

	for c := 0; c < cols; c++ {
		out.ColumnBearings[c] = (float64(c)/float64(cols) - 0.5) * cameraHFOV
	}

	a.computeTraversability(seg, out.Traversability)

	depthW, depthH := depth.Width(), depth.Height()
	segW, segH := seg.Width, seg.Height

	for c := 0; c < cols; c++ {
		depthX := int((float64(c) + 0.5) / float64(cols) * float64(depthW))
		depthX = clampInt(depthX, 0, depthW-1)

		obstacleDist, profile := a.scanColumn(depth, seg, depthX, depthW, depthH, segW, segH)
		out.ObstacleDistance[c] = obstacleDist

		if d := a.detectDiscontinuity(profile, c, out.ColumnBearings[c]); d != nil {
			out.Discontinuities = append(out.Discontinuities, *d)
		}
	}

	out.GroundPlaneRatio = a.groundPlaneRatio(depth, seg, depthW, depthH, segW, segH)

	return out
}

// computeTraversability partitions the segmentation width into contiguous
// slabs (one per column) and measures the walkable fraction over the whole
// image height in each slab (spec §4.3 step 2).
func (a *Analyzer) computeTraversability(seg types.RawSegmentation, out []float64) {
	cols := len(out)
	if seg.Width == 0 || seg.Height == 0 {
		return
	}
	for c := 0; c < cols; c++ {
		x0 := c * seg.Width / cols
		x1 := (c + 1) * seg.Width / cols
		if x1 <= x0 {
			out[c] = 0
			continue
		}

		var walkable, total int
		for y := 0; y < seg.Height; y++ {
			rowOff := y * seg.Width
			for x := x0; x < x1; x++ {
				total++
				if a.isWalkable(seg.Labels[rowOff+x]) {
					walkable++
				}
			}
		}
		if total == 0 {
			out[c] = 0
		} else {
			out[c] = float64(walkable) / float64(total)
		}
	}
}

// scanColumn scans bottom->top at depthX, skipping sky pixels, looking for
// the first non-walkable pixel (obstacle) and building the walkable,
// non-sky vertical depth profile used for discontinuity detection
// (spec §4.3 steps 3-4).
func (a *Analyzer) scanColumn(depth *depthmap.DepthMap, seg types.RawSegmentation, depthX, depthW, depthH, segW, segH int) (float64, []float64) {
	obstacleDist := math.Inf(1)
	foundObstacle := false
	var profile []float64

	for py := depthH - 1; py >= 0; py-- {
		raw := depth.DepthAtPixel(depthX, py)
		if math.IsInf(raw, 0) || math.IsNaN(raw) {
			continue
		}
		if raw > a.p.SkyDepthThreshold {
			continue // sky, skip entirely (applies before any metric conversion)
		}

		segX, segY := mapNearest(depthX, py, depthW, depthH, segW, segH)
		walkable := a.isWalkableAt(seg, segX, segY)

		if walkable {
			profile = append(profile, raw)
		} else if !foundObstacle {
			obstacleDist = raw
			foundObstacle = true
		}
	}

	return obstacleDist, profile
}

// detectDiscontinuity finds the strongest candidate step in a column's
// walkable depth profile (spec §4.3 step 4).
func (a *Analyzer) detectDiscontinuity(profile []float64, column int, bearing float64) *types.Discontinuity {
	if len(profile) < 2 {
		return nil
	}

	grads := make([]float64, len(profile)-1)
	for i := range grads {
		grads[i] = profile[i+1] - profile[i]
	}

	maxAbs := 0.0
	absGrads := make([]float64, len(grads))
	for i, g := range grads {
		ag := math.Abs(g)
		absGrads[i] = ag
		if ag > maxAbs {
			maxAbs = ag
		}
	}
	if maxAbs == 0 {
		return nil
	}

	median := medianOf(absGrads)

	bestIdx := -1
	bestNorm := 0.0
	for i := range grads {
		ag := absGrads[i]
		norm := ag / maxAbs

		if ag < a.p.DiscontinuityMinAbsGradient {
			continue
		}
		if median > 0 && ag/median <= 3.0 {
			continue
		}
		if norm > bestNorm {
			bestNorm = norm
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestNorm < a.p.DiscontinuityThreshold {
		return nil
	}

	dir := types.RiseUp
	if grads[bestIdx] > 0 {
		dir = types.DropAway
	}

	return &types.Discontinuity{
		Column:        column,
		Bearing:       bearing,
		RelativeDepth: profile[bestIdx],
		Magnitude:     bestNorm,
		Direction:     dir,
	}
}

// groundPlaneRatio counts non-sky and walkable-non-sky pixels over the
// full depth-space image (spec §4.3 step 5).
func (a *Analyzer) groundPlaneRatio(depth *depthmap.DepthMap, seg types.RawSegmentation, depthW, depthH, segW, segH int) float64 {
	var nonSky, walkableNonSky int
	for py := 0; py < depthH; py++ {
		for px := 0; px < depthW; px++ {
			raw := depth.DepthAtPixel(px, py)
			if math.IsInf(raw, 0) || math.IsNaN(raw) || raw > a.p.SkyDepthThreshold {
				continue
			}
			nonSky++
			segX, segY := mapNearest(px, py, depthW, depthH, segW, segH)
			if a.isWalkableAt(seg, segX, segY) {
				walkableNonSky++
			}
		}
	}
	if nonSky == 0 {
		return 0
	}
	return float64(walkableNonSky) / float64(nonSky)
}

func (a *Analyzer) isWalkable(label uint8) bool {
	_, ok := a.p.WalkableIDs[label]
	return ok
}

func (a *Analyzer) isWalkableAt(seg types.RawSegmentation, x, y int) bool {
	if seg.Width == 0 || seg.Height == 0 || x < 0 || y < 0 || x >= seg.Width || y >= seg.Height {
		return false
	}
	return a.isWalkable(seg.Labels[y*seg.Width+x])
}

func mapNearest(px, py, srcW, srcH, dstW, dstH int) (int, int) {
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return 0, 0
	}
	dx := px * dstW / srcW
	dy := py * dstH / srcH
	return clampInt(dx, 0, dstW-1), clampInt(dy, 0, dstH-1)
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
