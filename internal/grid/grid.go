package grid

import "math"

// Params are the tunables OccupancyGrid needs from config (spec §4.1 Grid /
// Temporal / Elevation / Processing groups). Kept as a plain struct rather
// than importing the config package directly, so grid stays independently
// testable against literal values (spec §8 scenarios).
type Params struct {
	CellSize           float64
	GridSize           int
	RecenterEdgeMargin float64

	ConfidenceDecay  float64
	MinConfidence    uint8
	ObservationBoost uint8
	MaxConfidence    uint8

	MinHitCount      uint16
	ObstacleHeightThreshold float64 // meters; Elevation.ObstacleHeight
}

// Grid is the world-aligned occupancy grid (spec §4.4, C4). Storage indices
// are a translated world frame; no rotation is ever baked into storage —
// rotation is applied only at serialization/raycast-start time.
type Grid struct {
	p Params

	cells []Cell // row-major, index = iz*GridSize + ix

	originX, originZ float64
	userHeading      float64
	floorHeight      float64

	validCellCount    int
	obstacleCellCount int
	stepCellCount     int
}

// New creates a grid centered at the world origin with every cell Unknown.
func New(p Params) *Grid {
	cells := make([]Cell, p.GridSize*p.GridSize)
	for i := range cells {
		cells[i] = emptyCell()
	}
	return &Grid{p: p, cells: cells}
}

// Params returns the grid's configured parameters.
func (g *Grid) Params() Params { return g.p }

// OriginX returns the world x coordinate of the grid center.
func (g *Grid) OriginX() float64 { return g.originX }

// OriginZ returns the world z coordinate of the grid center.
func (g *Grid) OriginZ() float64 { return g.originZ }

// UserHeading returns the last stored heading (radians).
func (g *Grid) UserHeading() float64 { return g.userHeading }

// FloorHeight returns the current estimated floor elevation, meters.
func (g *Grid) FloorHeight() float64 { return g.floorHeight }

// SetFloorHeight sets the current estimated floor elevation.
func (g *Grid) SetFloorHeight(h float64) { g.floorHeight = h }

// ValidCellCount, ObstacleCellCount, StepCellCount are the derived stats
// updated on Classify (spec §3).
func (g *Grid) ValidCellCount() int    { return g.validCellCount }
func (g *Grid) ObstacleCellCount() int { return g.obstacleCellCount }
func (g *Grid) StepCellCount() int     { return g.stepCellCount }

// CellAt returns a copy of the cell at grid index (ix, iz), and whether that
// index is in bounds.
func (g *Grid) CellAt(ix, iz int) (Cell, bool) {
	if ix < 0 || iz < 0 || ix >= g.p.GridSize || iz >= g.p.GridSize {
		return Cell{}, false
	}
	return g.cells[iz*g.p.GridSize+ix], true
}

func (g *Grid) index(ix, iz int) (int, bool) {
	if ix < 0 || iz < 0 || ix >= g.p.GridSize || iz >= g.p.GridSize {
		return 0, false
	}
	return iz*g.p.GridSize + ix, true
}

// WorldToGrid maps a world coordinate to a grid index, or ok=false if the
// point falls outside the grid's current window (spec §4.4).
func (g *Grid) WorldToGrid(wx, wz float64) (ix, iz int, ok bool) {
	half := float64(g.p.GridSize) / 2
	fx := (wx-g.originX)/g.p.CellSize + half
	fz := (wz-g.originZ)/g.p.CellSize + half
	ix = int(math.Floor(fx))
	iz = int(math.Floor(fz))
	if ix < 0 || iz < 0 || ix >= g.p.GridSize || iz >= g.p.GridSize {
		return 0, 0, false
	}
	return ix, iz, true
}

// GridToWorld returns the world-space center of grid cell (ix, iz).
func (g *Grid) GridToWorld(ix, iz int) (wx, wz float64) {
	half := float64(g.p.GridSize) / 2
	wx = (float64(ix) - half + 0.5) * g.p.CellSize + g.originX
	wz = (float64(iz) - half + 0.5) * g.p.CellSize + g.originZ
	return wx, wz
}

// UpdateUserPose stores the latest heading and recenters the grid around
// the user if they've crossed the configured edge margin (spec §4.4).
func (g *Grid) UpdateUserPose(posX, posZ, heading float64) {
	g.userHeading = heading

	halfExtent := float64(g.p.GridSize) * g.p.CellSize / 2
	trigger := halfExtent * (1 - g.p.RecenterEdgeMargin)

	dx := math.Abs(posX - g.originX)
	dz := math.Abs(posZ - g.originZ)
	if math.Max(dx, dz) > trigger {
		g.recenter(posX, posZ)
	}
}

// recenter shifts stored cells by an integer (dx, dz) translation so the
// grid window stays near the user; cells scrolled off the new window are
// dropped and the vacated ones reset to Unknown (spec §4.4, §8 prop 9).
func (g *Grid) recenter(newOriginX, newOriginZ float64) {
	dxCells := int(math.Round((newOriginX - g.originX) / g.p.CellSize))
	dzCells := int(math.Round((newOriginZ - g.originZ) / g.p.CellSize))

	if dxCells == 0 && dzCells == 0 {
		g.originX, g.originZ = newOriginX, newOriginZ
		return
	}

	n := g.p.GridSize
	shifted := make([]Cell, n*n)
	for i := range shifted {
		shifted[i] = emptyCell()
	}

	for iz := 0; iz < n; iz++ {
		srcIZ := iz + dzCells
		if srcIZ < 0 || srcIZ >= n {
			continue
		}
		for ix := 0; ix < n; ix++ {
			srcIX := ix + dxCells
			if srcIX < 0 || srcIX >= n {
				continue
			}
			shifted[iz*n+ix] = g.cells[srcIZ*n+srcIX]
		}
	}

	g.cells = shifted
	g.originX, g.originZ = newOriginX, newOriginZ
}

// ApplyDecay scales every cell's confidence by decay^(dt*60) (the decay
// factor is defined per 60Hz-equivalent frame) and resets any cell whose
// confidence crosses below MinConfidence (spec §4.4, §8 prop 3).
func (g *Grid) ApplyDecay(dt float64) {
	if dt <= 0 {
		return
	}
	factor := math.Pow(g.p.ConfidenceDecay, dt*60)
	for i := range g.cells {
		c := &g.cells[i]
		if c.Confidence == 0 {
			continue
		}
		newConf := float64(c.Confidence) * factor
		if newConf < float64(g.p.MinConfidence) {
			c.reset()
			continue
		}
		c.Confidence = uint8(newConf)
	}
}

// AddFloorPoint folds a floor observation into the cell at (ix, iz), using
// the grid's configured observation boost.
func (g *Grid) AddFloorPoint(ix, iz int, y float64) {
	idx, ok := g.index(ix, iz)
	if !ok {
		return
	}
	g.cells[idx].addFloorPoint(float32(y), g.p.ObservationBoost, g.p.MaxConfidence)
}

// AddObstaclePoint folds an obstacle observation into the cell at (ix, iz).
func (g *Grid) AddObstaclePoint(ix, iz int, y float64) {
	idx, ok := g.index(ix, iz)
	if !ok {
		return
	}
	g.cells[idx].addObstaclePoint(float32(y), g.p.ObservationBoost, g.p.MaxConfidence)
}

// markState sets a cell's state directly, bumping hit_count and boosting
// confidence; it never downgrades an Occupied cell (spec §4.5.1).
func (g *Grid) markState(ix, iz int, s State) {
	idx, ok := g.index(ix, iz)
	if !ok {
		return
	}
	c := &g.cells[idx]
	if c.State == Occupied && s != Occupied {
		return
	}
	c.State = s
	c.HitCount++
	c.Confidence = saturatingAdd(c.Confidence, g.p.ObservationBoost, g.p.MaxConfidence)
}

// UpdateFromDepthSample projects a bearing/distance reading from the user's
// position into the grid and applies a floor or obstacle height update
// (spec §4.4 update_from_depth_sample).
func (g *Grid) UpdateFromDepthSample(userX, userZ, bearing, distance float64, isGround bool, obstacleHeight float64) {
	if math.IsInf(distance, 0) || math.IsNaN(distance) {
		return
	}
	wx := userX + math.Sin(bearing)*distance
	wz := userZ + math.Cos(bearing)*distance

	ix, iz, ok := g.WorldToGrid(wx, wz)
	if !ok {
		return
	}

	if isGround {
		g.AddFloorPoint(ix, iz, g.floorHeight)
	} else {
		g.AddObstaclePoint(ix, iz, g.floorHeight+obstacleHeight)
	}
}

// UpdateFromDetection marks a perpendicular strip of cells Occupied along a
// detector bearing, with a confidence boost proportional to detector
// confidence (spec §4.4 update_from_detection). It never decreases
// confidence and never sets a cell to Unknown (spec §8 prop 4).
func (g *Grid) UpdateFromDetection(userX, userZ, bearing, distance, width, confidence float64) {
	if math.IsInf(distance, 0) || math.IsNaN(distance) {
		return
	}

	wx := userX + math.Sin(bearing)*distance
	wz := userZ + math.Cos(bearing)*distance

	// Perpendicular unit vector to the bearing direction.
	perpX := math.Cos(bearing)
	perpZ := -math.Sin(bearing)

	halfWidth := width / 2
	steps := int(math.Ceil(halfWidth / g.p.CellSize))
	if steps < 1 {
		steps = 1
	}

	boost := uint8(clampFloat(confidence, 0, 1) * float64(g.p.ObservationBoost))
	if boost == 0 && confidence > 0 {
		boost = 1
	}

	for s := -steps; s <= steps; s++ {
		px := wx + perpX*float64(s)*g.p.CellSize
		pz := wz + perpZ*float64(s)*g.p.CellSize
		ix, iz, ok := g.WorldToGrid(px, pz)
		if !ok {
			continue
		}
		idx, _ := g.index(ix, iz)
		c := &g.cells[idx]
		c.State = Occupied
		c.HitCount++
		c.Confidence = saturatingAdd(c.Confidence, boost, g.p.MaxConfidence)
	}
}

// MarkFree marks a single cell Free via the scene-projection path
// (spec §4.5.1); used by NavigationPlanner.
func (g *Grid) MarkFree(ix, iz int) { g.markState(ix, iz, Free) }

// MarkOccupied marks a single cell Occupied via the scene-projection path.
func (g *Grid) MarkOccupied(ix, iz int) { g.markState(ix, iz, Occupied) }

// MarkDiscontinuity marks a single cell with a discontinuity state
// (Step/Curb/Dropoff), never overwriting Occupied (spec §4.5.1).
func (g *Grid) MarkDiscontinuity(ix, iz int, s State) { g.markState(ix, iz, s) }

// NearestObstacle DDA ray-marches from (fromX, fromZ) along heading at
// CellSize increments, returning the distance to the first blocking cell
// (Occupied|Curb|Dropoff), or +Inf if none within maxDistance (spec §4.4).
func (g *Grid) NearestObstacle(fromX, fromZ, heading, maxDistance float64) float64 {
	sinH, cosH := math.Sin(heading), math.Cos(heading)
	steps := int(maxDistance / g.p.CellSize)
	for i := 1; i <= steps; i++ {
		d := float64(i) * g.p.CellSize
		wx := fromX + sinH*d
		wz := fromZ + cosH*d
		ix, iz, ok := g.WorldToGrid(wx, wz)
		if !ok {
			continue
		}
		c, _ := g.CellAt(ix, iz)
		if c.State.IsBlocking() {
			return d
		}
	}
	return math.Inf(1)
}

// IsSafe reports whether the cell at (wx, wz) is Free, Ramp, or Step.
// Unknown, other states, and out-of-grid points are unsafe (spec §4.4).
func (g *Grid) IsSafe(wx, wz float64) bool {
	ix, iz, ok := g.WorldToGrid(wx, wz)
	if !ok {
		return false
	}
	c, _ := g.CellAt(ix, iz)
	switch c.State {
	case Free, Ramp, Step:
		return true
	default:
		return false
	}
}

// Classify recomputes state/elevation for every valid cell with a finite
// min_height, after point additions for the frame (spec §4.4 Classification).
// It must never downgrade Occupied, which downstream markers already own.
func (g *Grid) Classify() {
	valid, obstacle, step := 0, 0, 0
	for i := range g.cells {
		c := &g.cells[i]
		if !c.IsValid(g.p.MinHitCount) || math.IsInf(float64(c.MinHeight), 0) {
			if c.State == Occupied {
				obstacle++
			}
			if c.IsValid(g.p.MinHitCount) {
				valid++
			}
			continue
		}

		valid++
		c.Elevation = float32(float64(c.MinHeight) - g.floorHeight)
		obstacleHeight := math.Max(0, float64(c.MaxHeight-c.MinHeight))

		if c.State != Occupied {
			if obstacleHeight > g.p.ObstacleHeightThreshold {
				c.State = Occupied
			} else {
				c.State = Free
			}
		}

		switch c.State {
		case Occupied:
			obstacle++
		case Step:
			step++
		}
	}
	g.validCellCount = valid
	g.obstacleCellCount = obstacle
	g.stepCellCount = step
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
