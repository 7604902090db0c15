// Package planner implements NavigationPlanner (spec §4.5, C6): projects a
// SceneUnderstanding into the occupancy grid and ray-marches candidate
// headings to pick a suggested direction, clearance, and hazard summary.
package planner

import (
	"math"

	"github.com/pathfinder-nav/pathfinder/internal/grid"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

const (
	headingRays     = 36
	headingSpan     = math.Pi / 2 // +/- 90 degrees
	threatRays      = 18
	threatSpan      = math.Pi / 4 // +/- 45 degrees
	defaultMaxMarch = 10.0        // meters; overridden by Params.MaxMarch when set
	obstacleEps     = 1e-6
	discoEps        = 1e-3
	maxMetricDepth  = 30.0
)

// Params are NavigationPlanner's tunables (spec §4.5).
type Params struct {
	DepthScale      float64
	SmoothingFactor float64
	SafetyMargin    float64
	ObstacleHeight  float64 // meters above floor_height; spec §4.1 Elevation.obstacle_height
	MaxMarch        float64 // meters; spec §4.5 step 4 max_march, config Grid.max_distance
}

// DefaultParams returns the contract defaults from spec §4.5.
func DefaultParams() Params {
	return Params{DepthScale: 10.0, SmoothingFactor: 0.3, SafetyMargin: 0.5, ObstacleHeight: 0.25, MaxMarch: defaultMaxMarch}
}

// maxMarch returns the configured march budget, falling back to the spec
// §4.5 default if Params was constructed without one (zero value).
func (pl *Planner) maxMarch() float64 {
	if pl.p.MaxMarch > 0 {
		return pl.p.MaxMarch
	}
	return defaultMaxMarch
}

// Planner holds the only state a NavigationPlanner carries across frames:
// the previous smoothed heading offset (spec §4.5).
type Planner struct {
	p               Params
	previousHeading float64
}

// New constructs a Planner with previous_heading starting at 0.
func New(p Params) *Planner {
	return &Planner{p: p}
}

// PreviousHeading returns the planner's current smoothed heading offset.
func (pl *Planner) PreviousHeading() float64 { return pl.previousHeading }

// Update runs one planning frame: projects the scene into the grid, decays
// and recenters the grid, ray-marches for a heading and hazard summary, and
// returns the frame's NavigationOutput (spec §4.5).
func (pl *Planner) Update(scene types.SceneUnderstanding, userX, userZ, userHeading, dt float64, g *grid.Grid) types.NavigationOutput {
	pl.projectScene(scene, userX, userZ, userHeading, g)

	g.ApplyDecay(dt)
	g.UpdateUserPose(userX, userZ, userHeading)
	g.Classify()

	cellSize := g.Params().CellSize
	maxMarch := pl.maxMarch()

	bestScore := math.Inf(-1)
	bestAngle := 0.0
	bestClearance := 0.0
	anySurvived := false

	for i := 0; i < headingRays; i++ {
		angle := angleAt(i, headingRays, headingSpan)
		rayHeading := userHeading + angle

		dist, blocked, stepPenalty := marchRay(g, userX, userZ, rayHeading, maxMarch, cellSize)
		clearance := dist
		if !blocked {
			clearance = maxMarch
		}
		if clearance <= pl.p.SafetyMargin {
			continue
		}

		score := clearance * (1 - math.Abs(angle)/math.Pi*0.5) * stepPenalty
		anySurvived = true
		if score > bestScore {
			bestScore = score
			bestAngle = angle
			bestClearance = clearance
		}
	}

	isPathBlocked := !anySurvived

	raw := bestAngle
	if isPathBlocked {
		raw = 0
	}
	smoothed := pl.p.SmoothingFactor*raw + (1-pl.p.SmoothingFactor)*pl.previousHeading
	pl.previousHeading = smoothed

	nearestDist, nearestBearing := pl.forwardThreatScan(g, userX, userZ, userHeading, cellSize)

	discontinuityAhead := nearestDiscontinuityAhead(scene, pl.p.DepthScale)

	groundConfidence := meanOf(scene.Traversability)

	clearanceOut := bestClearance
	if isPathBlocked {
		clearanceOut = 0
	}

	return types.NavigationOutput{
		SuggestedHeading:        smoothed,
		Clearance:               clearanceOut,
		NearestObstacleDistance: nearestDist,
		NearestObstacleBearing:  nearestBearing,
		DiscontinuityAhead:      discontinuityAhead,
		GroundConfidence:        groundConfidence,
		IsPathBlocked:           isPathBlocked,
	}
}

// forwardThreatScan casts 18 rays over +/-45 degrees and returns the
// distance and bearing of the nearest blocking cell found, or (+Inf, 0) if
// none (spec §4.5 step 6).
func (pl *Planner) forwardThreatScan(g *grid.Grid, userX, userZ, userHeading, cellSize float64) (float64, float64) {
	minDist := math.Inf(1)
	minBearing := 0.0

	for i := 0; i < threatRays; i++ {
		angle := angleAt(i, threatRays, threatSpan)
		rayHeading := userHeading + angle

		dist, blocked, _ := marchRay(g, userX, userZ, rayHeading, pl.maxMarch(), cellSize)
		if blocked && dist < minDist {
			minDist = dist
			minBearing = angle
		}
	}

	return minDist, minBearing
}

// projectScene folds the scene descriptor into the grid (spec §4.5.1).
func (pl *Planner) projectScene(scene types.SceneUnderstanding, userX, userZ, userHeading float64, g *grid.Grid) {
	cellSize := g.Params().CellSize

	for c := 0; c < scene.Columns; c++ {
		worldBearing := scene.ColumnBearings[c] + userHeading
		sinB, cosB := math.Sin(worldBearing), math.Cos(worldBearing)

		obstacleRaw := scene.ObstacleDistance[c]
		hasObstacle := !math.IsInf(obstacleRaw, 0) && !math.IsNaN(obstacleRaw)

		freeDistance := 5.0
		if hasObstacle {
			metersObstacle := toMeters(obstacleRaw, pl.p.DepthScale, obstacleEps)
			freeDistance = math.Min(5.0, metersObstacle)
		}

		if scene.Traversability[c] > 0.7 {
			for d := 0.5; d <= freeDistance; d += cellSize {
				wx := userX + sinB*d
				wz := userZ + cosB*d
				if ix, iz, ok := g.WorldToGrid(wx, wz); ok {
					g.MarkFree(ix, iz)
					// spec §4.4 update_from_depth_sample (ground): height
					// update uses floor_height, so Classify sees a finite
					// min_height and can compute elevation/obstacle_height.
					g.AddFloorPoint(ix, iz, g.FloorHeight())
				}
			}
		}

		if hasObstacle {
			metersObstacle := toMeters(obstacleRaw, pl.p.DepthScale, obstacleEps)
			wx := userX + sinB*metersObstacle
			wz := userZ + cosB*metersObstacle
			if ix, iz, ok := g.WorldToGrid(wx, wz); ok {
				g.MarkOccupied(ix, iz)
				// spec §4.4 update_from_depth_sample (obstacle): height is
				// floor_height + obstacle_height.
				g.AddObstaclePoint(ix, iz, g.FloorHeight()+pl.p.ObstacleHeight)
			}
		}

		if d := discontinuityInColumn(scene, c); d != nil {
			metersDepth := toMeters(d.RelativeDepth, pl.p.DepthScale, obstacleEps)
			wx := userX + sinB*metersDepth
			wz := userZ + cosB*metersDepth
			if ix, iz, ok := g.WorldToGrid(wx, wz); ok {
				g.MarkDiscontinuity(ix, iz, discontinuityState(d.Magnitude))
			}
		}
	}
}

func discontinuityState(magnitude float64) grid.State {
	switch {
	case magnitude < 0.3:
		return grid.Step
	case magnitude <= 0.6:
		return grid.Curb
	default:
		return grid.Dropoff
	}
}

func discontinuityInColumn(scene types.SceneUnderstanding, column int) *types.Discontinuity {
	for i := range scene.Discontinuities {
		if scene.Discontinuities[i].Column == column {
			return &scene.Discontinuities[i]
		}
	}
	return nil
}

func nearestDiscontinuityAhead(scene types.SceneUnderstanding, depthScale float64) *types.Discontinuity {
	var best *types.Discontinuity
	bestDist := math.Inf(1)
	for i := range scene.Discontinuities {
		d := &scene.Discontinuities[i]
		if math.Abs(d.Bearing) >= math.Pi/4 {
			continue
		}
		dist := depthScale / (d.RelativeDepth + discoEps)
		if dist < bestDist {
			bestDist = dist
			best = d
		}
	}
	return best
}

// marchRay DDA ray-marches from (fromX,fromZ) along heading at cellSize
// increments up to maxDistance. It returns the distance to the first
// blocking cell (Occupied|Curb|Dropoff), whether one was found, and the
// accumulated step penalty (min(penalty, 0.7) if a Step cell was crossed;
// marching continues through Step cells rather than stopping, spec §4.5).
func marchRay(g *grid.Grid, fromX, fromZ, heading, maxDistance, cellSize float64) (float64, bool, float64) {
	sinH, cosH := math.Sin(heading), math.Cos(heading)
	stepPenalty := 1.0

	steps := int(maxDistance / cellSize)
	for i := 1; i <= steps; i++ {
		d := float64(i) * cellSize
		wx := fromX + sinH*d
		wz := fromZ + cosH*d

		ix, iz, ok := g.WorldToGrid(wx, wz)
		if !ok {
			continue
		}
		c, _ := g.CellAt(ix, iz)

		if c.State.IsBlocking() {
			return d, true, stepPenalty
		}
		if c.State == grid.Step {
			if stepPenalty > 0.7 {
				stepPenalty = 0.7
			}
		}
	}

	return maxDistance, false, stepPenalty
}

func toMeters(raw, depthScale, eps float64) float64 {
	m := depthScale / (raw + eps)
	if m < 0 {
		m = 0
	}
	if m > maxMetricDepth {
		m = maxMetricDepth
	}
	return m
}

func angleAt(i, count int, span float64) float64 {
	if count <= 1 {
		return 0
	}
	return -span + float64(i)*(2*span)/float64(count-1)
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
