// Package stream implements the optional debug-stream collaborator
// (spec §6): a length-prefixed JSON snapshot of the grid and navigation
// state over TCP, emitted every send_every_n_frames.
package stream

import (
	"math"

	"github.com/pathfinder-nav/pathfinder/internal/grid"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

// Payload is the debug-stream wire frame (spec §6 field names are stable
// and intentionally camelCase to match the collaborator contract).
type Payload struct {
	Timestamp       float64    `json:"timestamp"`
	UserPosition    [3]float32 `json:"userPosition"`
	UserHeading     float32    `json:"userHeading"`
	NearestObstacle float32    `json:"nearestObstacle"`
	FloorHeight     float32    `json:"floorHeight"`
	GridSize        uint32     `json:"gridSize"`
	CellSize        float32    `json:"cellSize"`
	CellStates      []uint8    `json:"cellStates"`
	CellElevations  []int8     `json:"cellElevations"`
	ValidCells      uint32     `json:"validCells"`
	ObstacleCells   uint32     `json:"obstacleCells"`
	StepCells       uint32     `json:"stepCells"`

	NavigationHeading            *float32 `json:"navigationHeading,omitempty"`
	GroundConfidence             *float32 `json:"groundConfidence,omitempty"`
	ObstacleDistance             *float32 `json:"obstacleDistance,omitempty"`
	DiscontinuityCount           *uint32  `json:"discontinuityCount,omitempty"`
	NearestDiscontinuityDistance *float32 `json:"nearestDiscontinuityDistance,omitempty"`
}

// nearestObstacleSentinel is used in place of JSON-illegal +Inf (spec §6:
// "encoded as a large sentinel or JSON null per implementation").
const nearestObstacleSentinel = float32(1e9)

// BuildPayload assembles one debug-stream frame from the current grid and
// navigation output.
func BuildPayload(g *grid.Grid, nav types.NavigationOutput, userX, userY, userZ, timestamp, depthScale float64, discontinuityCount int) Payload {
	n := g.Params().GridSize
	states := make([]uint8, n*n)
	elevations := make([]int8, n*n)
	for iz := 0; iz < n; iz++ {
		for ix := 0; ix < n; ix++ {
			c, _ := g.CellAt(ix, iz)
			idx := iz*n + ix
			states[idx] = uint8(c.State)
			elevations[idx] = grid.ElevationCM(c.Elevation)
		}
	}

	nearest := float32(nav.NearestObstacleDistance)
	if math.IsInf(float64(nearest), 1) {
		nearest = nearestObstacleSentinel
	}

	p := Payload{
		Timestamp:       timestamp,
		UserPosition:    [3]float32{float32(userX), float32(userY), float32(userZ)},
		UserHeading:     float32(g.UserHeading()),
		NearestObstacle: nearest,
		FloorHeight:     float32(g.FloorHeight()),
		GridSize:        uint32(n),
		CellSize:        float32(g.Params().CellSize),
		CellStates:      states,
		CellElevations:  elevations,
		ValidCells:      uint32(g.ValidCellCount()),
		ObstacleCells:   uint32(g.ObstacleCellCount()),
		StepCells:       uint32(g.StepCellCount()),
	}

	navHeading := float32(nav.SuggestedHeading)
	p.NavigationHeading = &navHeading
	groundConf := float32(nav.GroundConfidence)
	p.GroundConfidence = &groundConf
	obstacleDist := nearest
	p.ObstacleDistance = &obstacleDist
	discoCount := uint32(discontinuityCount)
	p.DiscontinuityCount = &discoCount

	if nav.DiscontinuityAhead != nil {
		dist := float32(depthScale / (nav.DiscontinuityAhead.RelativeDepth + 1e-3))
		p.NearestDiscontinuityDistance = &dist
	}

	return p
}
