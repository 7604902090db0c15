package grid

import (
	"fmt"
	"math"
)

// ToCompactBytes encodes the grid as the compact binary snapshot from
// spec §6: gridSize^2 * 2 bytes, row-major (z outer, x inner), each output
// cell a (state, elevation_cm) pair. Output cells are enumerated in the
// heading-aligned frame — local coordinates are rotated into world space by
// user_heading before lookup; out-of-grid output cells encode (0, 0).
func (g *Grid) ToCompactBytes() []byte {
	n := g.p.GridSize
	out := make([]byte, 0, n*n*2)

	sinH, cosH := math.Sin(g.userHeading), math.Cos(g.userHeading)
	half := float64(n) / 2

	for oz := 0; oz < n; oz++ {
		lz := (float64(oz) - half + 0.5) * g.p.CellSize
		for ox := 0; ox < n; ox++ {
			lx := (float64(ox) - half + 0.5) * g.p.CellSize

			worldDX := lx*cosH + lz*sinH
			worldDZ := -lx*sinH + lz*cosH

			wx := g.originX + worldDX
			wz := g.originZ + worldDZ

			ix, iz, ok := g.WorldToGrid(wx, wz)
			if !ok {
				out = append(out, 0, 0)
				continue
			}

			c, _ := g.CellAt(ix, iz)
			out = append(out, byte(c.State), byte(ElevationCM(c.Elevation)))
		}
	}

	return out
}

// FromCompactBytes is the inverse of ToCompactBytes (spec §8 testable
// property 6: "serialize + deserialize ... yields identical state and
// elevation"). It rebuilds a Grid at the given origin/heading from a
// compact snapshot produced at that same origin/heading; hit_count and
// confidence are not part of the wire format and are reset to a single
// observation for any non-Unknown cell rather than left stale.
func FromCompactBytes(data []byte, p Params, originX, originZ, userHeading float64) (*Grid, error) {
	n := p.GridSize
	want := n * n * 2
	if len(data) != want {
		return nil, fmt.Errorf("compact grid snapshot: expected %d bytes, got %d", want, len(data))
	}

	g := New(p)
	g.originX, g.originZ, g.userHeading = originX, originZ, userHeading

	sinH, cosH := math.Sin(userHeading), math.Cos(userHeading)
	half := float64(n) / 2

	for oz := 0; oz < n; oz++ {
		lz := (float64(oz) - half + 0.5) * p.CellSize
		for ox := 0; ox < n; ox++ {
			lx := (float64(ox) - half + 0.5) * p.CellSize

			worldDX := lx*cosH + lz*sinH
			worldDZ := -lx*sinH + lz*cosH

			wx := originX + worldDX
			wz := originZ + worldDZ

			ix, iz, ok := g.WorldToGrid(wx, wz)
			if !ok {
				continue
			}
			ci, ok := g.index(ix, iz)
			if !ok {
				continue
			}

			byteIdx := (oz*n + ox) * 2
			state := State(data[byteIdx])
			elevation := elevationFromCM(int8(data[byteIdx+1]))

			g.cells[ci].State = state
			g.cells[ci].Elevation = elevation
			if state != Unknown {
				g.cells[ci].HitCount = 1
				g.cells[ci].Confidence = saturatingAdd(0, p.ObservationBoost, p.MaxConfidence)
			}
		}
	}

	return g, nil
}

// elevationFromCM is the inverse of ElevationCM.
func elevationFromCM(cm int8) float32 {
	return float32(cm) / 100.0
}

// ElevationCM converts meters to a saturating signed centimeter value
// (spec §6, cellElevations: [i8; gridSize^2] in cm, saturating to +/-127).
// Shared by the compact binary encoding here and the debug stream's JSON
// payload (internal/stream), so the two wire formats can never disagree on
// rounding or saturation.
func ElevationCM(elevationM float32) int8 {
	cm := math.Round(float64(elevationM) * 100)
	if cm > 127 {
		cm = 127
	}
	if cm < -127 {
		cm = -127
	}
	return int8(cm)
}
