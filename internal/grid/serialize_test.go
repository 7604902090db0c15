package grid

import "testing"

func serializeTestParams() Params {
	return Params{
		CellSize:                0.10,
		GridSize:                8,
		RecenterEdgeMargin:      0.2,
		ConfidenceDecay:         0.995,
		MinConfidence:           20,
		ObservationBoost:        30,
		MaxConfidence:           255,
		MinHitCount:             1,
		ObstacleHeightThreshold: 0.25,
	}
}

func TestToCompactBytesSizeMatchesGridSize(t *testing.T) {
	g := New(serializeTestParams())
	out := g.ToCompactBytes()

	want := g.p.GridSize * g.p.GridSize * 2
	if len(out) != want {
		t.Fatalf("expected %d bytes, got %d", want, len(out))
	}
}

func TestToCompactBytesEncodesOccupiedCellAhead(t *testing.T) {
	g := New(serializeTestParams())
	g.UpdateUserPose(0, 0, 0)

	ix, iz, ok := g.WorldToGrid(0, 0.35)
	if !ok {
		t.Fatalf("expected forward cell to be in grid")
	}
	g.AddObstaclePoint(ix, iz, 0.5)
	g.MarkOccupied(ix, iz)

	out := g.ToCompactBytes()

	n := g.p.GridSize
	half := n / 2
	oz := iz
	ox := ix
	_ = half

	idx := (oz*n + ox) * 2
	if State(out[idx]) != Occupied {
		t.Errorf("expected Occupied state byte at forward cell, got %d", out[idx])
	}
}

func TestFromCompactBytesRoundTripsStateAndElevation(t *testing.T) {
	p := serializeTestParams()
	g := New(p)
	g.UpdateUserPose(0, 0, 0)

	ix, iz, ok := g.WorldToGrid(0, 0.35)
	if !ok {
		t.Fatalf("expected forward cell to be in grid")
	}
	g.AddObstaclePoint(ix, iz, 0.5)
	g.MarkOccupied(ix, iz)

	jx, jz, ok := g.WorldToGrid(-0.25, -0.15)
	if !ok {
		t.Fatalf("expected second cell to be in grid")
	}
	g.AddFloorPoint(jx, jz, 0.05)
	g.MarkFree(jx, jz)

	data := g.ToCompactBytes()

	decoded, err := FromCompactBytes(data, p, g.OriginX(), g.OriginZ(), g.UserHeading())
	if err != nil {
		t.Fatalf("FromCompactBytes failed: %v", err)
	}

	wantOccupied, _ := g.CellAt(ix, iz)
	gotOccupied, _ := decoded.CellAt(ix, iz)
	if gotOccupied.State != wantOccupied.State {
		t.Errorf("expected state %v at occupied cell, got %v", wantOccupied.State, gotOccupied.State)
	}
	if diff := float64(gotOccupied.Elevation - wantOccupied.Elevation); diff > 0.011 || diff < -0.011 {
		t.Errorf("expected elevation ~%v, got %v", wantOccupied.Elevation, gotOccupied.Elevation)
	}

	wantFree, _ := g.CellAt(jx, jz)
	gotFree, _ := decoded.CellAt(jx, jz)
	if gotFree.State != wantFree.State {
		t.Errorf("expected state %v at free cell, got %v", wantFree.State, gotFree.State)
	}
}

func TestFromCompactBytesRejectsWrongLength(t *testing.T) {
	p := serializeTestParams()
	if _, err := FromCompactBytes([]byte{1, 2, 3}, p, 0, 0, 0); err == nil {
		t.Fatal("expected an error for a mis-sized compact snapshot")
	}
}

func TestElevationCMSaturates(t *testing.T) {
	if got := ElevationCM(5.0); got != 127 {
		t.Errorf("expected saturation to 127, got %d", got)
	}
	if got := ElevationCM(-5.0); got != -127 {
		t.Errorf("expected saturation to -127, got %d", got)
	}
	if got := ElevationCM(0.10); got != 10 {
		t.Errorf("expected 10cm, got %d", got)
	}
}
