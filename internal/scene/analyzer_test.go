package scene

import (
	"math"
	"testing"

	"github.com/pathfinder-nav/pathfinder/internal/depthmap"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

func walkableParams() Params {
	return Params{
		Columns:                     12,
		WalkableIDs:                 map[uint8]struct{}{5: {}},
		SkyDepthThreshold:           0.95,
		DiscontinuityMinAbsGradient: 0.3,
		DiscontinuityThreshold:      0.08,
	}
}

func uniformDepth(t *testing.T, w, h int, fill float32) *depthmap.DepthMap {
	t.Helper()
	data := make([]float32, w*h)
	for i := range data {
		data[i] = fill
	}
	dm, err := depthmap.New(w, h, data)
	if err != nil {
		t.Fatalf("depthmap.New failed: %v", err)
	}
	return dm
}

func TestAnalyzeAllWalkableMonotoneDepth(t *testing.T) {
	w, h := 24, 24
	depthData := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			depthData[y*w+x] = float32(0.3 + 0.01*float64(h-y))
		}
	}
	dm, err := depthmap.New(w, h, depthData)
	if err != nil {
		t.Fatalf("depthmap.New failed: %v", err)
	}

	labels := make([]uint8, w*h)
	for i := range labels {
		labels[i] = 5
	}
	seg := types.RawSegmentation{Width: w, Height: h, Labels: labels}

	a := New(walkableParams())
	out := a.Analyze(dm, seg, 2.0)

	for c := 0; c < out.Columns; c++ {
		if out.Traversability[c] != 1.0 {
			t.Errorf("column %d: expected traversability 1.0, got %v", c, out.Traversability[c])
		}
		if !math.IsInf(out.ObstacleDistance[c], 1) {
			t.Errorf("column %d: expected obstacle_distance +Inf, got %v", c, out.ObstacleDistance[c])
		}
	}
	if len(out.Discontinuities) != 0 {
		t.Errorf("expected no discontinuities, got %d", len(out.Discontinuities))
	}
	if out.GroundPlaneRatio != 1.0 {
		t.Errorf("expected ground_plane_ratio 1.0, got %v", out.GroundPlaneRatio)
	}
}

func TestAnalyzeWallOnLeft(t *testing.T) {
	w, h := 24, 24
	depthData := make([]float32, w*h)
	labels := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				labels[y*w+x] = 9 // non-walkable wall
				depthData[y*w+x] = 0.3
			} else {
				labels[y*w+x] = 5 // walkable floor
				depthData[y*w+x] = 0.3 + 0.01*float32(h-y)
			}
		}
	}
	dm, _ := depthmap.New(w, h, depthData)
	seg := types.RawSegmentation{Width: w, Height: h, Labels: labels}

	a := New(walkableParams())
	out := a.Analyze(dm, seg, 2.0)

	for c := 0; c < 6; c++ {
		if out.Traversability[c] != 0 {
			t.Errorf("column %d expected traversability 0, got %v", c, out.Traversability[c])
		}
	}
	for c := 6; c < 12; c++ {
		if out.Traversability[c] != 1.0 {
			t.Errorf("column %d expected traversability 1.0, got %v", c, out.Traversability[c])
		}
	}
}

func TestAnalyzeNoWalkablePixelsIsNoError(t *testing.T) {
	w, h := 8, 8
	dm := uniformDepth(t, w, h, 0.5)
	labels := make([]uint8, w*h)
	for i := range labels {
		labels[i] = 200 // not in walkable set
	}
	seg := types.RawSegmentation{Width: w, Height: h, Labels: labels}

	a := New(walkableParams())
	out := a.Analyze(dm, seg, 2.0)

	for c := 0; c < out.Columns; c++ {
		if out.Traversability[c] != 0 {
			t.Errorf("column %d expected 0 traversability, got %v", c, out.Traversability[c])
		}
	}
	if out.GroundPlaneRatio != 0 {
		t.Errorf("expected ground_plane_ratio 0, got %v", out.GroundPlaneRatio)
	}
}

func TestAnalyzeUniformGradientHasNoDiscontinuity(t *testing.T) {
	w, h := 4, 16
	depthData := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// perfectly linear gradient bottom->top
			depthData[y*w+x] = float32(0.1 + 0.02*float64(h-1-y))
		}
	}
	dm, _ := depthmap.New(w, h, depthData)
	labels := make([]uint8, w*h)
	for i := range labels {
		labels[i] = 5
	}
	seg := types.RawSegmentation{Width: w, Height: h, Labels: labels}

	p := walkableParams()
	p.Columns = 4
	a := New(p)
	out := a.Analyze(dm, seg, 2.0)

	if len(out.Discontinuities) != 0 {
		t.Errorf("expected no discontinuities on uniform gradient, got %d", len(out.Discontinuities))
	}
}
