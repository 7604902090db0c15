package grid

import (
	"math"
	"testing"
)

func TestHeightRangeZeroBeforeAnyHit(t *testing.T) {
	c := emptyCell()
	if got := c.HeightRange(); got != 0 {
		t.Errorf("expected HeightRange 0 on an unobserved cell, got %v", got)
	}
}

func TestHeightRangeReflectsFloorAndObstaclePoints(t *testing.T) {
	c := emptyCell()
	c.addFloorPoint(0.0, 30, 255)
	c.addObstaclePoint(0.4, 30, 255)

	if got := c.HeightRange(); math.Abs(float64(got-0.4)) > 1e-6 {
		t.Errorf("expected HeightRange ~0.4, got %v", got)
	}
}
