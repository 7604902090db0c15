package depthmap

import (
	"math"
	"testing"
)

func TestNewRejectsMismatchedLength(t *testing.T) {
	if _, err := New(2, 2, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected error for mismatched data length")
	}
}

func TestNewRejectsNonPositiveDims(t *testing.T) {
	if _, err := New(0, 2, nil); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestMinMaxDepth(t *testing.T) {
	dm, err := New(2, 2, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if dm.MinDepth() != 1 || dm.MaxDepth() != 4 {
		t.Errorf("expected min=1 max=4, got min=%v max=%v", dm.MinDepth(), dm.MaxDepth())
	}
}

func TestMinMaxDepthAllNonFinite(t *testing.T) {
	inf := float32(math.Inf(1))
	dm, err := New(1, 2, []float32{inf, inf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !math.IsInf(dm.MinDepth(), 1) || !math.IsInf(dm.MaxDepth(), -1) {
		t.Errorf("expected min=+Inf max=-Inf, got min=%v max=%v", dm.MinDepth(), dm.MaxDepth())
	}
}

func TestDepthAtPixelOutOfRange(t *testing.T) {
	dm, _ := New(2, 2, []float32{1, 2, 3, 4})
	if v := dm.DepthAtPixel(-1, 0); !math.IsInf(v, 1) {
		t.Errorf("expected +Inf out of range, got %v", v)
	}
	if v := dm.DepthAtPixel(5, 5); !math.IsInf(v, 1) {
		t.Errorf("expected +Inf out of range, got %v", v)
	}
	if v := dm.DepthAtPixel(0, 0); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}
}

func TestDepthAtNormalizedBilinear(t *testing.T) {
	// 2x2 grid: corners 0,10 / 0,10 top and bottom rows identical -> pure x interpolation
	dm, _ := New(2, 2, []float32{0, 10, 0, 10})
	v := dm.DepthAtNormalized(0.5, 0.5)
	if math.Abs(v-5) > 1e-9 {
		t.Errorf("expected ~5 at center, got %v", v)
	}
	if v := dm.DepthAtNormalized(0, 0); v != 0 {
		t.Errorf("expected 0 at (0,0), got %v", v)
	}
	if v := dm.DepthAtNormalized(1, 0); v != 10 {
		t.Errorf("expected 10 at (1,0), got %v", v)
	}
}

func TestDepthAtNormalizedOutOfRange(t *testing.T) {
	dm, _ := New(2, 2, []float32{0, 10, 0, 10})
	if v := dm.DepthAtNormalized(-0.1, 0.5); !math.IsInf(v, 1) {
		t.Errorf("expected +Inf, got %v", v)
	}
	if v := dm.DepthAtNormalized(0.5, 1.1); !math.IsInf(v, 1) {
		t.Errorf("expected +Inf, got %v", v)
	}
}

func TestAverageDepthSkipsNonFinite(t *testing.T) {
	inf := float32(math.Inf(1))
	dm, _ := New(2, 2, []float32{2, inf, 4, 6})
	avg := dm.AverageDepth(Rect{X: 0, Y: 0, W: 2, H: 2})
	// finite samples: 2, 4, 6 -> mean 4
	if math.Abs(avg-4) > 1e-9 {
		t.Errorf("expected mean 4, got %v", avg)
	}
}

func TestAverageDepthEmptyRegion(t *testing.T) {
	dm, _ := New(2, 2, []float32{1, 2, 3, 4})
	avg := dm.AverageDepth(Rect{X: 5, Y: 5, W: 2, H: 2})
	if !math.IsInf(avg, 1) {
		t.Errorf("expected +Inf for empty region, got %v", avg)
	}
}
