package config

import (
	"fmt"
	"math"
)

// Validate checks grid geometry and thresholds for finiteness and sane
// ranges, filling a handful of defaults the way the teacher's ValidateROIs
// fills missing topic/QoS defaults. Invalid geometry is fatal at startup
// (spec §7, ConfigError).
func Validate(cfg *Config) error {
	if cfg.Grid.GridSize <= 0 {
		return fmt.Errorf("grid.grid_size must be > 0")
	}
	if cfg.Grid.CellSize <= 0 {
		return fmt.Errorf("grid.cell_size must be > 0")
	}
	if !finite(cfg.Grid.CellSize) || !finite(cfg.Grid.MaxDistance) {
		return fmt.Errorf("grid dimensions must be finite")
	}
	if cfg.Grid.RecenterEdgeMargin < 0 || cfg.Grid.RecenterEdgeMargin >= 1 {
		return fmt.Errorf("grid.recenter_edge_margin must be in [0,1)")
	}

	if cfg.Temporal.ConfidenceDecay <= 0 || cfg.Temporal.ConfidenceDecay > 1 {
		return fmt.Errorf("temporal.confidence_decay must be in (0,1]")
	}
	if cfg.Temporal.MaxConfidence == 0 {
		return fmt.Errorf("temporal.max_confidence must be > 0")
	}
	if cfg.Temporal.MinConfidence > cfg.Temporal.MaxConfidence {
		return fmt.Errorf("temporal.min_confidence must be <= max_confidence")
	}

	if cfg.Processing.MinHitCount == 0 {
		cfg.Processing.MinHitCount = 3
	}
	if cfg.Processing.HeadingSmoothingAlpha <= 0 || cfg.Processing.HeadingSmoothingAlpha > 1 {
		return fmt.Errorf("processing.heading_smoothing_alpha must be in (0,1]")
	}

	if cfg.Stream.SendEveryNFrames <= 0 {
		cfg.Stream.SendEveryNFrames = 3
	}
	if cfg.Stream.TCPPort <= 0 {
		cfg.Stream.TCPPort = 8765
	}

	if cfg.Scene.Columns <= 0 {
		cfg.Scene.Columns = 36
	}
	if len(cfg.Scene.WalkableIDs) == 0 {
		cfg.Scene.WalkableIDs = append([]uint8(nil), DefaultWalkableIDs...)
	}
	if cfg.Scene.SkyDepthThreshold <= 0 {
		cfg.Scene.SkyDepthThreshold = 0.95
	}
	if cfg.Scene.DiscontinuityMinAbsGradient <= 0 {
		cfg.Scene.DiscontinuityMinAbsGradient = 0.3
	}
	if cfg.Scene.DiscontinuityThreshold <= 0 {
		cfg.Scene.DiscontinuityThreshold = 0.08
	}

	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
