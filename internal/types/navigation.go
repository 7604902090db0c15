package types

// NavigationOutput is the per-frame navigation decision NavigationPlanner
// produces (spec §3).
type NavigationOutput struct {
	SuggestedHeading        float64
	Clearance               float64
	NearestObstacleDistance float64
	NearestObstacleBearing  float64
	DiscontinuityAhead      *Discontinuity
	GroundConfidence        float64
	IsPathBlocked           bool
}

// SensorStats is the per-frame health/perf snapshot the pipeline driver
// publishes alongside NavigationOutput (spec §4.6).
type SensorStats struct {
	FPS            float64
	LastVisionMS   float64
	FramesConsumed uint64
	FramesDropped  uint64
	Skipped        uint64
}
