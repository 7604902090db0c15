// Package config centralizes PATHFINDER's tunables: grid geometry, elevation
// thresholds, temporal decay, processing parameters and the debug stream.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete PATHFINDER tunable table (spec §4.1).
type Config struct {
	Grid       GridConfig       `yaml:"grid"`
	Elevation  ElevationConfig  `yaml:"elevation"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Processing ProcessingConfig `yaml:"processing"`
	Stream     StreamConfig     `yaml:"stream"`
	Scene      SceneConfig      `yaml:"scene"`
}

// GridConfig controls the occupancy grid's footprint and recenter behavior.
type GridConfig struct {
	CellSize           float64 `yaml:"cell_size"`            // meters
	GridSize           int     `yaml:"grid_size"`            // cells per side
	MaxDistance        float64 `yaml:"max_distance"`         // meters
	RecenterEdgeMargin float64 `yaml:"recenter_edge_margin"` // fraction of half-extent
}

// ElevationConfig controls surface-discontinuity classification thresholds, meters.
type ElevationConfig struct {
	StepMin        float64 `yaml:"step_min"`
	StepMax        float64 `yaml:"step_max"`
	CurbMin        float64 `yaml:"curb_min"`
	Dropoff        float64 `yaml:"dropoff"`
	RampMaxSlope   float64 `yaml:"ramp_max_slope"`
	StairStepSize  float64 `yaml:"stair_step_size"`
	StairTolerance float64 `yaml:"stair_tolerance"`
	ObstacleHeight float64 `yaml:"obstacle_height"`
	FloorTolerance float64 `yaml:"floor_tolerance"`
}

// TemporalConfig controls confidence decay and observation boosts.
type TemporalConfig struct {
	ConfidenceDecay  float64 `yaml:"confidence_decay"`  // per 60Hz-equivalent frame
	MinConfidence    uint8   `yaml:"min_confidence"`
	ObservationBoost uint8   `yaml:"observation_boost"` // saturating add
	MaxConfidence    uint8   `yaml:"max_confidence"`
}

// ProcessingConfig controls smoothing and per-cell validity thresholds.
type ProcessingConfig struct {
	HeadingSmoothingAlpha   float64 `yaml:"heading_smoothing_alpha"`
	MinFloorSamples         int     `yaml:"min_floor_samples"`
	MinHitCount             uint16  `yaml:"min_hit_count"`
	ElevationMergeThreshold float64 `yaml:"elevation_merge_threshold"` // meters
}

// StreamConfig controls the debug stream cadence and binding.
type StreamConfig struct {
	SendEveryNFrames    int `yaml:"send_every_n_frames"`
	MaxElevationChanges int `yaml:"max_elevation_changes"`
	TCPPort             int `yaml:"tcp_port"`
}

// SceneConfig controls SceneAnalyzer behavior, including the walkable label
// set used to interpret segmentation output (spec §6 default walkable IDs).
type SceneConfig struct {
	Columns                     int     `yaml:"columns"`
	SkyDepthThreshold           float64 `yaml:"sky_depth_threshold"`
	DiscontinuityMinAbsGradient float64 `yaml:"discontinuity_min_abs_gradient"`
	DiscontinuityThreshold      float64 `yaml:"discontinuity_threshold"`
	WalkableIDs                 []uint8 `yaml:"walkable_ids"`
}

// DefaultWalkableIDs is the COCO-panoptic-stuff default walkable label set
// (spec §6). Overridable via Config.Scene.WalkableIDs.
var DefaultWalkableIDs = []uint8{
	101, 111, 114, 115, 116, 117, 118, 124, 125, 126,
	131, 136, 140, 144, 145, 147, 149, 152, 154, 161,
}

// Default returns a Config populated with the contract defaults from spec §4.1.
func Default() *Config {
	return &Config{
		Grid: GridConfig{
			CellSize:           0.10,
			GridSize:           200,
			MaxDistance:        10.0,
			RecenterEdgeMargin: 0.2,
		},
		Elevation: ElevationConfig{
			StepMin:        0.05,
			StepMax:        0.20,
			CurbMin:        0.20,
			Dropoff:        0.30,
			RampMaxSlope:   0.15,
			StairStepSize:  0.18,
			StairTolerance: 0.03,
			ObstacleHeight: 0.25,
			FloorTolerance: 0.20,
		},
		Temporal: TemporalConfig{
			ConfidenceDecay:  0.995,
			MinConfidence:    20,
			ObservationBoost: 30,
			MaxConfidence:    255,
		},
		Processing: ProcessingConfig{
			HeadingSmoothingAlpha:   0.2,
			MinFloorSamples:         10,
			MinHitCount:             3,
			ElevationMergeThreshold: 0.5,
		},
		Stream: StreamConfig{
			SendEveryNFrames:    3,
			MaxElevationChanges: 10,
			TCPPort:             8765,
		},
		Scene: SceneConfig{
			Columns:                     36,
			SkyDepthThreshold:           0.95,
			DiscontinuityMinAbsGradient: 0.3,
			DiscontinuityThreshold:      0.08,
			WalkableIDs:                 append([]uint8(nil), DefaultWalkableIDs...),
		},
	}
}

// Load reads and parses a YAML configuration file, filling any unset field
// with the contract default and then validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// WalkableSet returns the configured walkable label set as a lookup set.
func (c *Config) WalkableSet() map[uint8]struct{} {
	set := make(map[uint8]struct{}, len(c.Scene.WalkableIDs))
	for _, id := range c.Scene.WalkableIDs {
		set[id] = struct{}{}
	}
	return set
}
