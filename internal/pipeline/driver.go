// Package pipeline implements the Pipeline driver (spec §4.6, C7): frame
// intake, backpressure, the vision-worker join, and fan-out of each
// frame's NavigationOutput to the audio and debug-stream collaborators.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathfinder-nav/pathfinder/internal/audio"
	"github.com/pathfinder-nav/pathfinder/internal/config"
	"github.com/pathfinder-nav/pathfinder/internal/depthmap"
	"github.com/pathfinder-nav/pathfinder/internal/grid"
	"github.com/pathfinder-nav/pathfinder/internal/planner"
	"github.com/pathfinder-nav/pathfinder/internal/scene"
	"github.com/pathfinder-nav/pathfinder/internal/stream"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

const bootstrapDt = 1.0 / 60

// Driver is the sole writer of the grid and of previous_heading (spec §5).
// It owns the intake mailbox, runs the vision join, and drives
// SceneAnalyzer -> NavigationPlanner once per accepted frame.
type Driver struct {
	depth types.DepthRunner
	seg   types.SegRunner

	analyzer *scene.Analyzer
	planner  *planner.Planner
	grid     *grid.Grid

	audioSink    audio.Sink
	streamServer *stream.Server

	depthScale float64

	mailbox *mailbox

	headingSmoothingAlpha float64

	mu               sync.RWMutex
	lastOutput       types.NavigationOutput
	lastStats        types.SensorStats
	lastTimestampS   float64
	haveFirstFrame   bool
	fpsEMA           float64
	lastUserX        float64
	lastUserY        float64
	lastUserZ        float64
	discontinuities  int
	streamConnected  bool
	audioConnected   bool

	haveSmoothHeading bool
	smoothHeading     float64
}

// New constructs a Driver from config and the two vision model runner
// collaborators (spec §1 "out of scope, interfaces only").
func New(cfg *config.Config, depth types.DepthRunner, seg types.SegRunner, audioSink audio.Sink, streamServer *stream.Server) *Driver {
	g := grid.New(grid.Params{
		CellSize:                cfg.Grid.CellSize,
		GridSize:                cfg.Grid.GridSize,
		RecenterEdgeMargin:      cfg.Grid.RecenterEdgeMargin,
		ConfidenceDecay:         cfg.Temporal.ConfidenceDecay,
		MinConfidence:           cfg.Temporal.MinConfidence,
		ObservationBoost:        cfg.Temporal.ObservationBoost,
		MaxConfidence:           cfg.Temporal.MaxConfidence,
		MinHitCount:             cfg.Processing.MinHitCount,
		ObstacleHeightThreshold: cfg.Elevation.ObstacleHeight,
	})

	a := scene.New(scene.Params{
		Columns:                     cfg.Scene.Columns,
		WalkableIDs:                 cfg.WalkableSet(),
		SkyDepthThreshold:           cfg.Scene.SkyDepthThreshold,
		DiscontinuityMinAbsGradient: cfg.Scene.DiscontinuityMinAbsGradient,
		DiscontinuityThreshold:      cfg.Scene.DiscontinuityThreshold,
	})

	// SmoothingFactor here is the planner's own internal previous_heading
	// smoothing of its suggested-heading output (spec §4.5, hardcoded 0.3),
	// distinct from headingSmoothingAlpha below which drives the driver's
	// separate pose-heading smoother (spec §4.6).
	p := planner.New(planner.Params{
		DepthScale:      10.0,
		SmoothingFactor: planner.DefaultParams().SmoothingFactor,
		SafetyMargin:    0.5,
		ObstacleHeight:  cfg.Elevation.ObstacleHeight,
		MaxMarch:        cfg.Grid.MaxDistance,
	})

	return &Driver{
		depth:                 depth,
		seg:                   seg,
		analyzer:              a,
		planner:               p,
		grid:                  g,
		audioSink:             audioSink,
		streamServer:          streamServer,
		depthScale:            10.0,
		headingSmoothingAlpha: cfg.Processing.HeadingSmoothingAlpha,
		mailbox:               newMailbox(),
	}
}

// OnFrame is the frame intake API (spec §6 on_frame): non-blocking, returns
// immediately. Runs on the intake thread.
func (d *Driver) OnFrame(frame types.ColorFrame) {
	frame.TraceID = uuid.New().String()
	d.mailbox.Put(types.FrameEvent{Frame: frame, ArrivedAt: time.Now()})
}

// Run is the pipeline worker loop: it blocks on the mailbox, processes one
// frame at a time, and returns when ctx is canceled (spec §5 pipeline
// thread is the sole writer of the grid and previous_heading).
func (d *Driver) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.mailbox.Close()
	}()

	for {
		ev, ok := d.mailbox.Take()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.processFrame(ev)
	}
}

func (d *Driver) processFrame(ev types.FrameEvent) {
	frame := ev.Frame
	visionStart := time.Now()

	dt := bootstrapDt
	d.mu.RLock()
	haveFirst := d.haveFirstFrame
	lastTS := d.lastTimestampS
	d.mu.RUnlock()
	if haveFirst && frame.TimestampS > lastTS {
		dt = frame.TimestampS - lastTS
	}

	userX, userY, userZ := frame.Pose.Position()
	userHeading := d.smoothUserHeading(frame.UserHeading())

	result := runVisionJoin(frame, d.depth, d.seg)
	visionMS := float64(time.Since(visionStart).Microseconds()) / 1000.0

	var out types.NavigationOutput
	discoCount := 0

	if result.DepthErr != nil || result.SegErr != nil {
		// spec §5: vision model runner failure -> pass-through with no
		// scene evidence, pipeline continues.
		slog.Warn("vision runner failed, publishing pass-through output",
			"depth_err", result.DepthErr, "seg_err", result.SegErr, "trace_id", frame.TraceID)
		out = types.NavigationOutput{NearestObstacleDistance: math.Inf(1), GroundConfidence: 0, IsPathBlocked: false}
	} else if result.Depth.Width*result.Depth.Height != len(result.Depth.Data) {
		slog.Warn("depth output shape mismatch, skipping frame", "trace_id", frame.TraceID)
		d.bumpSkipped()
		return
	} else {
		dm, err := depthmap.New(result.Depth.Width, result.Depth.Height, result.Depth.Data)
		if err != nil {
			slog.Warn("depthmap construction failed, skipping frame", "error", err, "trace_id", frame.TraceID)
			d.bumpSkipped()
			return
		}

		hfov := 2 * math.Atan(float64(frame.Width)/(2*frame.Intrinsics.FX))
		sceneOut := d.analyzer.Analyze(dm, result.Seg, hfov)
		discoCount = len(sceneOut.Discontinuities)

		out = d.planner.Update(sceneOut, userX, userZ, userHeading, dt, d.grid)
	}

	d.publish(out, frame.TimestampS, dt, visionMS, userX, userY, userZ, discoCount)
	d.emit(out, frame.TimestampS, userX, userY, userZ, discoCount)
}

func (d *Driver) publish(out types.NavigationOutput, timestampS, dt, visionMS, userX, userY, userZ float64, discoCount int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastOutput = out
	d.lastTimestampS = timestampS
	d.haveFirstFrame = true
	d.lastUserX, d.lastUserY, d.lastUserZ = userX, userY, userZ
	d.discontinuities = discoCount

	if dt > 0 {
		fps := 1.0 / dt
		if d.fpsEMA == 0 {
			d.fpsEMA = fps
		} else {
			d.fpsEMA = 0.1*fps + 0.9*d.fpsEMA
		}
	}

	d.lastStats.FramesConsumed++
	d.lastStats.FramesDropped = d.mailbox.Drops()
	d.lastStats.FPS = d.fpsEMA
	d.lastStats.LastVisionMS = visionMS
}

// smoothUserHeading applies the driver's own per-frame exponential filter
// on the shortest-arc difference to the raw pose heading (spec §4.6,
// §5 "Pose smoother state: pipeline thread only") before it ever reaches
// NavigationPlanner. This is distinct from the planner's internal
// previous_heading smoothing of its own suggested-heading output (§4.5).
func (d *Driver) smoothUserHeading(raw float64) float64 {
	if !d.haveSmoothHeading {
		d.smoothHeading = raw
		d.haveSmoothHeading = true
		return d.smoothHeading
	}

	diff := shortestArc(raw - d.smoothHeading)
	d.smoothHeading += d.headingSmoothingAlpha * diff
	return d.smoothHeading
}

func shortestArc(angle float64) float64 {
	for angle > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle < -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

func (d *Driver) bumpSkipped() {
	d.mu.Lock()
	d.lastStats.Skipped++
	d.mu.Unlock()
}

// emit maps the frame's output to an audio cue and a debug-stream payload
// (spec §4.6 audio mapping, §6 debug stream). Both are best-effort and
// never block the pipeline thread beyond the audio publish call itself.
func (d *Driver) emit(out types.NavigationOutput, timestampS, userX, userY, userZ float64, discoCount int) {
	if d.audioSink != nil {
		if cue := audio.FromNavigationOutput(out, d.depthScale); cue != nil {
			if err := d.audioSink.Emit(*cue); err != nil {
				slog.Debug("audio cue emit failed", "error", err)
				d.mu.Lock()
				d.audioConnected = false
				d.mu.Unlock()
			} else {
				d.mu.Lock()
				d.audioConnected = true
				d.mu.Unlock()
			}
		}
	}

	if d.streamServer != nil {
		payload := stream.BuildPayload(d.grid, out, userX, userY, userZ, timestampS, d.depthScale, discoCount)
		d.streamServer.Publish(payload)
		_, _, clients := d.streamServer.Stats()
		d.mu.Lock()
		d.streamConnected = clients > 0
		d.mu.Unlock()
	}
}

// LastOutput returns the most recently published NavigationOutput.
func (d *Driver) LastOutput() types.NavigationOutput {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOutput
}

// SensorStats implements health.Source.
func (d *Driver) SensorStats() types.SensorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastStats
}

// GroundConfidence implements health.Source.
func (d *Driver) GroundConfidence() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOutput.GroundConfidence
}

// IsPathBlocked implements health.Source.
func (d *Driver) IsPathBlocked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOutput.IsPathBlocked
}

// StreamConnected implements health.Source.
func (d *Driver) StreamConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.streamConnected
}

// AudioConnected implements health.Source.
func (d *Driver) AudioConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.audioConnected
}
