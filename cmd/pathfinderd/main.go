// Command pathfinderd is the PATHFINDER daemon: it wires the pipeline
// driver (intake mailbox, vision join, SceneAnalyzer -> OccupancyGrid ->
// NavigationPlanner) to its collaborators (vision model subprocesses,
// audio cue sink, debug stream server) and runs until signaled.
//
// Exit codes: 0 normal, 2 configuration error, 3 model load failure; a
// debug stream listener that fails to start also exits with 3.
// Flag/signal handling mirrors the teacher's cmd/oriond/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pathfinder-nav/pathfinder/internal/audio"
	"github.com/pathfinder-nav/pathfinder/internal/config"
	"github.com/pathfinder-nav/pathfinder/internal/health"
	"github.com/pathfinder-nav/pathfinder/internal/pipeline"
	"github.com/pathfinder-nav/pathfinder/internal/stream"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

const (
	defaultConfigPath   = "config/pathfinder.yaml"
	defaultHealthPort   = "8080"
	version             = "0.1.0"
	shutdownTimeout     = 5 * time.Second
	statsLogInterval    = 5 * time.Second
)

const (
	exitOK          = 0
	exitConfigError = 2
	exitModelError  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	port := flag.String("port", defaultHealthPort, "Health/readiness/metrics HTTP port")
	cellSize := flag.Float64("cell-size", 0, "Override grid.cell_size (meters)")
	gridSize := flag.Int("grid-size", 0, "Override grid.grid_size (cells per side)")
	maxDistance := flag.Float64("max-distance", 0, "Override grid.max_distance (meters)")
	walkableIDs := flag.String("walkable-ids", "", "Comma-separated override of scene.walkable_ids")
	depthModel := flag.String("depth-model", "", "Path to the depth model worker executable")
	segModel := flag.String("seg-model", "", "Path to the segmentation model worker executable")
	mqttBroker := flag.String("mqtt-broker", "localhost:1883", "MQTT broker address for audio cues")
	audioTopic := flag.String("audio-topic", "pathfinder/audio/cue", "MQTT topic for audio cues")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pathfinderd %s\n", version)
		return exitOK
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting pathfinder daemon", "config", *configPath, "debug", *debug, "version", version)

	cfg, err := loadConfig(*configPath, cellSize, gridSize, maxDistance, walkableIDs)
	if err != nil {
		slog.Error("configuration error", "error", err)
		return exitConfigError
	}

	depth, stopDepth, err := setupDepthRunner(*depthModel)
	if err != nil {
		slog.Error("model load error", "error", err)
		return exitModelError
	}
	defer stopDepth()

	seg, stopSeg, err := setupSegRunner(*segModel)
	if err != nil {
		slog.Error("model load error", "error", err)
		return exitModelError
	}
	defer stopSeg()

	audioSink := setupAudioSink(*mqttBroker, *audioTopic)
	streamServer := stream.NewServer(fmt.Sprintf(":%d", cfg.Stream.TCPPort), cfg.Stream.SendEveryNFrames)

	driver := pipeline.New(cfg, depth, seg, audioSink, streamServer)
	healthServer := health.New(driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := streamServer.Start(ctx); err != nil {
		slog.Error("failed to start debug stream server", "error", err)
		return exitModelError
	}

	httpSrv := healthServer.Start(*port)

	go driver.Run(ctx)
	go driver.StartStatsLogger(ctx, statsLogInterval)

	slog.Info("pathfinder daemon ready", "health_port", *port, "stream_port", cfg.Stream.TCPPort)

	<-sigCh
	slog.Info("received shutdown signal, shutting down gracefully", "timeout", shutdownTimeout)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown failed", "error", err)
	}
	streamServer.Stop()

	slog.Info("pathfinder daemon stopped")
	return exitOK
}

func loadConfig(path string, cellSize *float64, gridSize *int, maxDistance *float64, walkableIDs *string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if *cellSize > 0 {
		cfg.Grid.CellSize = *cellSize
	}
	if *gridSize > 0 {
		cfg.Grid.GridSize = *gridSize
	}
	if *maxDistance > 0 {
		cfg.Grid.MaxDistance = *maxDistance
	}
	if *walkableIDs != "" {
		ids, err := parseWalkableIDs(*walkableIDs)
		if err != nil {
			return nil, fmt.Errorf("invalid --walkable-ids: %w", err)
		}
		cfg.Scene.WalkableIDs = ids
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseWalkableIDs(csv string) ([]uint8, error) {
	parts := strings.Split(csv, ",")
	ids := make([]uint8, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("%q is not a valid label ID", p)
		}
		ids = append(ids, uint8(n))
	}
	return ids, nil
}

// unconfiguredDepthRunner/unconfiguredSegRunner stand in for the external
// vision model collaborator when no worker path was given: every call
// errors, which drives the pipeline's existing pass-through path (spec
// §5 "if a vision model runner fails ... publishes a pass-through ... and
// continues") rather than adding a second code path for "no runner".
type unconfiguredDepthRunner struct{}

func (unconfiguredDepthRunner) RunDepth(types.ColorFrame) (types.RawDepth, error) {
	return types.RawDepth{}, fmt.Errorf("no depth model worker configured")
}

type unconfiguredSegRunner struct{}

func (unconfiguredSegRunner) RunSeg(types.ColorFrame) (types.RawSegmentation, error) {
	return types.RawSegmentation{}, fmt.Errorf("no segmentation model worker configured")
}

func setupDepthRunner(path string) (types.DepthRunner, func(), error) {
	if path == "" {
		slog.Warn("no --depth-model configured, depth runner unavailable: pipeline will pass through frames")
		return unconfiguredDepthRunner{}, func() {}, nil
	}
	runner, err := newDepthProcessRunner(path)
	if err != nil {
		return nil, nil, fmt.Errorf("depth model load failed: %w", err)
	}
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runner.p.stop(ctx)
	}
	return runner, stop, nil
}

func setupSegRunner(path string) (types.SegRunner, func(), error) {
	if path == "" {
		slog.Warn("no --seg-model configured, segmentation runner unavailable: pipeline will pass through frames")
		return unconfiguredSegRunner{}, func() {}, nil
	}
	runner, err := newSegProcessRunner(path)
	if err != nil {
		return nil, nil, fmt.Errorf("segmentation model load failed: %w", err)
	}
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runner.p.stop(ctx)
	}
	return runner, stop, nil
}

// setupAudioSink connects the MQTT audio sink best-effort: the audio node
// is an optional collaborator (spec §1), so a broker that refuses the
// connection degrades the daemon rather than failing startup.
func setupAudioSink(broker, topic string) audio.Sink {
	if _, _, err := net.SplitHostPort(broker); err != nil {
		slog.Warn("invalid mqtt broker address, audio cues disabled", "broker", broker, "error", err)
		return nil
	}

	sink := audio.NewMQTTSink(broker, "pathfinderd", topic, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Connect(ctx); err != nil {
		slog.Warn("audio mqtt connect failed, audio cues disabled", "error", err, "broker", broker)
		return nil
	}
	return sink
}
