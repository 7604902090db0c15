package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// StartStatsLogger periodically logs driver throughput and alerts on a high
// drop rate, adapted from the teacher's framebus.StartStatsLogger.
func (d *Driver) StartStatsLogger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prevConsumed, prevDropped uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := d.SensorStats()

			deltaConsumed := stats.FramesConsumed - prevConsumed
			deltaDropped := stats.FramesDropped - prevDropped
			total := deltaConsumed + deltaDropped

			if total > 0 {
				dropRate := float64(deltaDropped) / float64(total)
				if dropRate > 0.80 {
					slog.Warn("pipeline high drop rate detected",
						"drop_rate_pct", int(dropRate*100),
						"dropped_last_interval", deltaDropped,
						"consumed_last_interval", deltaConsumed,
						"action", "check vision worker health")
				}
			}

			slog.Debug("pipeline stats",
				"fps", stats.FPS,
				"last_vision_ms", stats.LastVisionMS,
				"frames_consumed", stats.FramesConsumed,
				"frames_dropped", stats.FramesDropped,
				"skipped", stats.Skipped,
			)

			prevConsumed, prevDropped = stats.FramesConsumed, stats.FramesDropped
		}
	}
}
