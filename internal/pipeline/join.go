package pipeline

import (
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

// visionResult is the joined output of the depth and segmentation workers
// for one frame (spec §5: "two cooperating workers ... joined before scene
// analysis ... implemented as a count-down barrier per frame").
type visionResult struct {
	Depth    types.RawDepth
	DepthErr error
	Seg      types.RawSegmentation
	SegErr   error
}

// runVisionJoin runs depth and segmentation concurrently on the same frame
// and blocks until both complete (the slower worker is the one the caller
// waits on; spec §5 "Vision join").
func runVisionJoin(frame types.ColorFrame, depth types.DepthRunner, seg types.SegRunner) visionResult {
	var res visionResult
	done := make(chan struct{}, 2)

	go func() {
		res.Depth, res.DepthErr = depth.RunDepth(frame)
		done <- struct{}{}
	}()
	go func() {
		res.Seg, res.SegErr = seg.RunSeg(frame)
		done <- struct{}{}
	}()

	<-done
	<-done
	return res
}
