package stream

import (
	"math"
	"net"
	"testing"

	"github.com/pathfinder-nav/pathfinder/internal/grid"
	"github.com/pathfinder-nav/pathfinder/internal/types"
)

func testGridParams() grid.Params {
	return grid.Params{
		CellSize:                0.1,
		GridSize:                20,
		RecenterEdgeMargin:      0.2,
		ConfidenceDecay:         0.995,
		MinConfidence:           20,
		ObservationBoost:        30,
		MaxConfidence:           255,
		MinHitCount:             3,
		ObstacleHeightThreshold: 0.25,
	}
}

func TestBuildPayloadSizesMatchGrid(t *testing.T) {
	g := grid.New(testGridParams())
	nav := types.NavigationOutput{NearestObstacleDistance: math.Inf(1)}

	p := BuildPayload(g, nav, 0, 0, 0, 1.0, 10.0, 0)

	n := testGridParams().GridSize
	if len(p.CellStates) != n*n {
		t.Errorf("expected %d cell states, got %d", n*n, len(p.CellStates))
	}
	if len(p.CellElevations) != n*n {
		t.Errorf("expected %d cell elevations, got %d", n*n, len(p.CellElevations))
	}
	if p.NearestObstacle != nearestObstacleSentinel {
		t.Errorf("expected +Inf obstacle distance encoded as sentinel, got %v", p.NearestObstacle)
	}
	if p.GridSize != uint32(n) {
		t.Errorf("expected gridSize %d, got %d", n, p.GridSize)
	}
}

func TestBuildPayloadDiscontinuityDistance(t *testing.T) {
	g := grid.New(testGridParams())
	nav := types.NavigationOutput{
		NearestObstacleDistance: math.Inf(1),
		DiscontinuityAhead:      &types.Discontinuity{RelativeDepth: 5.0},
	}

	p := BuildPayload(g, nav, 0, 0, 0, 1.0, 10.0, 1)

	if p.NearestDiscontinuityDistance == nil {
		t.Fatal("expected nearestDiscontinuityDistance to be set")
	}
	if math.Abs(float64(*p.NearestDiscontinuityDistance)-2.0) > 0.01 {
		t.Errorf("expected ~2m, got %v", *p.NearestDiscontinuityDistance)
	}
}

func TestServerPublishRespectsCadence(t *testing.T) {
	s := NewServer("127.0.0.1:0", 3)
	p := Payload{GridSize: 1, CellStates: []uint8{0}, CellElevations: []int8{0}}

	// A client with no writer goroutine: its outbox shows how many frames
	// Publish actually offered.
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	c := &client{conn: serverConn, outbox: make(chan []byte, outboxSize)}
	s.clients[serverConn] = c

	for i := 0; i < 7; i++ {
		s.Publish(p)
	}

	if got := len(c.outbox); got != 2 {
		t.Errorf("expected 2 frames offered (calls 3 and 6 of 7), got %d", got)
	}
	sent, _, _ := s.Stats()
	if sent != 0 {
		t.Errorf("expected 0 sent with no writer goroutine running, got %d", sent)
	}
	if s.frameCount != 7 {
		t.Errorf("expected frame counter at 7, got %d", s.frameCount)
	}
}
