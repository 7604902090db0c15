package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Sink is anything that can deliver a Cue to the spatial audio collaborator.
type Sink interface {
	Emit(cue Cue) error
}

// payload is the wire shape handed to the audio node (spec §1, §4.6): the
// collaborator contract is "consumes {nearest_distance, bearing,
// surface_change} events".
type payload struct {
	Kind           string  `json:"kind"`
	NearestDistance float64 `json:"nearest_distance"`
	Bearing        float64 `json:"bearing"`
	SurfaceChange  bool    `json:"surface_change"`
	Severity       float64 `json:"severity,omitempty"`
	Caution        bool    `json:"caution,omitempty"`
}

// MQTTSink publishes cues to the configured MQTT broker topic, adapted from
// the teacher's MQTTEmitter (auto-reconnect, one QoS for every cue, publish
// stats).
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTSink constructs a sink bound to broker/topic; it does not connect.
func NewMQTTSink(broker, clientID, topic string, qos byte) *MQTTSink {
	s := &MQTTSink{topic: topic, qos: qos}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		slog.Info("audio mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		slog.Warn("audio mqtt connection lost, will auto-reconnect", "error", err, "broker", broker)
	}

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes the MQTT connection, waiting up to 5s for the broker.
func (s *MQTTSink) Connect(ctx context.Context) error {
	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("audio mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("audio mqtt connect failed: %w", err)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Disconnect closes the MQTT connection.
func (s *MQTTSink) Disconnect() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Emit publishes one cue as JSON to the audio topic.
func (s *MQTTSink) Emit(cue Cue) error {
	if !s.isConnected() {
		s.bumpError()
		return fmt.Errorf("audio mqtt not connected")
	}

	p := payload{
		Kind:            cue.Kind.String(),
		NearestDistance: cue.Distance,
		Bearing:         cue.Bearing,
		SurfaceChange:   cue.Kind == SurfaceChange,
		Severity:        cue.Severity,
		Caution:         cue.Caution,
	}
	data, err := json.Marshal(p)
	if err != nil {
		s.bumpError()
		return fmt.Errorf("marshal audio cue: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, false, data)
	if !token.WaitTimeout(2 * time.Second) {
		s.bumpError()
		return fmt.Errorf("audio mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		s.bumpError()
		return fmt.Errorf("audio mqtt publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

// Stats returns the sink's publish counters.
func (s *MQTTSink) Stats() (published, errors uint64, connected bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published, s.errors, s.connected
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MQTTSink) bumpError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}
