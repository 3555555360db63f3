package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/events"
	"github.com/kilianp07/platoonsim/core/model"
	coremon "github.com/kilianp07/platoonsim/core/monitoring"
	"github.com/kilianp07/platoonsim/infra/logger"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
	connectErr  error
	disconnects int
}

func (m *mockClient) IsConnected() bool   { return true }
func (m *mockClient) Connect() paho.Token { return dummyToken{err: m.connectErr} }
func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic, qos, retained, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return dummyToken{err: err}
	}
	return dummyToken{}
}

func (m *mockClient) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Flush(time.Duration) {}

var testScenario = model.Scenario{PlatoonSize: 4, NumPlatoons: 10, Traffic: model.TrafficLight}

func withMockClient(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func newTestPublisher(t *testing.T, mc *mockClient, cfg Config) *Publisher {
	t.Helper()
	withMockClient(t, mc)
	if cfg.Broker == "" {
		cfg.Broker = "tcp://localhost:1883"
	}
	p, err := NewPublisher(cfg, logger.NopLogger{})
	require.NoError(t, err)
	return p
}

func decode(t *testing.T, p published) RunMessage {
	t.Helper()
	var msg RunMessage
	require.NoError(t, json.Unmarshal(p.payload, &msg))
	return msg
}

func TestNewPublisherAnnouncesOnline(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{TopicPrefix: "sim"})

	require.NotNil(t, mc.opts)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "sim/publisher/status", mc.opts.WillTopic)
	assert.Equal(t, "offline", string(mc.opts.WillPayload))

	msgs := mc.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sim/publisher/status", msgs[0].topic)
	assert.Equal(t, "online", string(msgs[0].payload))
	assert.True(t, msgs[0].retain)

	p.Disconnect()
	msgs = mc.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "offline", string(msgs[1].payload))
	assert.Equal(t, 1, mc.disconnects)
}

func TestNewPublisherConnectError(t *testing.T) {
	withMockClient(t, &mockClient{connectErr: errors.New("refused")})
	_, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}, logger.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestNewPublisherInvalidConfig(t *testing.T) {
	withMockClient(t, &mockClient{})
	_, err := NewPublisher(Config{Broker: "tcp://localhost:1883", QoS: 7}, logger.NopLogger{})
	require.Error(t, err)
}

func TestHandleLifecycle(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{TopicPrefix: "sim", QoS: 1, Retain: true})

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Handle(events.RunStarted{RunID: "r1", Scenario: testScenario, MaxSteps: 100, Time: start}))
	require.NoError(t, p.Handle(events.RunProgress{RunID: "r1", Scenario: testScenario, Step: 50, MaxSteps: 100, Vehicles: 12, Platoons: 3, Time: start}))
	summary := &model.Summary{Values: map[string]float64{"average_flow": 1.5, "average_platoon_headway": math.NaN()}}
	require.NoError(t, p.Handle(events.RunFinished{RunID: "r1", Scenario: testScenario, Steps: 100, Duration: 2 * time.Second, Summary: summary}))
	require.NoError(t, p.Handle("ignored"))

	msgs := mc.messages()[1:]
	require.Len(t, msgs, 3)

	assert.Equal(t, "sim/runs/r1/status", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.True(t, msgs[0].retain)
	started := decode(t, msgs[0])
	assert.Equal(t, StatusStarted, started.Status)
	assert.Equal(t, testScenario.Name(), started.Scenario)
	assert.Equal(t, 100, started.MaxSteps)
	assert.Equal(t, start.UnixMilli(), started.Timestamp)

	assert.Equal(t, "sim/runs/r1/progress", msgs[1].topic)
	assert.Equal(t, byte(0), msgs[1].qos)
	assert.False(t, msgs[1].retain)
	progress := decode(t, msgs[1])
	assert.Equal(t, StatusRunning, progress.Status)
	assert.Equal(t, 50, progress.Step)
	assert.Equal(t, 12, progress.Vehicles)
	assert.Equal(t, 3, progress.Platoons)

	finished := decode(t, msgs[2])
	assert.Equal(t, StatusFinished, finished.Status)
	assert.Equal(t, 100, finished.Step)
	assert.InDelta(t, 2.0, finished.DurationS, 1e-9)
	assert.Equal(t, map[string]float64{"average_flow": 1.5}, finished.Summary)
	assert.Empty(t, finished.Error)
}

func TestHandleFailedRun(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{})
	require.NoError(t, p.Handle(events.RunFinished{RunID: "r2", Scenario: testScenario, Err: errors.New("step 3: closed")}))

	msgs := mc.messages()
	msg := decode(t, msgs[len(msgs)-1])
	assert.Equal(t, StatusFailed, msg.Status)
	assert.Equal(t, "step 3: closed", msg.Error)
	assert.Nil(t, msg.Summary)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{MaxRetries: 2, BackoffMS: 1})
	mc.publishErrs = []error{errors.New("net fail"), nil}

	require.NoError(t, p.Handle(events.RunStarted{RunID: "r1", Scenario: testScenario}))
	assert.Len(t, mc.messages(), 3)
}

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{MaxRetries: 1, BackoffMS: 1})
	mc.publishErrs = []error{errors.New("net fail"), errors.New("net fail")}
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	err := p.Handle(events.RunStarted{RunID: "r9", Scenario: testScenario})
	require.Error(t, err)
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "r9", mon.tags["run_id"])
}

func TestStartForwardsBusEvents(t *testing.T) {
	mc := &mockClient{}
	p := newTestPublisher(t, mc, Config{})
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := p.Start(ctx, bus)

	bus.Publish(events.RunStarted{RunID: "r1", Scenario: testScenario})
	assert.Eventually(t, func() bool { return len(mc.messages()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}
