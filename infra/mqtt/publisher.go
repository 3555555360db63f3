package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/platoonsim/core/events"
	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	coremon "github.com/kilianp07/platoonsim/core/monitoring"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

// Run statuses carried in published messages.
const (
	StatusStarted  = "started"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// RunMessage is the JSON payload published for run lifecycle events.
type RunMessage struct {
	RunID       string             `json:"run_id"`
	Scenario    string             `json:"scenario"`
	PlatoonSize int                `json:"platoon_size"`
	NumPlatoons int                `json:"num_platoons"`
	Traffic     string             `json:"traffic"`
	Status      string             `json:"status"`
	Step        int                `json:"step,omitempty"`
	MaxSteps    int                `json:"max_steps,omitempty"`
	Vehicles    int                `json:"vehicles,omitempty"`
	Platoons    int                `json:"platoons,omitempty"`
	DurationS   float64            `json:"duration_s,omitempty"`
	Error       string             `json:"error,omitempty"`
	Summary     map[string]float64 `json:"summary,omitempty"`
	Timestamp   int64              `json:"timestamp"`
}

// Publisher forwards run events from the bus to an MQTT broker.
//
// Topics:
//
//	<prefix>/runs/<run_id>/status    started, finished, failed
//	<prefix>/runs/<run_id>/progress  step progress
type Publisher struct {
	cli pahoClient
	cfg Config
	log logger.Logger
}

// NewPublisher connects to the broker and announces the publisher as online
// on the LWT topic.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("mqtt connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Infof("MQTT connected to %s", cfg.Broker)
	p := &Publisher{cli: c, cfg: cfg, log: log}
	if cfg.LWTTopic != "" {
		if err := p.publish(cfg.LWTTopic, cfg.LWTQoS, cfg.LWTRetain, []byte("online")); err != nil {
			log.Warnf("announce online: %v", err)
		}
	}
	return p, nil
}

// StatusTopic returns the topic carrying lifecycle messages for runID.
func (p *Publisher) StatusTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/status", p.cfg.TopicPrefix, runID)
}

// ProgressTopic returns the topic carrying step progress for runID.
func (p *Publisher) ProgressTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/progress", p.cfg.TopicPrefix, runID)
}

// Start subscribes to bus and publishes every run event until ctx is
// canceled or the bus is closed. The returned channel is closed on exit.
func (p *Publisher) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := p.Handle(ev); err != nil {
					p.log.Errorf("mqtt publish: %v", err)
				}
			}
		}
	}()
	return done
}

// Handle publishes a single event. Unknown events are ignored.
func (p *Publisher) Handle(ev eventbus.Event) error {
	var (
		topic string
		msg   RunMessage
		qos   = p.cfg.QoS
	)
	switch e := ev.(type) {
	case events.RunStarted:
		msg = newRunMessage(e.RunID, e.Scenario, StatusStarted, e.Time)
		msg.MaxSteps = e.MaxSteps
		topic = p.StatusTopic(e.RunID)
	case events.RunProgress:
		msg = newRunMessage(e.RunID, e.Scenario, StatusRunning, e.Time)
		msg.Step = e.Step
		msg.MaxSteps = e.MaxSteps
		msg.Vehicles = e.Vehicles
		msg.Platoons = e.Platoons
		topic = p.ProgressTopic(e.RunID)
		qos = 0
	case events.RunFinished:
		msg = newRunMessage(e.RunID, e.Scenario, StatusFinished, time.Now())
		msg.Step = e.Steps
		msg.DurationS = e.Duration.Seconds()
		if e.Err != nil {
			msg.Status = StatusFailed
			msg.Error = e.Err.Error()
		}
		if e.Summary != nil {
			msg.Summary = finiteValues(e.Summary.Values)
		}
		topic = p.StatusTopic(e.RunID)
	default:
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	retain := p.cfg.Retain && topic == p.StatusTopic(msg.RunID)
	if err := p.publish(topic, qos, retain, payload); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": msg.RunID})
		return err
	}
	return nil
}

func (p *Publisher) publish(topic string, qos byte, retain bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Warnf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect marks the publisher offline and closes the connection.
func (p *Publisher) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.cfg.LWTTopic != "" {
		_ = p.publish(p.cfg.LWTTopic, p.cfg.LWTQoS, p.cfg.LWTRetain, []byte(p.cfg.LWTPayload))
	}
	p.cli.Disconnect(250)
}

func newRunMessage(runID string, sc model.Scenario, status string, ts time.Time) RunMessage {
	return RunMessage{
		RunID:       runID,
		Scenario:    sc.Name(),
		PlatoonSize: sc.PlatoonSize,
		NumPlatoons: sc.NumPlatoons,
		Traffic:     sc.Traffic.String(),
		Status:      status,
		Timestamp:   ts.UnixMilli(),
	}
}

// encoding/json rejects NaN and Inf.
func finiteValues(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
