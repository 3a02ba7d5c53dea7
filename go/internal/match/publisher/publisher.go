package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/events"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Publisher pushes committed transition events onto a message bus
type Publisher interface {
	Publish(ctx context.Context, evt events.TransitionEvent) error
	Close() error
}

// Kind selects the bus implementation
type Kind string

const (
	KindLog      Kind = "log"
	KindNATS     Kind = "nats"
	KindRabbitMQ Kind = "amqp"
)

// Config holds settings for every supported bus; only the selected one is used
type Config struct {
	Kind      Kind            `yaml:"kind"`
	JetStream JetStreamConfig `yaml:"jetstream"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
}

// DefaultConfig logs events without a broker
func DefaultConfig() Config {
	return Config{
		Kind:      KindLog,
		JetStream: DefaultJetStreamConfig(),
		RabbitMQ:  DefaultRabbitMQConfig(),
	}
}

// New connects the configured publisher
func New(cfg Config) (Publisher, error) {
	switch cfg.Kind {
	case KindLog, "":
		return NewLogPublisher(), nil
	case KindNATS:
		return NewJetStreamPublisher(cfg.JetStream)
	case KindRabbitMQ:
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	}
	return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
}

// envelope is the bus wire format shared by all publishers
type envelope struct {
	EventID   string            `json:"eventId"`
	EventType events.EventType  `json:"eventType"`
	MatchID   string            `json:"matchId"`
	Seq       int64             `json:"seq"`
	Trigger   string            `json:"trigger"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   events.MatchState `json:"payload"`
}

func marshalEnvelope(evt events.TransitionEvent) ([]byte, error) {
	data, err := json.Marshal(envelope{
		EventID:   evt.ID,
		EventType: evt.Type,
		MatchID:   evt.MatchID,
		Seq:       evt.Seq,
		Trigger:   evt.Trigger,
		Timestamp: evt.Timestamp.UTC(),
		Payload:   evt.State,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// LogPublisher writes events to the log. It is the default when no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, evt events.TransitionEvent) error {
	log.Info().
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("match_id", evt.MatchID).
		Int64("seq", evt.Seq).
		Str("trigger", evt.Trigger).
		Int("minute", evt.State.CurrentMinute).
		Int("second", evt.State.CurrentSecond).
		Msg("match event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
