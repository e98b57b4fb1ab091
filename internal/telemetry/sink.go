package telemetry

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

// Sink forwards bus messages to /devices/{id}/events/{message type}.
// Publishing is fire-and-forget.
type Sink struct {
	client   mqtt.Client
	deviceID string
	inbox    chan types.Message
	log      *zap.Logger
}

func NewSink(client mqtt.Client, deviceID string, log *zap.Logger) *Sink {
	return &Sink{client, deviceID, make(chan types.Message, 100), log}
}

func (s *Sink) Receive(message types.Message) {
	select {
	case s.inbox <- message:
	default:
		s.log.Warn("telemetry inbox full, message dropped", zap.String("type", message.MessageType))
	}
}

func (s *Sink) Run(ctx context.Context, post types.PostFn) error {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("telemetry sink shutting down")
			return nil
		case msg := <-s.inbox:
			s.publish(msg)
		}
	}
}

func (s *Sink) publish(msg types.Message) {
	b, err := msg.ToJSON()
	if err != nil {
		s.log.Error("could not marshal message", zap.String("type", msg.MessageType), zap.Error(err))
		return
	}
	topic := fmt.Sprintf("/devices/%s/events/%s", s.deviceID, msg.MessageType)
	s.client.Publish(topic, QoS, Retain, b)
}
