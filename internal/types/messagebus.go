package types

import (
	"context"

	"go.uber.org/zap"
)

type PostFn = func(msg Message)

type MessageHandler interface {
	Run(ctx context.Context, post PostFn) error
	Receive(message Message)
}

// MessageBus fans every posted message out to all receivers. Posting never
// blocks: when the bus is full the message is dropped.
type MessageBus struct {
	bus       chan Message
	receivers []MessageHandler
	log       *zap.Logger
}

func NewMessageBus(capacity int, log *zap.Logger, receivers ...MessageHandler) *MessageBus {
	return &MessageBus{make(chan Message, capacity), receivers, log}
}

func (mb *MessageBus) Post(msg Message) {
	busCapacity := cap(mb.bus)
	busLen := len(mb.bus)
	if busLen > busCapacity/2 {
		mb.log.Warn("bus capacity over 50%", zap.Int("len", busLen), zap.Int("cap", busCapacity))
	}
	select {
	case mb.bus <- msg:
	default:
		mb.log.Warn("bus full, message dropped", zap.String("type", msg.MessageType))
	}
}

func (mb *MessageBus) Run(ctx context.Context) error {
	for _, x := range mb.receivers {
		go func(h MessageHandler) {
			if err := h.Run(ctx, mb.Post); err != nil {
				mb.log.Error("bus receiver stopped", zap.Error(err))
			}
		}(x)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-mb.bus:
			for _, x := range mb.receivers {
				x.Receive(msg)
			}
		}
	}
}
