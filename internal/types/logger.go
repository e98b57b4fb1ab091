package types

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

type logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) MessageHandler {
	return &logger{log}
}

func (l *logger) Receive(message Message) {
	b, _ := json.Marshal(message.Message)
	l.log.Info("message",
		zap.String("type", message.MessageType),
		zap.String("from", message.From),
		zap.String("to", message.To),
		zap.ByteString("body", b))
}

func (l *logger) Run(ctx context.Context, post PostFn) error {
	return nil
}
