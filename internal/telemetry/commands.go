package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Controls interface {
	Abort()
}

type FrameSink interface {
	Put(data []byte) error
}

type controlCommand struct {
	Command   string
	Payload   string
	Timestamp time.Time
}

// SubscribeCommands listens on /devices/{id}/commands/#. The "control"
// subfolder carries JSON control commands, "frame" carries raw camera
// frames.
func SubscribeCommands(client mqtt.Client, deviceID string, controls Controls, frames FrameSink, log *zap.Logger) error {
	commandTopic := fmt.Sprintf("/devices/%s/commands/", deviceID)

	token := client.Subscribe(fmt.Sprintf("%v#", commandTopic), 0, func(client mqtt.Client, msg mqtt.Message) {
		subfolder := strings.TrimPrefix(msg.Topic(), commandTopic)
		switch subfolder {
		case "control":
			log.Info("got control command", zap.ByteString("payload", msg.Payload()))
			handleControlCommand(msg.Payload(), controls, log)
		case "frame":
			if err := frames.Put(msg.Payload()); err != nil {
				log.Debug("frame rejected", zap.Error(err))
			}
		default:
			log.Warn("unknown command subfolder", zap.String("subfolder", subfolder))
		}
	})
	if !token.WaitTimeout(10 * time.Second) {
		return errors.Errorf("subscribe to %s# timed out", commandTopic)
	}
	if err := token.Error(); err != nil {
		return errors.WithMessagef(err, "subscribe to %s# failed", commandTopic)
	}
	return nil
}

func handleControlCommand(payload []byte, controls Controls, log *zap.Logger) {
	var cmd controlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Warn("could not unmarshal command", zap.Error(err))
		return
	}

	switch cmd.Command {
	case "abort":
		log.Info("backend requesting abort")
		controls.Abort()
	default:
		log.Warn("unknown command", zap.String("command", cmd.Command))
	}
}
