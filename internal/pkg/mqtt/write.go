package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/model"
	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Write implements the publisher adapter: every relay transition becomes a
// retained per-relay state message plus one telemetry envelope for the
// backend ingestion pipeline.
func (s *Session) Write(ctx context.Context, changes []model.StateChange) error {
	for _, change := range changes {
		s.publishRelayState(change.Relay, change.On, change.Source, change.At)
	}

	payload := map[string]any{
		"relays": s.bank.States(),
	}
	envelope, err := json.Marshal(model.Envelope{
		DeviceID:  s.deviceID,
		Timestamp: time.Now().Unix(),
		Type:      model.EnvelopeTypeState,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	s.publish(model.TelemetryTopic(s.deviceID), 0, false, envelope)
	return nil
}

func (s *Session) publishRelayState(relay int, on bool, source string, at time.Time) {
	data, err := json.Marshal(model.RelayState{
		Relay:     relay,
		On:        on,
		Source:    source,
		Timestamp: at.Unix(),
	})
	if err != nil {
		s.logger.Error("failed to marshal relay state", zap.Error(err))
		return
	}
	s.publish(model.RelayStateTopic(s.deviceID, relay), 1, true, data)
}

func (s *Session) handleSetMessage(_ paho_mqtt.Client, msg paho_mqtt.Message) {
	idx, err := relayIndexFromTopic(msg.Topic())
	if err != nil {
		s.logger.Warn("ignoring malformed set message", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	cmd := model.Command{
		RequestID: uuid.NewString(),
		Action:    model.Action(string(msg.Payload())),
		Relay:     &idx,
	}
	s.applyCommand(cmd)
}

func (s *Session) handleCommandMessage(_ paho_mqtt.Client, msg paho_mqtt.Message) {
	cmd := model.Command{}
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		s.logger.Warn("ignoring malformed command", zap.ByteString("payload", msg.Payload()), zap.Error(err))
		return
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	s.applyCommand(cmd)
}

func (s *Session) applyCommand(cmd model.Command) {
	ack := model.Ack{
		RequestID: cmd.RequestID,
		Success:   true,
		Timestamp: time.Now().Unix(),
	}
	if !model.KnownAction(cmd.Action) {
		ack.Success = false
		ack.Error = "unknown action " + cmd.Action.String()
	} else if err := s.bank.Apply(context.Background(), cmd, model.SourceMQTT); err != nil {
		ack.Success = false
		ack.Error = err.Error()
	}

	if !ack.Success {
		s.logger.Warn("rejected relay command",
			zap.String("request_id", cmd.RequestID),
			zap.String("action", cmd.Action.String()),
			zap.String("error", ack.Error))
	}
	data, err := json.Marshal(ack)
	if err != nil {
		s.logger.Error("failed to marshal ack", zap.Error(err))
		return
	}
	s.publish(model.AckTopic(s.deviceID), 1, false, data)
}

func (s *Session) publish(topic string, qos byte, retained bool, payload []byte) {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Warn("publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("failed to publish", zap.String("topic", topic), zap.Error(err))
	}
}
