package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/relay-controller/internal/pkg/config"
	"github.com/anicoll/relay-controller/internal/pkg/model"
)

type mockToken struct {
	err      error
	timedOut bool
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *mockToken) Error() error { return t.err }

type publishRecord struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type mockClient struct {
	mu           sync.Mutex
	publishes    []publishRecord
	subs         map[string]paho_mqtt.MessageHandler
	connectToken paho_mqtt.Token
	connected    bool
}

func (c *mockClient) IsConnected() bool      { return c.connected }
func (c *mockClient) IsConnectionOpen() bool { return c.connected }

func (c *mockClient) Connect() paho_mqtt.Token {
	c.connected = true
	if c.connectToken != nil {
		return c.connectToken
	}
	return &mockToken{}
}

func (c *mockClient) Disconnect(quiesce uint) { c.connected = false }

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, _ := payload.([]byte)
	c.publishes = append(c.publishes, publishRecord{topic: topic, qos: qos, retained: retained, payload: data})
	return &mockToken{}
}

func (c *mockClient) Subscribe(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = map[string]paho_mqtt.MessageHandler{}
	}
	c.subs[topic] = callback
	return &mockToken{}
}

func (c *mockClient) SubscribeMultiple(filters map[string]byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	return &mockToken{}
}

func (c *mockClient) Unsubscribe(topics ...string) paho_mqtt.Token { return &mockToken{} }

func (c *mockClient) AddRoute(topic string, callback paho_mqtt.MessageHandler) {}

func (c *mockClient) OptionsReader() paho_mqtt.ClientOptionsReader {
	return paho_mqtt.ClientOptionsReader{}
}

func (c *mockClient) published(topic string) []publishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := []publishRecord{}
	for _, record := range c.publishes {
		if record.topic == topic {
			records = append(records, record)
		}
	}
	return records
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

type fakeBank struct {
	mu      sync.Mutex
	applied []model.Command
	states  []bool
	err     error
}

func (b *fakeBank) Apply(_ context.Context, cmd model.Command, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.applied = append(b.applied, cmd)
	return nil
}

func (b *fakeBank) States() []bool {
	if b.states == nil {
		return []bool{false, false, false, false}
	}
	return b.states
}

type fakeTracker struct {
	mu     sync.Mutex
	events []model.ConnEvent
}

func (f *fakeTracker) Dispatch(_ context.Context, event model.ConnEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func newTestSession(t *testing.T) (*Session, *mockClient, *fakeBank, *fakeTracker) {
	t.Helper()
	originalLogger := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() { zap.ReplaceGlobals(originalLogger) })

	client := &mockClient{}
	originalNewClient := newClient
	newClient = func(opts *paho_mqtt.ClientOptions) paho_mqtt.Client { return client }
	t.Cleanup(func() { newClient = originalNewClient })

	bank := &fakeBank{}
	tracker := &fakeTracker{}
	cfg := &config.Config{
		Device: &config.DeviceConfig{
			ID:     "room-101",
			Secret: "7a9aa8ccac979310a8ace9b4a1beedf78439af3ea91ccd5f",
		},
		Mqtt: &config.MqttConfig{Host: "172.16.3.171", Port: 1883},
	}
	return New(cfg, bank, tracker), client, bank, tracker
}

func TestRelayIndexFromTopic(t *testing.T) {
	tests := map[string]struct {
		topic   string
		want    int
		wantErr bool
	}{
		"relay zero":     {topic: "classroom/room-101/relay/0/set", want: 0},
		"relay three":    {topic: "classroom/room-101/relay/3/set", want: 3},
		"state topic":    {topic: "classroom/room-101/relay/0/state", wantErr: true},
		"too few parts":  {topic: "classroom/room-101/relay", wantErr: true},
		"not a number":   {topic: "classroom/room-101/relay/two/set", wantErr: true},
		"wrong resource": {topic: "classroom/room-101/cmd/0/set", wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			idx, err := relayIndexFromTopic(tt.topic)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx)
		})
	}
}

func TestHandleSetMessage(t *testing.T) {
	session, client, bank, _ := newTestSession(t)

	session.handleSetMessage(client, &mockMessage{
		topic:   "classroom/room-101/relay/2/set",
		payload: []byte("on"),
	})

	require.Len(t, bank.applied, 1)
	assert.Equal(t, model.ActionOn, bank.applied[0].Action)
	require.NotNil(t, bank.applied[0].Relay)
	assert.Equal(t, 2, *bank.applied[0].Relay)

	acks := client.published(model.AckTopic("room-101"))
	require.Len(t, acks, 1)
	ack := model.Ack{}
	require.NoError(t, json.Unmarshal(acks[0].payload, &ack))
	assert.True(t, ack.Success)
}

func TestHandleSetMessageBadTopic(t *testing.T) {
	session, client, bank, _ := newTestSession(t)

	session.handleSetMessage(client, &mockMessage{
		topic:   "classroom/room-101/relay/nine",
		payload: []byte("on"),
	})

	assert.Empty(t, bank.applied)
	assert.Empty(t, client.publishes)
}

func TestHandleCommandMessage(t *testing.T) {
	session, client, bank, _ := newTestSession(t)
	relay := 1

	payload, err := json.Marshal(model.Command{RequestID: "req-7", Action: model.ActionToggle, Relay: &relay})
	require.NoError(t, err)
	session.handleCommandMessage(client, &mockMessage{
		topic:   "classroom/room-101/cmd",
		payload: payload,
	})

	require.Len(t, bank.applied, 1)
	assert.Equal(t, model.ActionToggle, bank.applied[0].Action)

	acks := client.published(model.AckTopic("room-101"))
	require.Len(t, acks, 1)
	ack := model.Ack{}
	require.NoError(t, json.Unmarshal(acks[0].payload, &ack))
	assert.Equal(t, "req-7", ack.RequestID)
	assert.True(t, ack.Success)
}

func TestHandleCommandMessageUnknownAction(t *testing.T) {
	session, client, bank, _ := newTestSession(t)

	payload, err := json.Marshal(model.Command{RequestID: "req-8", Action: model.Action("reboot")})
	require.NoError(t, err)
	session.handleCommandMessage(client, &mockMessage{
		topic:   "classroom/room-101/cmd",
		payload: payload,
	})

	assert.Empty(t, bank.applied)
	acks := client.published(model.AckTopic("room-101"))
	require.Len(t, acks, 1)
	ack := model.Ack{}
	require.NoError(t, json.Unmarshal(acks[0].payload, &ack))
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)
}

func TestHandleCommandMessageMalformed(t *testing.T) {
	session, client, bank, _ := newTestSession(t)

	session.handleCommandMessage(client, &mockMessage{
		topic:   "classroom/room-101/cmd",
		payload: []byte("{nope"),
	})

	assert.Empty(t, bank.applied)
	assert.Empty(t, client.publishes)
}

func TestOnConnect(t *testing.T) {
	session, client, _, tracker := newTestSession(t)

	session.onConnect(client)

	assert.Equal(t, []model.ConnEvent{model.BrokerUp}, tracker.events)

	status := client.published(model.StatusTopic("room-101"))
	require.Len(t, status, 1)
	assert.Equal(t, "online", string(status[0].payload))
	assert.True(t, status[0].retained)

	assert.Contains(t, client.subs, model.RelaySetWildcard("room-101"))
	assert.Contains(t, client.subs, model.CommandTopic("room-101"))

	// Retained relay state re-asserted for every channel.
	for idx := range 4 {
		assert.Len(t, client.published(model.RelayStateTopic("room-101", idx)), 1)
	}
}

func TestOnConnectionLost(t *testing.T) {
	session, client, _, tracker := newTestSession(t)

	session.onConnectionLost(client, assert.AnError)
	assert.Equal(t, []model.ConnEvent{model.BrokerDown}, tracker.events)
}

func TestWritePublishesStateAndTelemetry(t *testing.T) {
	session, client, _, _ := newTestSession(t)

	err := session.Write(context.Background(), []model.StateChange{
		{Relay: 0, On: true, Source: model.SourceManual, At: time.Now()},
	})
	require.NoError(t, err)

	states := client.published(model.RelayStateTopic("room-101", 0))
	require.Len(t, states, 1)
	assert.True(t, states[0].retained)

	relayState := model.RelayState{}
	require.NoError(t, json.Unmarshal(states[0].payload, &relayState))
	assert.True(t, relayState.On)
	assert.Equal(t, model.SourceManual, relayState.Source)

	telemetry := client.published(model.TelemetryTopic("room-101"))
	require.Len(t, telemetry, 1)
	envelope := model.Envelope{}
	require.NoError(t, json.Unmarshal(telemetry[0].payload, &envelope))
	assert.Equal(t, "room-101", envelope.DeviceID)
	assert.Equal(t, model.EnvelopeTypeState, envelope.Type)
}

func TestConnectTimeout(t *testing.T) {
	session, client, _, _ := newTestSession(t)
	client.connectToken = &mockToken{timedOut: true}

	assert.ErrorIs(t, session.Connect(), ErrConnectTimeout)
}

func TestDisconnectPublishesOffline(t *testing.T) {
	session, client, _, _ := newTestSession(t)
	client.connected = true

	session.Disconnect()

	status := client.published(model.StatusTopic("room-101"))
	require.Len(t, status, 1)
	assert.Equal(t, "offline", string(status[0].payload))
	assert.False(t, client.connected)
}
