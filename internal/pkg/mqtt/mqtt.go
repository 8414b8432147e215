package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/auth"
	"github.com/anicoll/relay-controller/internal/pkg/config"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var ErrConnectTimeout = errors.New("unable to connect in time")

const (
	connectTimeout  = 5 * time.Second
	publishTimeout  = 10 * time.Second
	tokenTTL        = 24 * time.Hour
	maxReconnectGap = 2 * time.Minute
)

type relayBank interface {
	Apply(ctx context.Context, cmd model.Command, source string) error
	States() []bool
}

type connTracker interface {
	Dispatch(ctx context.Context, event model.ConnEvent)
}

// Session owns the broker link: authentication, last-will presence,
// reconnect, command subscriptions and state publishing.
type Session struct {
	client   paho_mqtt.Client
	deviceID string
	secret   []byte
	bank     relayBank
	tracker  connTracker
	logger   *zap.Logger
}

func New(cfg *config.Config, bank relayBank, tracker connTracker) *Session {
	s := &Session{
		deviceID: cfg.Device.ID,
		secret:   cfg.Device.SecretBytes(),
		bank:     bank,
		tracker:  tracker,
		logger:   zap.L(),
	}

	opts := paho_mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Mqtt.Host, cfg.Mqtt.Port)).
		SetClientID(model.DeviceSlug(cfg.Device.ID)).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectGap).
		SetConnectRetry(true).
		SetWill(model.StatusTopic(cfg.Device.ID), "offline", 1, true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)

	// Fresh token per (re)connect; the broker rejects expired ones.
	opts.SetCredentialsProvider(func() (string, string) {
		creds, err := auth.BrokerCredentials(s.deviceID, s.secret, tokenTTL)
		if err != nil {
			s.logger.Error("failed to build broker credentials", zap.Error(err))
			return s.deviceID, ""
		}
		return creds.Username, creds.Password
	})

	s.client = newClient(opts)
	return s
}

// newClient is swapped out in tests.
var newClient = func(opts *paho_mqtt.ClientOptions) paho_mqtt.Client {
	return paho_mqtt.NewClient(opts)
}

func (s *Session) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return ErrConnectTimeout
	}
	return token.Error()
}

func (s *Session) Disconnect() {
	if s.client.IsConnected() {
		s.publish(model.StatusTopic(s.deviceID), 1, true, []byte("offline"))
	}
	s.client.Disconnect(250)
}

func (s *Session) onConnect(client paho_mqtt.Client) {
	s.logger.Info("connected to broker", zap.String("device_id", s.deviceID))
	s.tracker.Dispatch(context.Background(), model.BrokerUp)

	s.publish(model.StatusTopic(s.deviceID), 1, true, []byte("online"))

	subs := map[string]paho_mqtt.MessageHandler{
		model.RelaySetWildcard(s.deviceID): s.handleSetMessage,
		model.CommandTopic(s.deviceID):     s.handleCommandMessage,
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(connectTimeout) {
			s.logger.Error("subscribe timed out", zap.String("topic", topic))
			continue
		}
		if err := token.Error(); err != nil {
			s.logger.Error("failed to subscribe", zap.String("topic", topic), zap.Error(err))
			continue
		}
		s.logger.Debug("subscribed", zap.String("topic", topic))
	}

	// Re-assert retained relay states after every (re)connect.
	for idx, on := range s.bank.States() {
		s.publishRelayState(idx, on, model.SourceRestore, time.Now())
	}
}

func (s *Session) onConnectionLost(_ paho_mqtt.Client, err error) {
	s.logger.Warn("broker connection lost", zap.Error(err))
	s.tracker.Dispatch(context.Background(), model.BrokerDown)
}

// relayIndexFromTopic extracts n from classroom/<dev>/relay/<n>/set.
func relayIndexFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[2] != "relay" || parts[4] != "set" {
		return 0, fmt.Errorf("unexpected set topic %q", topic)
	}
	return strconv.Atoi(parts[3])
}
