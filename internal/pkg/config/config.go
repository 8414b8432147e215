package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
)

// NumSwitches is the number of relay channels and manual switch inputs on the
// controller board. The relay and switch pin lists must both match it.
const NumSwitches = 4

var (
	ErrPinCount     = errors.New("pin list length must equal switch count")
	ErrPinConflict  = errors.New("gpio pin assigned to more than one signal")
	ErrBadPort      = errors.New("broker port must be within 1-65535")
	ErrBadSecret    = errors.New("device secret must be a hex string")
	ErrMissingField = errors.New("missing required config field")
)

type Config struct {
	Device   *DeviceConfig
	Mqtt     *MqttConfig
	Api      *ApiConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	Simulate bool   `env:"SIMULATE"`
}

// DeviceConfig mirrors the hardware build of the classroom controller: four
// relay outputs, four manual switch inputs, one status LED.
type DeviceConfig struct {
	ID              string        `env:"DEVICE_ID"`
	WifiSSID        string        `env:"WIFI_SSID"`
	WifiPassword    string        `env:"WIFI_PASSWORD"`
	Secret          string        `env:"DEVICE_SECRET"`
	RelayPins       []int         `env:"RELAY_PINS" envDefault:"4,5,12,13"`
	SwitchPins      []int         `env:"SWITCH_PINS" envDefault:"14,16,0,2"`
	StatusLedPin    int           `env:"STATUS_LED_PIN" envDefault:"2"`
	RelayActiveHigh bool          `env:"RELAY_ACTIVE_HIGH" envDefault:"true"`
	SwitchActiveLow bool          `env:"SWITCH_ACTIVE_LOW" envDefault:"true"`
	PollInterval    time.Duration `env:"SWITCH_POLL_INTERVAL" envDefault:"10ms"`
	Debounce        time.Duration `env:"SWITCH_DEBOUNCE" envDefault:"50ms"`
	SnapshotPath    string        `env:"SNAPSHOT_PATH" envDefault:"relay-state.json"`
	Schedules       []string      `env:"SCHEDULES" envSeparator:";"`
}

type MqttConfig struct {
	Host string `env:"MQTT_HOST"`
	Port int    `env:"MQTT_PORT" envDefault:"1883"`
}

type ApiConfig struct {
	Addr      string `env:"API_ADDR" envDefault:"0.0.0.0:8000"`
	TokenHash string `env:"API_TOKEN_HASH"`
}

// FromEnv builds a Config from environment variables alone. CLI flags layered
// on top in cmd override whatever is set here.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Device: &DeviceConfig{},
		Mqtt:   &MqttConfig{},
		Api:    &ApiConfig{},
	}
	for _, target := range []any{cfg, cfg.Device, cfg.Mqtt, cfg.Api} {
		if err := env.Parse(target); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ParsePins converts a comma separated flag value into GPIO numbers.
func ParsePins(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	pins := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid gpio pin %q: %w", p, err)
		}
		pins = append(pins, n)
	}
	return pins, nil
}

func (c *Config) Validate() error {
	if c.Device == nil || c.Mqtt == nil {
		return fmt.Errorf("%w: device and mqtt sections are required", ErrMissingField)
	}
	if err := c.Device.Validate(); err != nil {
		return err
	}
	if c.Mqtt.Port < 1 || c.Mqtt.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrBadPort, c.Mqtt.Port)
	}
	return nil
}

func (d *DeviceConfig) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device id", ErrMissingField)
	}
	if len(d.RelayPins) != NumSwitches {
		return fmt.Errorf("%w: %d relay pins, want %d", ErrPinCount, len(d.RelayPins), NumSwitches)
	}
	if len(d.SwitchPins) != NumSwitches {
		return fmt.Errorf("%w: %d switch pins, want %d", ErrPinCount, len(d.SwitchPins), NumSwitches)
	}
	// No GPIO may carry two relay or switch signals. The status LED is
	// allowed to share a switch pin (the stock board wires its onboard LED
	// to one of the inputs) but never a relay output.
	all := append(append([]int{}, d.RelayPins...), d.SwitchPins...)
	if len(lo.Uniq(all)) != len(all) {
		return fmt.Errorf("%w: %v", ErrPinConflict, all)
	}
	if lo.Contains(d.RelayPins, d.StatusLedPin) {
		return fmt.Errorf("%w: status led pin %d drives a relay", ErrPinConflict, d.StatusLedPin)
	}
	if d.Secret != "" {
		if _, err := hex.DecodeString(d.Secret); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSecret, err)
		}
	}
	return nil
}

// SecretBytes returns the decoded device secret. Validate must have passed.
func (d *DeviceConfig) SecretBytes() []byte {
	b, _ := hex.DecodeString(d.Secret)
	return b
}
