package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/relay-controller/internal/pkg/config"
	"github.com/anicoll/relay-controller/internal/pkg/connstate"
	"github.com/anicoll/relay-controller/internal/pkg/gpio"
	"github.com/anicoll/relay-controller/internal/pkg/link"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	"github.com/anicoll/relay-controller/internal/pkg/mqtt"
	"github.com/anicoll/relay-controller/internal/pkg/publisher"
	"github.com/anicoll/relay-controller/internal/pkg/relay"
	"github.com/anicoll/relay-controller/internal/pkg/scheduler"
	"github.com/anicoll/relay-controller/internal/pkg/server"
	"github.com/anicoll/relay-controller/internal/pkg/state"
	"github.com/anicoll/relay-controller/internal/pkg/statusled"
	"github.com/anicoll/relay-controller/internal/pkg/switches"
	"github.com/anicoll/relay-controller/pkg/stream"
)

func RelayCommand(ctx *cli.Context) error {
	// Env layer first; the flags mirror the same variables with the same
	// defaults, so layering them on top is lossless. Schedules are the one
	// exception: they only reach the env layer (see main.go).
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	relayPins, err := config.ParsePins(ctx.String("relay-pins"))
	if err != nil {
		return err
	}
	switchPins, err := config.ParsePins(ctx.String("switch-pins"))
	if err != nil {
		return err
	}

	cfg.Device.ID = ctx.String("device-id")
	cfg.Device.WifiSSID = ctx.String("wifi-ssid")
	cfg.Device.WifiPassword = ctx.String("wifi-password")
	cfg.Device.Secret = ctx.String("device-secret")
	cfg.Device.RelayPins = relayPins
	cfg.Device.SwitchPins = switchPins
	cfg.Device.StatusLedPin = ctx.Int("status-led-pin")
	cfg.Device.RelayActiveHigh = ctx.Bool("relay-active-high")
	cfg.Device.SwitchActiveLow = ctx.Bool("switch-active-low")
	cfg.Device.PollInterval = ctx.Duration("poll-interval")
	cfg.Device.Debounce = ctx.Duration("debounce")
	cfg.Device.SnapshotPath = ctx.String("snapshot-path")
	if schedules := ctx.StringSlice("schedule"); len(schedules) > 0 {
		cfg.Device.Schedules = schedules
	}
	cfg.Mqtt.Host = ctx.String("mqtt-host")
	cfg.Mqtt.Port = ctx.Int("mqtt-port")
	cfg.Api.Addr = ctx.String("api-addr")
	cfg.Api.TokenHash = ctx.String("api-token-hash")
	cfg.LogLevel = ctx.String("log-level")
	cfg.Simulate = ctx.Bool("simulate")

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	var err error

	eg, ctx := errgroup.WithContext(ctx)
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	var chip gpio.Chip
	if cfg.Simulate {
		logger.Info("running against in-memory gpio")
		chip = gpio.NewMemChip()
	} else {
		chip = gpio.NewSysfsChip()
	}
	defer chip.Close()

	store := state.NewStore(cfg.Device.SnapshotPath)
	logger.Info("relay snapshot store ready", zap.String("path", store.Path()))
	bank, err := relay.New(chip, cfg.Device.RelayPins, cfg.Device.RelayActiveHigh, store)
	if err != nil {
		return err
	}
	logger.Info("relay bank ready", zap.Int("channels", bank.Len()), zap.Ints("pins", cfg.Device.RelayPins))

	tracker, err := connstate.New()
	if err != nil {
		return err
	}

	hub := stream.New(
		stream.WithPingIntervalSec(4),
		stream.WithInitialPayload(func() []byte {
			payload, _ := json.Marshal(map[string]any{
				"type":             "snapshot",
				"connection_state": tracker.Current().String(),
				"relays":           bank.States(),
			})
			return payload
		}),
	)
	defer hub.Close()

	session := mqtt.New(cfg, bank, tracker)
	if err := publisher.RegisterPublisher("mqtt", session); err != nil {
		return err
	}
	if err := publisher.RegisterPublisher("stream", &streamPublisher{hub: hub}); err != nil {
		return err
	}

	// Power up into the last known relay state before anything can command us.
	if err := bank.Restore(ctx, store.Load()); err != nil {
		return err
	}

	if lo.Contains(cfg.Device.SwitchPins, cfg.Device.StatusLedPin) {
		// The stock board shares GPIO2 between the onboard LED and a manual
		// input. The LED wins: the scanner leaves the shared line alone so
		// the blink pattern cannot debounce as presses.
		logger.Warn("status led shares a switch pin, disabling that input", zap.Int("pin", cfg.Device.StatusLedPin))
	}
	ledPin, err := chip.Output(cfg.Device.StatusLedPin, true)
	if err != nil {
		return err
	}
	led := statusled.New(ledPin, tracker)

	scanner, err := switches.New(chip, cfg.Device.SwitchPins, []int{cfg.Device.StatusLedPin}, cfg.Device.SwitchActiveLow, cfg.Device.PollInterval, cfg.Device.Debounce, bank)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Device.Schedules, bank)
	if err != nil {
		return err
	}

	probeAddr := net.JoinHostPort(cfg.Mqtt.Host, strconv.Itoa(cfg.Mqtt.Port))
	monitor := link.New(probeAddr, 5*time.Second, tracker)

	eg.Go(func() error {
		return led.Run(ctx)
	})

	eg.Go(func() error {
		return scanner.Run(ctx)
	})

	eg.Go(func() error {
		return sched.Run(ctx)
	})

	eg.Go(func() error {
		return monitor.Run(ctx)
	})

	eg.Go(func() error {
		if err := session.Connect(); err != nil {
			// paho keeps retrying in the background; surface the first
			// failure for the log and stay up on LAN control.
			logger.Warn("initial broker connect failed", zap.Error(err))
		}
		<-ctx.Done()
		session.Disconnect()
		return ctx.Err()
	})

	eg.Go(func() error {
		return broadcastConnState(ctx, tracker, hub)
	})

	eg.Go(func() error {
		srv := &http.Server{
			Handler:      server.New(bank, tracker, hub, cfg.Api.TokenHash).Handler(),
			Addr:         cfg.Api.Addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

// streamPublisher feeds relay transitions to websocket clients.
type streamPublisher struct {
	hub *stream.Hub
}

func (p *streamPublisher) Write(_ context.Context, changes []model.StateChange) error {
	for _, change := range changes {
		payload, err := json.Marshal(map[string]any{
			"type":   "relay",
			"relay":  change.Relay,
			"on":     change.On,
			"source": change.Source,
			"at":     change.At.Unix(),
		})
		if err != nil {
			return err
		}
		p.hub.Broadcast(payload)
	}
	return nil
}

func broadcastConnState(ctx context.Context, tracker *connstate.Tracker, hub *stream.Hub) error {
	updates := tracker.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case connState := <-updates:
			payload, err := json.Marshal(map[string]any{
				"type":  "conn_state",
				"state": connState.String(),
			})
			if err != nil {
				return err
			}
			hub.Broadcast(payload)
		}
	}
}
