package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/relay-controller/cmd"
)

func main() {
	app := &cli.App{
		Name:   "relay-controller",
		Usage:  "classroom relay automation agent",
		Action: cmd.RelayCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "device-id",
				EnvVars:  []string{"DEVICE_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "device-secret",
				EnvVars: []string{"DEVICE_SECRET"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "wifi-ssid",
				EnvVars: []string{"WIFI_SSID"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "wifi-password",
				EnvVars: []string{"WIFI_PASSWORD"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:     "mqtt-host",
				EnvVars:  []string{"MQTT_HOST"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "mqtt-port",
				EnvVars: []string{"MQTT_PORT"},
				Value:   1883,
			},
			&cli.StringFlag{
				Name:    "relay-pins",
				EnvVars: []string{"RELAY_PINS"},
				Value:   "4,5,12,13",
			},
			&cli.StringFlag{
				Name:    "switch-pins",
				EnvVars: []string{"SWITCH_PINS"},
				Value:   "14,16,0,2",
			},
			&cli.IntFlag{
				Name:    "status-led-pin",
				EnvVars: []string{"STATUS_LED_PIN"},
				Value:   2,
			},
			&cli.BoolFlag{
				Name:    "relay-active-high",
				EnvVars: []string{"RELAY_ACTIVE_HIGH"},
				Value:   true,
			},
			&cli.BoolFlag{
				Name:    "switch-active-low",
				EnvVars: []string{"SWITCH_ACTIVE_LOW"},
				Value:   true,
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"SWITCH_POLL_INTERVAL"},
				Value:   10 * time.Millisecond,
			},
			&cli.DurationFlag{
				Name:    "debounce",
				EnvVars: []string{"SWITCH_DEBOUNCE"},
				Value:   50 * time.Millisecond,
			},
			&cli.StringFlag{
				Name:    "snapshot-path",
				EnvVars: []string{"SNAPSHOT_PATH"},
				Value:   "relay-state.json",
			},
			&cli.StringSliceFlag{
				// No EnvVars: cli splits env slices on commas, which cron
				// specs contain. SCHEDULES is parsed by the config package
				// with a semicolon separator instead.
				Name: "schedule",
			},
			&cli.StringFlag{
				Name:    "api-addr",
				EnvVars: []string{"API_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "api-token-hash",
				EnvVars: []string{"API_TOKEN_HASH"},
				Value:   "",
			},
			&cli.BoolFlag{
				Name:    "simulate",
				EnvVars: []string{"SIMULATE"},
				Value:   false,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
