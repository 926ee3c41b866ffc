// Command gcode-serial drives a Marlin printer over a serial link and exposes
// it on MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
	"github.com/sweeney/gcode-serial/internal/bus"
	"github.com/sweeney/gcode-serial/internal/button"
	"github.com/sweeney/gcode-serial/internal/config"
	"github.com/sweeney/gcode-serial/internal/controller"
	"github.com/sweeney/gcode-serial/internal/engine"
	"github.com/sweeney/gcode-serial/internal/gpio"
	"github.com/sweeney/gcode-serial/internal/mqtt"
	"github.com/sweeney/gcode-serial/internal/queue"
	"github.com/sweeney/gcode-serial/internal/serial"
	"github.com/sweeney/gcode-serial/internal/status"
	"github.com/sweeney/gcode-serial/internal/web"
)

// idleTick drives heartbeats and MQTT status refresh when no stop button is polled.
const idleTick = time.Second

// options is everything the command line decides.
type options struct {
	cfg       config.Config
	printFile string
	listPorts bool
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "gcode-serial: %v\n", err)
		os.Exit(2)
	}

	lvl, _ := opts.cfg.Level()
	setupLogging(lvl)

	if opts.listPorts {
		if err := listPorts(serial.NewRealDialer()); err != nil {
			log.Fatal().Err(err).Msg("list ports")
		}
		return
	}

	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

// parseArgs reads flags, loads the .env and YAML config, and applies the
// flags that were set explicitly on top.
func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("gcode-serial", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (optional)")
	envFile := fs.String("env-file", ".env", "Environment file loaded before the config")
	port := fs.String("port", "", "Serial device (empty for automatic discovery)")
	baud := fs.Int("baud", serial.DefaultBaud, "Serial baud rate")
	models := fs.String("models", "models", "Directory print files are loaded from")
	broker := fs.String("broker", "", "MQTT broker address (empty to disable)")
	clientID := fs.String("client-id", "gcode-serial", "MQTT client ID")
	prefix := fs.String("topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	httpAddr := fs.String("http", ":8080", "HTTP status address (empty to disable)")
	stopPin := fs.Int("stop-pin", -1, "BCM pin number for the stop button (-1 to disable)")
	debounce := fs.Duration("debounce", 250*time.Millisecond, "Stop button debounce duration")
	heartbeat := fs.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	printFile := fs.String("print", "", "Start printing this file once connected")
	list := fs.Bool("list-ports", false, "Print the serial devices found and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return options{}, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return options{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Serial.Port = *port
		case "baud":
			cfg.Serial.Baud = *baud
		case "models":
			cfg.ModelsDir = *models
		case "broker":
			cfg.MQTT.Broker = *broker
		case "client-id":
			cfg.MQTT.ClientID = *clientID
		case "topic-prefix":
			cfg.MQTT.TopicPrefix = *prefix
		case "http":
			cfg.HTTP = *httpAddr
		case "stop-pin":
			cfg.StopButton.Pin = *stopPin
		case "debounce":
			cfg.StopButton.Debounce = *debounce
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return options{}, err
	}
	return options{cfg: cfg, printFile: *printFile, listPorts: *list}, nil
}

func setupLogging(lvl zerolog.Level) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)
}

func listPorts(d serial.Dialer) error {
	names, err := d.ListPorts()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return serial.ErrNoDevices
	}
	for _, name := range names {
		fmt.Println(serial.DevicePath(name))
	}
	return nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ModelsDir:   cfg.ModelsDir,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		HTTPPort:    cfg.HTTP,
		StopPin:     cfg.StopButton.Pin,
		DebounceMs:  cfg.StopButton.Debounce.Milliseconds(),
	}
}

func run(opts options) error {
	cfg := opts.cfg

	b := bus.New()
	defer b.Close()

	q := queue.New()
	state := engine.NewState(b)
	eng := engine.New(b, q, state, serial.NewRealDialer(), engine.Timing{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	trackerSub := b.Subscribe("status")
	go tracker.Run(ctx, trackerSub.C())

	ctrl := controller.New(b, q, state, os.DirFS(cfg.ModelsDir))
	ctrlSub := b.Subscribe("controller")
	go ctrl.Run(ctx, ctrlSub.C())

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			OnCommand: func(cmd action.Command) {
				b.Publish(action.CommandAction(cmd))
			},
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p

		mqttSub := b.Subscribe("mqtt")
		go mqtt.Forward(ctx, mqttSub.C(), p)

		// Publish startup event with full status snapshot
		tracker.SetMQTTConnected(p.IsConnected())
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := p.PublishSystem(startupEvent); err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		} else {
			log.Info().Msg("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, b)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.HTTP).Msg("http status server listening")
	}

	// Initialize stop button
	var stopButton gpio.Reader
	tickEvery := idleTick
	if cfg.StopButton.Pin >= 0 {
		r, err := gpio.NewRealReader(cfg.StopButton.Pin)
		if err != nil {
			return fmt.Errorf("init stop button: %w", err)
		}
		defer r.Close()
		stopButton = r
		tickEvery = cfg.StopButton.Poll
	}

	fatal := make(chan error, 1)
	conn := serial.Connector{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud}
	engineDone := startEngine(ctx, eng, conn, func() {
		tracker.SetPort(eng.Path())
		go engine.NewHealthMonitor(q, state, engine.HealthInterval).Run(ctx)

		if opts.printFile != "" {
			b.Publish(action.CommandAction(action.StartPrint(opts.printFile)))
		}
	}, fatal)
	// The port is only closed once the engine has stopped reading from it.
	defer func() {
		cancel()
		<-engineDone
		eng.Close()
	}()

	log.Info().
		Str("port", cfg.Serial.Port).
		Int("baud", cfg.Serial.Baud).
		Str("models", cfg.ModelsDir).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		bus:        b,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		stopButton: stopButton,
		debounce:   cfg.StopButton.Debounce,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
	}, ticker.C, sigCh, fatal)
}

// printerEngine is the part of the protocol engine that startEngine drives.
type printerEngine interface {
	Connect(ctx context.Context, c serial.Connector) error
	Run(ctx context.Context) error
}

// startEngine connects and runs the engine in the background. onConnected
// runs once the port is up. Connect and run failures go to fatal unless ctx
// has ended. The returned channel closes when the engine goroutine exits.
func startEngine(ctx context.Context, eng printerEngine, conn serial.Connector, onConnected func(), fatal chan<- error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eng.Connect(ctx, conn); err != nil {
			if ctx.Err() == nil {
				fatal <- fmt.Errorf("connect printer: %w", err)
			}
			return
		}
		if onConnected != nil {
			onConnected()
		}
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fatal <- fmt.Errorf("engine: %w", err)
		}
	}()
	return done
}

// actionPublisher is the bus as seen by the run loop.
type actionPublisher interface {
	Publish(a action.Action)
}

// loopDeps holds what runLoop reads and writes. publisher, mqttStatus and
// stopButton are nil when the feature is disabled.
type loopDeps struct {
	bus        actionPublisher
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	stopButton gpio.Reader
	debounce   time.Duration
	heartbeat  time.Duration
	now        func() time.Time
}

func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal, fatal <-chan error) error {
	lastBeat := d.now()
	debouncer := button.NewDebouncer(d.debounce)

	for {
		select {
		case err := <-fatal:
			return err

		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if d.publisher == nil {
				return nil
			}
			d.refreshMQTT()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			} else {
				log.Info().Msg("published shutdown event")
			}
			return nil

		case <-tick:
			t := d.now()

			if d.stopButton != nil {
				d.pollStopButton(debouncer, t)
			}
			d.refreshMQTT()

			if d.publisher == nil || d.heartbeat <= 0 || t.Sub(lastBeat) < d.heartbeat {
				continue
			}
			lastBeat = t

			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.tracker.Snapshot()
			log.Debug().Dur("uptime", snap.Uptime()).Str("status", string(snap.Status)).Msg("heartbeat")
			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := d.publisher.PublishSystem(hbEvent); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

func (d loopDeps) pollStopButton(debouncer *button.Debouncer, t time.Time) {
	pressed, err := d.stopButton.Read()
	if err != nil {
		log.Warn().Err(err).Msg("stop button read error")
		return
	}
	ev := debouncer.Process(pressed, t)
	if ev == nil || ev.Type != button.EventPress {
		return
	}
	log.Warn().Int("presses", debouncer.Presses()).Msg("stop button pressed")
	d.tracker.SetStopPresses(debouncer.Presses())
	d.bus.Publish(action.CommandAction(action.StopPrint()))
}

func (d loopDeps) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
