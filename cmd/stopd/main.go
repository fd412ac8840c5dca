// Command stopd runs a bus-stop call unit: route buttons publish stop
// calls over MQTT, and inbound commands drive the route LEDs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/bridge"
	"github.com/iamfiro/mqtt-bus/internal/config"
	"github.com/iamfiro/mqtt-bus/internal/feedback"
	"github.com/iamfiro/mqtt-bus/internal/gpio"
	"github.com/iamfiro/mqtt-bus/internal/logging"
	"github.com/iamfiro/mqtt-bus/internal/routing"
	"github.com/iamfiro/mqtt-bus/internal/session"
	"github.com/iamfiro/mqtt-bus/internal/status"
	"github.com/iamfiro/mqtt-bus/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/mqtt-bus/stop.yaml", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// device holds the wired components of one stop unit.
type device struct {
	conn    gpio.Conn
	sched   *feedback.Scheduler
	tracker *status.Tracker
	mgr     *session.Manager
	bridge  *bridge.Bridge
	ledPins []int
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, config.RoleStop)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, "stopd")

	conn, err := openGPIO(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer conn.Close()

	d, err := build(cfg, conn, logger)
	if err != nil {
		return err
	}

	selfTest(conn, d.ledPins, logger)

	if err := d.mgr.Connect(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	d.tracker.SetConnected(true)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, d.tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	logger.Info("stop unit ready",
		"stop", cfg.Stop.ID, "name", cfg.Stop.Name, "routes", len(cfg.Stop.Routes))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	return mainLoop(d, logger, ticker.C, sigCh)
}

// build claims the pins and wires the scheduler, tracker, session, and
// bridge for one stop unit. It does not connect.
func build(cfg *config.Config, conn gpio.Conn, logger *logging.Logger) (*device, error) {
	var ledPins []int
	for _, r := range cfg.Stop.Routes {
		ledPins = append(ledPins, r.LEDPin)
	}
	outputs := ledPins
	if cfg.Stop.BuzzerPin > 0 {
		outputs = append(outputs, cfg.Stop.BuzzerPin)
	}
	for _, pin := range outputs {
		if err := conn.RequestOutput(pin); err != nil {
			return nil, fmt.Errorf("claim output pin %d: %w", pin, err)
		}
	}

	sched := feedback.New(conn, logger)

	tracker := status.NewTracker("stop", cfg.Stop.ID, time.Now(), status.Config{
		Broker:      fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		DebounceMs:  int64(cfg.Timing.DebounceMs),
		HeartbeatMs: cfg.HeartbeatInterval().Milliseconds(),
		HTTPAddr:    cfg.HTTP.Addr,
	})

	routes := make([]string, 0, len(cfg.Stop.Routes))
	channels := make([]bridge.Channel, 0, len(cfg.Stop.Routes))
	for _, r := range cfg.Stop.Routes {
		routes = append(routes, r.ID)
		channels = append(channels, bridge.Channel{
			RouteID:   r.ID,
			RouteName: r.Name,
			Color:     r.Color,
			ButtonPin: r.ButtonPin,
			LEDPin:    r.LEDPin,
		})
		tracker.SetChannel(r.ID, r.Name)
	}

	mgr, err := session.New(session.Options{
		Broker:       cfg.MQTT,
		DeviceID:     cfg.Stop.ID,
		ClientPrefix: "stop",
		StatusTopic:  routing.StopStatusTopic(cfg.Stop.ID),
		Status: session.Status{
			StopID:   cfg.Stop.ID,
			StopName: cfg.Stop.Name,
			Routes:   routes,
		},
		Subscriptions:     subscriptions(cfg),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	br := bridge.New(bridge.Options{
		StopID:    cfg.Stop.ID,
		Channels:  channels,
		Debounce:  cfg.DebounceWindow(),
		Publisher: mgr,
		Scheduler: sched,
		Router:    routing.New(routing.Config{StopID: cfg.Stop.ID}),
		Tracker:   tracker,
		Logger:    logger,
	})
	mgr.SetMessageHandler(br.HandleMessage)
	br.Start()

	for _, r := range cfg.Stop.Routes {
		if err := conn.RequestInput(r.ButtonPin, br.OnPhysicalEdge); err != nil {
			return nil, fmt.Errorf("claim button pin %d: %w", r.ButtonPin, err)
		}
	}

	return &device{
		conn:    conn,
		sched:   sched,
		tracker: tracker,
		mgr:     mgr,
		bridge:  br,
		ledPins: ledPins,
	}, nil
}

// subscriptions is the stop unit's inbound topic set. Commands and
// health checks both ride QoS 1.
func subscriptions(cfg *config.Config) []session.Subscription {
	return []session.Subscription{
		{Topic: routing.LEDControlWildcard(cfg.Stop.ID), QoS: 1},
		{Topic: routing.TopicSystemHealth, QoS: 1},
	}
}

// mainLoop refreshes the tracker until a signal arrives, then shuts the
// components down in order.
func mainLoop(d *device, logger *logging.Logger, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			d.bridge.Close()
			d.mgr.Disconnect()
			d.sched.Shutdown()
			return nil
		case <-tick:
			d.tracker.SetConnected(d.mgr.IsConnected())
		}
	}
}

// openGPIO selects the driver from config. The mock driver backs
// hardware-free development runs.
func openGPIO(cfg config.GPIOConfig) (gpio.Conn, error) {
	if cfg.Driver == "mock" {
		return gpio.NewFake(), nil
	}
	return gpio.NewReal(cfg.Chip)
}

// selfTest walks each route LED once so a miswired pin is visible at
// startup.
func selfTest(conn gpio.Conn, pins []int, logger *logging.Logger) {
	logger.Info("led self-test", "pins", len(pins))
	for _, pin := range pins {
		if err := conn.Write(pin, true); err != nil {
			logger.Warn("self-test write failed", "pin", pin, "error", err)
			continue
		}
		time.Sleep(150 * time.Millisecond)
		if err := conn.Write(pin, false); err != nil {
			logger.Warn("self-test write failed", "pin", pin, "error", err)
		}
	}
}
