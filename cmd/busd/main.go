// Command busd runs the vehicle unit: it announces stop calls for its
// route on the notify LED and buzzer, and publishes its position.
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
	"github.com/iamfiro/mqtt-bus/internal/location"
	"github.com/iamfiro/mqtt-bus/internal/logging"
	"github.com/iamfiro/mqtt-bus/internal/routing"
	"github.com/iamfiro/mqtt-bus/internal/session"
	"github.com/iamfiro/mqtt-bus/internal/status"
	"github.com/iamfiro/mqtt-bus/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/mqtt-bus/bus.yaml", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// device holds the wired components of one vehicle unit.
type device struct {
	conn    gpio.Conn
	sched   *feedback.Scheduler
	tracker *status.Tracker
	mgr     *session.Manager
	bridge  *bridge.Bridge
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, config.RoleBus)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, "busd")

	conn, err := openGPIO(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer conn.Close()

	d, err := build(cfg, conn, logger)
	if err != nil {
		return err
	}

	if err := d.mgr.Connect(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	d.tracker.SetConnected(true)

	// Steady green marks the unit connected and ready.
	d.sched.Play(feedback.Pattern{Pin: cfg.Bus.LEDGreenPin, Kind: feedback.SteadyOn})

	source := location.NewSimulated(cfg.Bus.Latitude, cfg.Bus.Longitude, time.Now().UnixNano())
	locPub := location.New(cfg.Bus.ID, cfg.Bus.RouteID, source, d.mgr, logger)
	locTicker := time.NewTicker(cfg.LocationInterval())
	defer locTicker.Stop()
	locStop := make(chan struct{})
	locDone := make(chan struct{})
	go func() {
		locPub.Run(locTicker.C, locStop)
		close(locDone)
	}()

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

	logger.Info("vehicle unit ready",
		"bus", cfg.Bus.ID, "route", cfg.Bus.RouteID,
		"location_interval", cfg.LocationInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	return mainLoop(d, locStop, locDone, logger, ticker.C, sigCh)
}

// build claims the pins and wires the scheduler, tracker, session, and
// bridge for one vehicle unit. It does not connect.
func build(cfg *config.Config, conn gpio.Conn, logger *logging.Logger) (*device, error) {
	for _, pin := range []int{cfg.Bus.LEDRedPin, cfg.Bus.LEDGreenPin, cfg.Bus.BuzzerPin} {
		if err := conn.RequestOutput(pin); err != nil {
			return nil, fmt.Errorf("claim output pin %d: %w", pin, err)
		}
	}

	sched := feedback.New(conn, logger)

	tracker := status.NewTracker("bus", cfg.Bus.ID, time.Now(), status.Config{
		Broker:      fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		DebounceMs:  int64(cfg.Timing.DebounceMs),
		HeartbeatMs: cfg.HeartbeatInterval().Milliseconds(),
		HTTPAddr:    cfg.HTTP.Addr,
	})

	mgr, err := session.New(session.Options{
		Broker:       cfg.MQTT,
		DeviceID:     cfg.Bus.ID,
		ClientPrefix: "bus",
		StatusTopic:  routing.BusStatusTopic(cfg.Bus.ID),
		Status: session.Status{
			BusID:   cfg.Bus.ID,
			RouteID: cfg.Bus.RouteID,
		},
		Subscriptions:     subscriptions(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	br := bridge.New(bridge.Options{
		NotifyLEDPin: cfg.Bus.LEDRedPin,
		BuzzerPin:    cfg.Bus.BuzzerPin,
		Debounce:     cfg.DebounceWindow(),
		Publisher:    mgr,
		Scheduler:    sched,
		Router:       routing.New(routing.Config{RouteID: cfg.Bus.RouteID}),
		Tracker:      tracker,
		Logger:       logger,
	})
	mgr.SetMessageHandler(br.HandleMessage)
	br.Start()

	return &device{
		conn:    conn,
		sched:   sched,
		tracker: tracker,
		mgr:     mgr,
		bridge:  br,
	}, nil
}

// subscriptions is the vehicle's inbound topic set. Stop calls and
// health checks both ride QoS 1.
func subscriptions() []session.Subscription {
	return []session.Subscription{
		{Topic: routing.ButtonWildcard(), QoS: 1},
		{Topic: routing.TopicSystemHealth, QoS: 1},
	}
}

// mainLoop refreshes the tracker until a signal arrives, then shuts the
// components down in order, stopping the location publisher before the
// session so its last report is not dropped.
func mainLoop(d *device, locStop chan struct{}, locDone <-chan struct{}, logger *logging.Logger, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			d.bridge.Close()
			close(locStop)
			<-locDone
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
