// Package config loads device configuration from YAML with environment
// variable overrides. Loading order: defaults, then file values, then
// MQTTBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Role selects which device variant a config is validated for.
type Role string

const (
	RoleBus  Role = "bus"
	RoleStop Role = "stop"
)

// Config is the root configuration for both device roles. A config file
// carries either the bus or the stop section depending on the binary.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Bus     BusConfig     `yaml:"bus"`
	Stop    StopConfig    `yaml:"stop"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Timing  TimingConfig  `yaml:"timing"`
	Logging LoggingConfig `yaml:"logging"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	KeepAliveSeconds int    `yaml:"keepalive_seconds"`
}

// BusConfig contains vehicle-side identity and pin mapping.
type BusConfig struct {
	ID        string `yaml:"id"`
	RouteID   string `yaml:"route_id"`
	RouteName string `yaml:"route_name"`

	LEDRedPin   int `yaml:"led_red_pin"`
	LEDGreenPin int `yaml:"led_green_pin"`
	BuzzerPin   int `yaml:"buzzer_pin"`

	LocationIntervalSeconds float64 `yaml:"location_interval_seconds"`
	Latitude                float64 `yaml:"latitude"`
	Longitude               float64 `yaml:"longitude"`
}

// StopConfig contains stop-side identity and the served route table.
type StopConfig struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	BuzzerPin int           `yaml:"buzzer_pin"`
	Routes    []RouteConfig `yaml:"routes"`
}

// RouteConfig maps one served route to its button and LED pins.
type RouteConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Color     string `yaml:"color"`
	ButtonPin int    `yaml:"button_pin"`
	LEDPin    int    `yaml:"led_pin"`
}

// GPIOConfig selects the GPIO driver.
type GPIOConfig struct {
	// Driver is "chip" for the Linux character device or "mock" for a
	// hardware-free run on a development machine.
	Driver string `yaml:"driver"`
	Chip   string `yaml:"chip"`
}

// TimingConfig contains debounce and heartbeat periods.
type TimingConfig struct {
	DebounceMs       int `yaml:"debounce_ms"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HTTPConfig contains the local status page settings.
type HTTPConfig struct {
	// Addr is the listen address for the status page; empty disables it.
	Addr string `yaml:"addr"`
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates it for the given role.
func Load(path string, role Role) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(role); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with the defaults the original field
// units shipped with.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			KeepAliveSeconds: 60,
		},
		Bus: BusConfig{
			RouteID:                 "100",
			LEDRedPin:               5,
			LEDGreenPin:             6,
			BuzzerPin:               13,
			LocationIntervalSeconds: 2,
			Latitude:                36.0,
			Longitude:               127.0,
		},
		Stop: StopConfig{
			ID: "STOP001",
		},
		GPIO: GPIOConfig{
			Driver: "chip",
			Chip:   "gpiochip0",
		},
		Timing: TimingConfig{
			DebounceMs:       300,
			HeartbeatSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies MQTTBUS_SECTION_KEY environment variables on
// top of file values. Credentials are the usual override candidates.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTBUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("MQTTBUS_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Port = p
		}
	}
	if v := os.Getenv("MQTTBUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTTBUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("MQTTBUS_BUS_ID"); v != "" {
		cfg.Bus.ID = v
	}
	if v := os.Getenv("MQTTBUS_BUS_ROUTE_ID"); v != "" {
		cfg.Bus.RouteID = v
	}
	if v := os.Getenv("MQTTBUS_STOP_ID"); v != "" {
		cfg.Stop.ID = v
	}
	if v := os.Getenv("MQTTBUS_GPIO_DRIVER"); v != "" {
		cfg.GPIO.Driver = v
	}
	if v := os.Getenv("MQTTBUS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for the given role.
func (c *Config) Validate(role Role) error {
	var errs []string

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.Timing.DebounceMs <= 0 {
		errs = append(errs, "timing.debounce_ms must be positive")
	}
	if c.Timing.HeartbeatSeconds <= 0 {
		errs = append(errs, "timing.heartbeat_seconds must be positive")
	}
	if d := c.GPIO.Driver; d != "chip" && d != "mock" {
		errs = append(errs, "gpio.driver must be \"chip\" or \"mock\"")
	}

	switch role {
	case RoleBus:
		if c.Bus.ID == "" {
			errs = append(errs, "bus.id is required")
		}
		if c.Bus.RouteID == "" {
			errs = append(errs, "bus.route_id is required")
		}
	case RoleStop:
		if c.Stop.ID == "" {
			errs = append(errs, "stop.id is required")
		}
		if len(c.Stop.Routes) == 0 {
			errs = append(errs, "stop.routes must not be empty")
		}
		used := make(map[int]string)
		for _, r := range c.Stop.Routes {
			if r.ID == "" {
				errs = append(errs, "stop.routes entries need an id")
				continue
			}
			for _, pin := range []int{r.ButtonPin, r.LEDPin} {
				if other, ok := used[pin]; ok {
					errs = append(errs, fmt.Sprintf("pin %d used by routes %s and %s", pin, other, r.ID))
				}
				used[pin] = r.ID
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown role %q", role))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// DebounceWindow returns the debounce window as a Duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Timing.DebounceMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat period as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Timing.HeartbeatSeconds) * time.Second
}

// LocationInterval returns the vehicle location publish period.
func (c *Config) LocationInterval() time.Duration {
	return time.Duration(c.Bus.LocationIntervalSeconds * float64(time.Second))
}
