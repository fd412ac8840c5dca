package session

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/iamfiro/mqtt-bus/internal/config"
)

const (
	// defaultConnectTimeout bounds the wait for the broker's connect
	// acknowledgment.
	defaultConnectTimeout = 10 * time.Second

	// publishTimeout bounds the wait for a publish acknowledgment.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is how long paho waits for in-flight work on
	// disconnect, in milliseconds.
	disconnectQuiesce = 1000
)

// buildClientOptions creates paho options from the broker config.
//
// The last will is registered here: the broker publishes the retained
// offline status on our behalf if the connection drops without a clean
// disconnect. Auto-reconnect is left to paho; the initial connect result
// is surfaced to the caller, who owns the retry policy.
func buildClientOptions(cfg config.MQTTConfig, clientID, willTopic string, willPayload []byte) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(time.Duration(cfg.KeepAliveSeconds) * time.Second)
	opts.SetWill(willTopic, string(willPayload), 1, true)

	return opts
}
