package web

import (
	"encoding/json"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/status"
)

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Role          string        `json:"role"`
	DeviceID      string        `json:"device_id"`
	Channels      []ChannelJSON `json:"channels"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one route channel.
type ChannelJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LED     bool   `json:"led"`
	Pressed bool   `json:"pressed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	CallsSent        int `json:"calls_sent"`
	CallsFailed      int `json:"calls_failed"`
	CallsReceived    int `json:"calls_received"`
	CommandsReceived int `json:"commands_received"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func formatJSON(snap status.Snapshot) []byte {
	sj := StatusJSON{
		Status: StatusInner{
			Role:          snap.Role,
			DeviceID:      snap.DeviceID,
			Channels:      []ChannelJSON{},
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			MQTT:          MQTTStatus{Connected: snap.Connected, Broker: snap.Config.Broker},
			Counts: CountsJSON{
				CallsSent:        snap.Counts.CallsSent,
				CallsFailed:      snap.Counts.CallsFailed,
				CallsReceived:    snap.Counts.CallsReceived,
				CommandsReceived: snap.Counts.CommandsReceived,
			},
			Config: ConfigJSON{
				DebounceMs:  snap.Config.DebounceMs,
				HeartbeatMs: snap.Config.HeartbeatMs,
				Broker:      snap.Config.Broker,
				HTTPAddr:    snap.Config.HTTPAddr,
			},
		},
	}

	for _, ch := range snap.Channels {
		sj.Status.Channels = append(sj.Status.Channels, ChannelJSON{
			ID:      ch.ID,
			Name:    ch.Name,
			LED:     ch.LED,
			Pressed: ch.Pressed,
		})
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
