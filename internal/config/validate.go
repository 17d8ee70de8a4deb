// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/hootrhino/rdserial"
	"github.com/hootrhino/rdserial/internal/port"
)

// IsMeter reports whether device names a UM meter rather than a
// register-addressed supply.
func IsMeter(device string) bool {
	_, err := rdserial.LookupSubModel(device)
	return err == nil
}

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- device ----
	if cfg.Device == "" {
		return fmt.Errorf("device is required")
	}
	meter := IsMeter(cfg.Device)
	if !meter {
		if _, err := rdserial.LookupFamily(cfg.Device); err != nil {
			return fmt.Errorf("device %q: unknown (register devices: %s; meters: um24c, um25c, um34c)",
				cfg.Device, strings.Join(rdserial.FamilyNames(), ", "))
		}
	}

	// ---- connection ----
	c := cfg.Connection
	if c.Address == "" {
		return fmt.Errorf("connection.address is required")
	}
	if c.Backend != "" {
		known := false
		for _, b := range port.Backends() {
			if strings.EqualFold(b, c.Backend) {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("connection.backend %q: expected one of %s", c.Backend, strings.Join(port.Backends(), ", "))
		}
	}
	switch strings.ToLower(c.Framing) {
	case "", FramingRTU:
	case FramingMBAP:
		if meter {
			return fmt.Errorf("connection.framing mbap: %q is not a Modbus device", cfg.Device)
		}
		if !strings.EqualFold(c.Backend, port.BackendTCP) {
			return fmt.Errorf("connection.framing mbap needs the tcp backend")
		}
	default:
		return fmt.Errorf("connection.framing %q: expected rtu or mbap", c.Framing)
	}
	if c.Baud < 0 {
		return fmt.Errorf("connection.baud %d: must be positive", c.Baud)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("connection.timeout must not be negative")
	}
	if c.ConnectDelay != nil && *c.ConnectDelay < 0 {
		return fmt.Errorf("connection.connect_delay must not be negative")
	}
	if c.BluetoothPort < 0 || c.BluetoothPort > 30 {
		return fmt.Errorf("connection.bluetooth_port %d: expected 1-30", c.BluetoothPort)
	}

	// ---- registers ----
	for _, g := range cfg.Groups {
		if g < 0 || g >= rdserial.GroupCount {
			return fmt.Errorf("groups: index %d out of range 0-%d", g, rdserial.GroupCount-1)
		}
	}
	if meter && (len(cfg.Groups) > 0 || cfg.AllGroups) {
		return fmt.Errorf("device %q: preset groups apply to register devices only", cfg.Device)
	}

	// ---- watch ----
	if cfg.Watch.Interval < 0 {
		return fmt.Errorf("watch.interval must not be negative")
	}
	if _, err := rdserial.ParseErrorPolicy(cfg.Watch.OnError); err != nil {
		return fmt.Errorf("watch.on_error: %w", err)
	}

	// ---- outputs ----
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d: expected 0, 1 or 2", cfg.MQTT.QoS)
	}
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	if cfg.Gateway.Listen != "" {
		if meter {
			return fmt.Errorf("gateway: %q has no holding registers to mirror", cfg.Device)
		}
		if _, _, err := net.SplitHostPort(cfg.Gateway.Listen); err != nil {
			return fmt.Errorf("gateway.listen: %w", err)
		}
	}

	if cfg.LogLevel != "" {
		if _, err := rdserial.ParseLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}
