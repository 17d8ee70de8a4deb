// internal/config/normalize.go
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hootrhino/rdserial"
	"github.com/hootrhino/rdserial/internal/port"
)

const (
	DefaultBaud          = 9600
	DefaultTimeout       = 5 * time.Second
	DefaultWatchInterval = 2 * time.Second
	DefaultBluetoothPort = 1
	DefaultTopicPrefix   = "rdserial"

	FramingRTU  = "rtu"
	FramingMBAP = "mbap"
)

// Normalize fills in defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Device = strings.ToLower(cfg.Device)

	c := &cfg.Connection
	c.Backend = strings.ToLower(c.Backend)
	if c.Backend == "" {
		c.Backend = port.BackendGoSerial
	}
	c.Framing = strings.ToLower(c.Framing)
	if c.Framing == "" {
		c.Framing = FramingRTU
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectDelay == nil {
		d := port.DefaultConnectDelay
		c.ConnectDelay = &d
	}
	if c.BluetoothPort == 0 {
		c.BluetoothPort = DefaultBluetoothPort
	}
	if c.Backend == port.BackendTCP {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			c.Address = net.JoinHostPort(c.Address, strconv.Itoa(c.BluetoothPort))
		}
	}

	if cfg.ModbusUnit == nil {
		unit := uint8(1)
		cfg.ModbusUnit = &unit
	}
	if cfg.AllGroups {
		cfg.Groups = make([]int, rdserial.GroupCount)
		for i := range cfg.Groups {
			cfg.Groups[i] = i
		}
	}

	if cfg.Watch.Interval == 0 {
		cfg.Watch.Interval = DefaultWatchInterval
	}
	if cfg.Watch.OnError == "" {
		cfg.Watch.OnError = "continue"
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = DefaultTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Unit returns the Modbus unit byte, 1 when unset.
func (cfg *Config) Unit() uint8 {
	if cfg.ModbusUnit == nil {
		return 1
	}
	return *cfg.ModbusUnit
}

// PortConfig derives the port settings from a normalized configuration.
func (cfg *Config) PortConfig() port.Config {
	pc := port.Config{
		Backend:  cfg.Connection.Backend,
		Address:  cfg.Connection.Address,
		BaudRate: cfg.Connection.Baud,
		Timeout:  cfg.Connection.Timeout,
	}
	if cfg.Connection.ConnectDelay != nil {
		pc.ConnectDelay = *cfg.Connection.ConnectDelay
	}
	return pc
}
