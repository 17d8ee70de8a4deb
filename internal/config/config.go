// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device     string           `yaml:"device"`
	Connection ConnectionConfig `yaml:"connection"`
	ModbusUnit *uint8           `yaml:"modbus_unit"` // nil => 1
	Groups     []int            `yaml:"groups"`
	AllGroups  bool             `yaml:"all_groups"`
	Watch      WatchConfig      `yaml:"watch"`
	JSON       bool             `yaml:"json"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	LogLevel   string           `yaml:"log_level"`
}

// ---- CONNECTION ----

type ConnectionConfig struct {
	Backend      string         `yaml:"backend"` // goserial, bugst, tarm, tcp
	Framing      string         `yaml:"framing"` // rtu (default) or mbap for Modbus TCP gateways
	Address      string         `yaml:"address"` // device path or host[:port]
	Baud         int            `yaml:"baud"`
	Timeout      time.Duration  `yaml:"timeout"`
	ConnectDelay *time.Duration `yaml:"connect_delay"` // nil => default

	// Port appended to a tcp address without one (RFCOMM bridges).
	BluetoothPort int `yaml:"bluetooth_port"`
}

// ---- WATCH ----

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	OnError  string        `yaml:"on_error"` // continue | abort
}

// ---- OUTPUTS ----

type MQTTConfig struct {
	Broker      string        `yaml:"broker"` // empty disables MQTT
	TopicPrefix string        `yaml:"topic_prefix"`
	ClientID    string        `yaml:"client_id"`
	QoS         byte          `yaml:"qos"`
	Retain      bool          `yaml:"retain"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the exporter
}

type GatewayConfig struct {
	Listen string `yaml:"listen"` // empty disables the Modbus TCP mirror; answers as unit 1
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from memory. Unknown keys are rejected; an empty
// document yields an empty configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
