// cmd/rdserial/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hootrhino/rdserial"
	"github.com/hootrhino/rdserial/internal/config"
	"github.com/hootrhino/rdserial/internal/gateway"
	"github.com/hootrhino/rdserial/internal/port"
	"github.com/hootrhino/rdserial/internal/publish"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "ports":
			ports, err := port.List()
			if err != nil {
				log.Fatalf("list ports: %v", err)
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return
		case "registers":
			if len(os.Args) != 3 {
				log.Fatalf("usage: rdserial registers <%s>", strings.Join(rdserial.FamilyNames(), "|"))
			}
			f, err := rdserial.LookupFamily(os.Args[2])
			if err != nil {
				log.Fatalf("%v", err)
			}
			if err := rdserial.WriteRegisterTable(os.Stdout, f); err != nil {
				log.Fatalf("%v", err)
			}
			return
		}
	}

	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "rdserial:", err)
		os.Exit(2)
	}
	if o.version {
		fmt.Println("rdserial", version)
		return
	}
	os.Exit(run(o))
}

func run(o *options) int {
	cfg, err := buildConfig(o)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 2
	}

	level, _ := rdserial.ParseLevel(cfg.LogLevel)
	logger := rdserial.NewSimpleLogger(os.Stderr, level, "rdserial")
	log.SetOutput(logger)
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, shutdown, err := buildSinks(cfg, logger)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}
	defer shutdown()

	log.Printf("INFO: connecting to %s %s", strings.ToUpper(cfg.Device), cfg.Connection.Address)
	conn, err := port.Open(cfg.PortConfig())
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}

	schedule := rdserial.OneShot()
	if cfg.Watch.Enabled {
		schedule = rdserial.RepeatEvery(cfg.Watch.Interval)
	}
	policy, _ := rdserial.ParseErrorPolicy(cfg.Watch.OnError)
	poller := rdserial.NewPoller(schedule, policy)
	poller.SetLogger(logger)
	poller.SetOnError(func(err error) { sinks.ObserveFailure(cfg.Device, err) })

	out := &printer{out: os.Stdout, json: cfg.JSON}
	if cfg.Watch.Enabled {
		out.trends = newTrends(o.trendPoints)
	}

	var s session
	if config.IsMeter(cfg.Device) {
		s, err = newMeterSession(cfg, o, conn, logger)
	} else {
		s, err = newSupplySession(cfg, o, conn, logger)
	}
	if err != nil {
		conn.Close()
		log.Printf("ERROR: %v", err)
		return 1
	}
	defer s.Close()

	if err := s.Prepare(); err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}

	first := true
	err = poller.Run(ctx, func(ctx context.Context) error {
		src, err := s.Poll()
		if err != nil {
			return err
		}
		if !first && cfg.Watch.Enabled {
			out.separator()
		}
		first = false
		if err := s.Print(out, src); err != nil {
			return err
		}
		if err := sinks.Publish(publish.NewReading(cfg.Device, time.Now(), src)); err != nil {
			log.Printf("WARNING: publish: %v", err)
		}
		return nil
	})
	if err != nil && !rdserial.IsCancellation(err) {
		log.Printf("ERROR: %v", err)
		return 1
	}
	return 0
}

// buildConfig loads the optional config file and lets explicit flags
// override it.
func buildConfig(o *options) (*config.Config, error) {
	cfg := &config.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, o)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if config.IsMeter(cfg.Device) && o.supplyFlagsGiven() {
		return nil, fmt.Errorf("%s: supply settings do not apply to meters", cfg.Device)
	}
	if !config.IsMeter(cfg.Device) && o.meterFlagsGiven() {
		return nil, fmt.Errorf("%s: meter commands do not apply to supplies", cfg.Device)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func applyFlags(cfg *config.Config, o *options) {
	g := o.given
	if g["device"] {
		cfg.Device = o.device
	}
	if g["serial-device"] {
		cfg.Connection.Address = o.serialDevice
		if cfg.Connection.Backend == port.BackendTCP {
			cfg.Connection.Backend = ""
		}
	}
	if g["bluetooth-address"] {
		cfg.Connection.Address = o.bluetoothAddress
		cfg.Connection.Backend = port.BackendTCP
	}
	if g["bluetooth-port"] {
		cfg.Connection.BluetoothPort = o.bluetoothPort
	}
	if g["backend"] {
		cfg.Connection.Backend = o.backend
	}
	if g["framing"] {
		cfg.Connection.Framing = o.framing
	}
	if g["baud"] {
		cfg.Connection.Baud = o.baud
	}
	if g["connect-delay"] {
		d := seconds(o.connectDelay)
		cfg.Connection.ConnectDelay = &d
	}
	if g["json"] {
		cfg.JSON = o.json
	}
	if g["watch"] {
		cfg.Watch.Enabled = o.watch
	}
	if g["watch-seconds"] {
		cfg.Watch.Interval = seconds(o.watchSeconds)
	}
	if g["abort-on-error"] && o.abortOnError {
		cfg.Watch.OnError = "abort"
	}
	if g["modbus-unit"] {
		unit := uint8(o.modbusUnit)
		cfg.ModbusUnit = &unit
	}
	if len(o.groups) > 0 {
		cfg.Groups = append([]int(nil), o.groups...)
	}
	if g["all-groups"] {
		cfg.AllGroups = o.allGroups
	}
	if g["mqtt-broker"] {
		cfg.MQTT.Broker = o.mqttBroker
	}
	if g["metrics-listen"] {
		cfg.Metrics.Listen = o.metricsListen
	}
	if g["gateway-listen"] {
		cfg.Gateway.Listen = o.gatewayListen
	}
	switch {
	case o.debug:
		cfg.LogLevel = "debug"
	case o.quiet:
		cfg.LogLevel = "error"
	}
}

// buildSinks starts every configured output. The returned func closes them.
func buildSinks(cfg *config.Config, logger io.Writer) (publish.Multi, func(), error) {
	var sinks publish.Multi
	var srv *http.Server
	shutdown := func() {
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
		if err := sinks.Close(); err != nil {
			log.Printf("WARNING: close outputs: %v", err)
		}
	}

	if cfg.MQTT.Broker != "" {
		m, err := publish.NewMQTT(publish.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Retain:      cfg.MQTT.Retain,
			Timeout:     cfg.MQTT.Timeout,
			Logger:      logger,
		})
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		sinks = append(sinks, m)
	}

	if cfg.Metrics.Listen != "" {
		metrics := publish.NewMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: metrics server: %v", err)
			}
		}()
		log.Printf("INFO: serving metrics on http://%s/metrics", cfg.Metrics.Listen)
		sinks = append(sinks, metrics)
	}

	if cfg.Gateway.Listen != "" {
		mirror, err := gateway.NewMirror(cfg.Gateway.Listen, logger)
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		log.Printf("INFO: mirroring holding registers on %s", cfg.Gateway.Listen)
		sinks = append(sinks, mirror)
	}
	return sinks, shutdown, nil
}
