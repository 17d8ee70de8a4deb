// cmd/rdserial/flags.go
package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// optFloat, optInt and optBool record whether the flag was given at all.
type optFloat struct {
	set bool
	v   float64
}

func (o *optFloat) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatFloat(o.v, 'f', -1, 64)
}

func (o *optFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.v, o.set = v, true
	return nil
}

type optInt struct {
	set bool
	v   int
}

func (o *optInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.v)
}

func (o *optInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.v, o.set = v, true
	return nil
}

// optBool accepts on/off, true/false and yes/no.
type optBool struct {
	set bool
	v   bool
}

func (o *optBool) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatBool(o.v)
}

func (o *optBool) Set(s string) error {
	v, err := looseBool(s)
	if err != nil {
		return err
	}
	o.v, o.set = v, true
	return nil
}

func looseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on/off, got %q", s)
}

type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*l = append(*l, v)
	return nil
}

type options struct {
	configPath string
	version    bool
	debug      bool
	quiet      bool

	device           string
	serialDevice     string
	bluetoothAddress string
	bluetoothPort    int
	backend          string
	framing          string
	baud             int
	connectDelay     float64
	json             bool
	watch            bool
	watchSeconds     float64
	trendPoints      int
	abortOnError     bool

	modbusUnit int
	groups     intList
	allGroups  bool

	setVolts       optFloat
	setAmps        optFloat
	setOutputState optBool
	on, off        bool
	setKeyLock     optBool
	setBrightness  optInt
	loadGroup      optInt
	setClock       bool

	setGroupVolts          optFloat
	setGroupAmps           optFloat
	setGroupCutoffVolts    optFloat
	setGroupCutoffAmps     optFloat
	setGroupCutoffWatts    optFloat
	setGroupBrightness     optInt
	setGroupMaintainOutput optBool
	setGroupPoweronOutput  optBool

	nextScreen          bool
	previousScreen      bool
	rotateScreen        bool
	nextDataGroup       bool
	clearDataGroup      bool
	setDataGroup        optInt
	setRecordThreshold  optFloat
	setScreenBrightness optInt
	setScreenTimeout    optInt

	mqttBroker    string
	metricsListen string
	gatewayListen string

	// names of the flags given on the command line
	given map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{given: make(map[string]bool)}
	fs := flag.NewFlagSet("rdserial", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&o.version, "version", false, "Report the program version")
	fs.BoolVar(&o.debug, "debug", false, "Print extra debugging information")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress human-readable stderr information")

	fs.StringVar(&o.device, "device", "", "Device type (dps, rd, rd6006, um24c, um25c, um34c)")
	fs.StringVar(&o.serialDevice, "serial-device", "", "Serial filename (e.g. /dev/rfcomm0) of the device")
	fs.StringVar(&o.bluetoothAddress, "bluetooth-address", "", "host[:port] of an RFCOMM/TCP serial bridge")
	fs.IntVar(&o.bluetoothPort, "bluetooth-port", 1, "Port used when -bluetooth-address has none")
	fs.StringVar(&o.backend, "backend", "", "Serial driver: goserial, bugst or tarm")
	fs.StringVar(&o.framing, "framing", "", "Register framing: rtu, or mbap for Modbus TCP gateways")
	fs.IntVar(&o.baud, "baud", 9600, "Serial port baud rate")
	fs.Float64Var(&o.connectDelay, "connect-delay", 0.3, "Seconds to wait after connecting")
	fs.BoolVar(&o.json, "json", false, "Output JSON data")
	fs.BoolVar(&o.watch, "watch", false, "Repeat data collection until cancelled")
	fs.Float64Var(&o.watchSeconds, "watch-seconds", 2.0, "Seconds between collections in watch mode")
	fs.IntVar(&o.trendPoints, "trend-points", 5, "Points remembered for trends in watch mode")
	fs.BoolVar(&o.abortOnError, "abort-on-error", false, "Stop watching after the first failed poll")

	fs.IntVar(&o.modbusUnit, "modbus-unit", 1, "Modbus unit number")
	fs.Var(&o.groups, "group", "Display/set selected group (repeatable)")
	fs.BoolVar(&o.allGroups, "all-groups", false, "Display/set all groups")

	fs.Var(&o.setVolts, "set-volts", "Set voltage setting")
	fs.Var(&o.setAmps, "set-amps", "Set current setting")
	fs.Var(&o.setOutputState, "set-output-state", "Set output on/off")
	fs.BoolVar(&o.on, "on", false, "Set output on")
	fs.BoolVar(&o.off, "off", false, "Set output off")
	fs.Var(&o.setKeyLock, "set-key-lock", "Set key lock on/off")
	fs.Var(&o.setBrightness, "set-brightness", "Set screen brightness (0-5)")
	fs.Var(&o.loadGroup, "load-group", "Load group settings into group 0 (0-9)")
	fs.BoolVar(&o.setClock, "set-clock", false, "Set clock to current time [RD]")

	fs.Var(&o.setGroupVolts, "set-group-volts", "Set group voltage setting")
	fs.Var(&o.setGroupAmps, "set-group-amps", "Set group current setting")
	fs.Var(&o.setGroupCutoffVolts, "set-group-cutoff-volts", "Set group cutoff volts")
	fs.Var(&o.setGroupCutoffAmps, "set-group-cutoff-amps", "Set group cutoff amps")
	fs.Var(&o.setGroupCutoffWatts, "set-group-cutoff-watts", "Set group cutoff watts")
	fs.Var(&o.setGroupBrightness, "set-group-brightness", "Set group screen brightness (0-5)")
	fs.Var(&o.setGroupMaintainOutput, "set-group-maintain-output", "Set group maintain output state during group change")
	fs.Var(&o.setGroupPoweronOutput, "set-group-poweron-output", "Set group enable output on power-on")

	fs.BoolVar(&o.nextScreen, "next-screen", false, "Go to the next screen on the display")
	fs.BoolVar(&o.previousScreen, "previous-screen", false, "Go to the previous screen on the display [UM25C, UM34C]")
	fs.BoolVar(&o.rotateScreen, "rotate-screen", false, "Rotate the screen 90 degrees clockwise")
	fs.BoolVar(&o.nextDataGroup, "next-data-group", false, "Change to the next data group [UM24C]")
	fs.BoolVar(&o.clearDataGroup, "clear-data-group", false, "Clear the current data group")
	fs.Var(&o.setDataGroup, "set-data-group", "Set the selected data group (0-9) [UM25C, UM34C]")
	fs.Var(&o.setRecordThreshold, "set-record-threshold", "Set the recording threshold, 0.00-0.30 inclusive")
	fs.Var(&o.setScreenBrightness, "set-screen-brightness", "Set the screen brightness (0-5)")
	fs.Var(&o.setScreenTimeout, "set-screen-timeout", "Set the screen timeout in minutes (0-9)")

	fs.StringVar(&o.mqttBroker, "mqtt-broker", "", "Publish readings to this MQTT broker")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&o.gatewayListen, "gateway-listen", "", "Mirror holding registers over Modbus TCP on this address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { o.given[f.Name] = true })

	if o.on && o.off {
		return nil, fmt.Errorf("-on and -off are mutually exclusive")
	}
	if (o.on || o.off) && o.setOutputState.set {
		return nil, fmt.Errorf("-set-output-state cannot be combined with -on/-off")
	}
	if o.modbusUnit < 0 || o.modbusUnit > 255 {
		return nil, fmt.Errorf("-modbus-unit %d: expected 0-255", o.modbusUnit)
	}
	if o.serialDevice != "" && o.bluetoothAddress != "" {
		return nil, fmt.Errorf("-serial-device and -bluetooth-address are mutually exclusive")
	}
	return o, nil
}

// outputState folds -on, -off and -set-output-state together.
func (o *options) outputState() (bool, bool) {
	switch {
	case o.on:
		return true, true
	case o.off:
		return false, true
	}
	return o.setOutputState.v, o.setOutputState.set
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
