// cmd/rdserial/commands.go
package main

import (
	"fmt"
	"time"

	"github.com/hootrhino/rdserial"
)

type fieldWrite struct {
	name  string
	set   bool
	value any
}

// supplyBatch queues every DPS/RD write requested on the command line.
// Group settings go to each selected group.
func supplyBatch(f *rdserial.Family, o *options, groups []int, now time.Time) (*rdserial.CommandBatch, error) {
	b := rdserial.NewCommandBatch(f)

	device := []fieldWrite{
		{"setting_volts", o.setVolts.set, o.setVolts.v},
		{"setting_amps", o.setAmps.set, o.setAmps.v},
		{"key_lock", o.setKeyLock.set, o.setKeyLock.v},
		{"brightness", o.setBrightness.set, o.setBrightness.v},
		{"group_loader", o.loadGroup.set, o.loadGroup.v},
	}
	if state, ok := o.outputState(); ok {
		device = append(device, fieldWrite{"output_state", true, state})
	}
	if o.loadGroup.set && (o.loadGroup.v < 0 || o.loadGroup.v >= rdserial.GroupCount) {
		return nil, fmt.Errorf("-load-group %d: expected 0-%d", o.loadGroup.v, rdserial.GroupCount-1)
	}
	if o.setBrightness.set && (o.setBrightness.v < 0 || o.setBrightness.v > 5) {
		return nil, fmt.Errorf("-set-brightness %d: expected 0-5", o.setBrightness.v)
	}
	for _, d := range device {
		if !d.set {
			continue
		}
		if err := b.Set(d.name, d.value); err != nil {
			return nil, err
		}
	}
	if o.setClock {
		if err := b.SetClock(now); err != nil {
			return nil, err
		}
	}

	group := []fieldWrite{
		{"setting_volts", o.setGroupVolts.set, o.setGroupVolts.v},
		{"setting_amps", o.setGroupAmps.set, o.setGroupAmps.v},
		{"cutoff_volts", o.setGroupCutoffVolts.set, o.setGroupCutoffVolts.v},
		{"cutoff_amps", o.setGroupCutoffAmps.set, o.setGroupCutoffAmps.v},
		{"cutoff_watts", o.setGroupCutoffWatts.set, o.setGroupCutoffWatts.v},
		{"brightness", o.setGroupBrightness.set, o.setGroupBrightness.v},
		{"maintain_output", o.setGroupMaintainOutput.set, o.setGroupMaintainOutput.v},
		{"poweron_output", o.setGroupPoweronOutput.set, o.setGroupPoweronOutput.v},
	}
	for _, g := range group {
		if !g.set {
			continue
		}
		if len(groups) == 0 {
			return nil, fmt.Errorf("group settings need -group or -all-groups")
		}
		for _, i := range groups {
			if err := b.SetGroup(i, g.name, g.value); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// meterCommands builds the UM command list in a fixed order and checks
// each against the sub-model.
func meterCommands(s rdserial.SubModel, o *options) ([]rdserial.UMCommand, error) {
	var cmds []rdserial.UMCommand
	add := func(c rdserial.UMCommand, err error) error {
		if err != nil {
			return err
		}
		if !c.Supports(s) {
			return fmt.Errorf("%s is not supported on %s", c.Name, s.Name)
		}
		cmds = append(cmds, c)
		return nil
	}
	steps := []struct {
		on  bool
		cmd func() (rdserial.UMCommand, error)
	}{
		{o.nextScreen, always(rdserial.NextScreenCommand())},
		{o.previousScreen, always(rdserial.PreviousScreenCommand())},
		{o.rotateScreen, always(rdserial.RotateScreenCommand())},
		{o.nextDataGroup, always(rdserial.NextDataGroupCommand())},
		{o.clearDataGroup, always(rdserial.ClearDataGroupCommand())},
		{o.setDataGroup.set, func() (rdserial.UMCommand, error) { return rdserial.SetDataGroupCommand(o.setDataGroup.v) }},
		{o.setRecordThreshold.set, func() (rdserial.UMCommand, error) {
			return rdserial.RecordThresholdCommand(o.setRecordThreshold.v)
		}},
		{o.setScreenBrightness.set, func() (rdserial.UMCommand, error) {
			return rdserial.ScreenBrightnessCommand(o.setScreenBrightness.v)
		}},
		{o.setScreenTimeout.set, func() (rdserial.UMCommand, error) {
			return rdserial.ScreenTimeoutCommand(o.setScreenTimeout.v)
		}},
	}
	for _, st := range steps {
		if !st.on {
			continue
		}
		if err := add(st.cmd()); err != nil {
			return nil, err
		}
	}
	return cmds, nil
}

// supplyFlagsGiven reports whether any DPS/RD write flag was used.
func (o *options) supplyFlagsGiven() bool {
	for _, n := range []string{
		"set-volts", "set-amps", "set-output-state", "on", "off", "set-key-lock",
		"set-brightness", "load-group", "set-clock", "set-group-volts", "set-group-amps",
		"set-group-cutoff-volts", "set-group-cutoff-amps", "set-group-cutoff-watts",
		"set-group-brightness", "set-group-maintain-output", "set-group-poweron-output",
	} {
		if o.given[n] {
			return true
		}
	}
	return false
}

// meterFlagsGiven reports whether any UM command flag was used.
func (o *options) meterFlagsGiven() bool {
	for _, n := range []string{
		"next-screen", "previous-screen", "rotate-screen", "next-data-group",
		"clear-data-group", "set-data-group", "set-record-threshold",
		"set-screen-brightness", "set-screen-timeout",
	} {
		if o.given[n] {
			return true
		}
	}
	return false
}

func always(c rdserial.UMCommand) func() (rdserial.UMCommand, error) {
	return func() (rdserial.UMCommand, error) { return c, nil }
}
