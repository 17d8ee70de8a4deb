// cmd/rdserial/output.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hootrhino/rdserial"
)

const (
	trendUp   = "\u2197"
	trendDown = "\u2198"
)

// trends remembers the last few values of each named reading and marks
// whether a new value is above or below their mean. A nil *trends prints
// no markers.
type trends struct {
	points int
	seen   map[string][]float64
}

func newTrends(points int) *trends {
	if points < 1 {
		points = 1
	}
	return &trends{points: points, seen: make(map[string][]float64)}
}

func (t *trends) mark(name string, v float64) string {
	if t == nil {
		return ""
	}
	hist, ok := t.seen[name]
	if !ok {
		hist = make([]float64, t.points)
		for i := range hist {
			hist[i] = v
		}
		t.seen[name] = hist
		return " "
	}
	var sum float64
	for _, h := range hist {
		sum += h
	}
	mean := sum / float64(len(hist))
	t.seen[name] = append(hist[1:], v)
	switch {
	case v > mean:
		return trendUp
	case v < mean:
		return trendDown
	}
	return " "
}

type printer struct {
	out    io.Writer
	json   bool
	trends *trends
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000000")
}

func (p *printer) printJSON(v json.Marshaler) error {
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.out, "%s\n", b)
	return err
}

// Supply prints a DPS/RD state.
func (p *printer) Supply(s *rdserial.DeviceState) error {
	if p.json {
		return p.printJSON(s)
	}
	d, t, w := s.Device, p.trends, p.out
	mode := "CV"
	if d.Bool("constant_current") {
		mode = "CC"
	}
	output := "(off)"
	if d.Bool("output_state") {
		output = "(on)"
	}
	protection, _ := d.Value("protection")

	fmt.Fprintf(w, "Setting: %5.2fV, %6.3fA (%s)\n", d.Float("setting_volts"), d.Float("setting_amps"), mode)
	fmt.Fprintf(w, "Output %-5s: %5.2fV%s, %5.2fA%s, %6.2fW%s\n", output,
		d.Float("volts"), t.mark("volts", d.Float("volts")),
		d.Float("amps"), t.mark("amps", d.Float("amps")),
		d.Float("watts"), t.mark("watts", d.Float("watts")))
	fmt.Fprintf(w, "Input: %5.2fV%s, protection: %v\n",
		d.Float("input_volts"), t.mark("input_volts", d.Float("input_volts")), protection)
	fmt.Fprintf(w, "Brightness: %d/5, key lock: %s\n", d.Int("brightness"), onOff(d.Bool("key_lock")))
	if _, ok := d.Field("temp_c"); ok {
		fmt.Fprintf(w, "Temperature: %dC%s (%dF%s), energy: %.3fAh, %.3fWh\n",
			d.Int("temp_c"), t.mark("temp_c", d.Float("temp_c")),
			d.Int("temp_f"), t.mark("temp_f", d.Float("temp_f")),
			d.Float("cumulative_charge"), d.Float("cumulative_energy"))
	}
	if _, ok := d.Field("serial"); ok {
		fmt.Fprintf(w, "Model: %d, firmware: %d, serial: %d\n", d.Int("model"), d.Int("firmware"), d.Int("serial"))
	} else {
		fmt.Fprintf(w, "Model: %d, firmware: %d\n", d.Int("model"), d.Int("firmware"))
	}
	fmt.Fprintf(w, "Collection time: %s\n", formatTime(s.CollectionTime))

	for _, i := range s.GroupIndexes() {
		g := s.Groups[i]
		fmt.Fprintf(w, "\nGroup %d:\n", i)
		fmt.Fprintf(w, "    Setting: %5.2fV, %6.3fA\n", g.Float("setting_volts"), g.Float("setting_amps"))
		if _, ok := g.Field("cutoff_watts"); ok {
			fmt.Fprintf(w, "    Cutoff: %5.2fV, %6.3fA, %5.1fW\n",
				g.Float("cutoff_volts"), g.Float("cutoff_amps"), g.Float("cutoff_watts"))
			fmt.Fprintf(w, "    Brightness: %d/5\n", g.Int("brightness"))
			fmt.Fprintf(w, "    Maintain output state: %t\n", g.Bool("maintain_output"))
			fmt.Fprintf(w, "    Output on power-on: %t\n", g.Bool("poweron_output"))
		} else {
			fmt.Fprintf(w, "    Cutoff: %5.2fV, %6.3fA\n", g.Float("cutoff_volts"), g.Float("cutoff_amps"))
		}
	}
	return nil
}

// Meter prints a UM frame.
func (p *printer) Meter(f *rdserial.FixedFrame) error {
	if p.json {
		return p.printJSON(f)
	}
	d, t, w := f.Fields, p.trends, p.out

	usb := "USB: %5.2fV%s, %6.3fA%s, %6.3fW%s, %6.1f\u03a9%s\n"
	if f.SubModel.Name == rdserial.UM25C.Name {
		usb = "USB: %5.3fV%s, %6.4fA%s, %6.3fW%s, %6.1f\u03a9%s\n"
	}
	fmt.Fprintf(w, usb,
		d.Float("volts"), t.mark("volts", d.Float("volts")),
		d.Float("amps"), t.mark("amps", d.Float("amps")),
		d.Float("watts"), t.mark("watts", d.Float("watts")),
		d.Float("resistance"), t.mark("resistance", d.Float("resistance")))

	mode, _ := d.Value("charging_mode")
	fmt.Fprintf(w, "Data: %5.2fV(+)%s, %5.2fV(-)%s, charging mode: %v\n",
		d.Float("data_line_positive_volts"), t.mark("data_line_positive_volts", d.Float("data_line_positive_volts")),
		d.Float("data_line_negative_volts"), t.mark("data_line_negative_volts", d.Float("data_line_negative_volts")),
		mode)

	recording := "(off)"
	if d.Bool("recording") {
		recording = "(on)"
	}
	fmt.Fprintf(w, "Recording %-5s: %8.3fAh%s, %8.3fWh%s, %6d%s sec at >= %4.2fA\n", recording,
		d.Float("record_amphours"), t.mark("record_amphours", d.Float("record_amphours")),
		d.Float("record_watthours"), t.mark("record_watthours", d.Float("record_watthours")),
		d.Int("record_seconds"), t.mark("record_seconds", d.Float("record_seconds")),
		d.Float("record_threshold"))

	selected := d.Int("data_group_selected")
	group := func(i int) string {
		g := f.DataGroups[i]
		star := " "
		if i == selected {
			star = "*"
		}
		return fmt.Sprintf("%s%d: %8.3fAh%s, %8.3fWh%s", star, i,
			g.AmpHours, t.mark(fmt.Sprintf("dg_%d_amp_hours", i), g.AmpHours),
			g.WattHours, t.mark(fmt.Sprintf("dg_%d_watt_hours", i), g.WattHours))
	}
	half := rdserial.DataGroupCount / 2
	fmt.Fprintln(w, "Data groups:")
	for i := 0; i < half; i++ {
		fmt.Fprintf(w, "    %-32s%s\n", group(i), group(i+half))
	}

	fmt.Fprintf(w, "%5s, temperature: %3dC%s (%3dF%s)\n", f.SubModel.Name,
		d.Int("temp_c"), t.mark("temp_c", d.Float("temp_c")),
		d.Int("temp_f"), t.mark("temp_f", d.Float("temp_f")))
	timeout := "off"
	if n := d.Int("screen_timeout"); n > 0 {
		timeout = fmt.Sprintf("%d min", n)
	}
	fmt.Fprintf(w, "Screen: %d/6, brightness: %d/5, timeout: %s\n",
		d.Int("screen_selected"), d.Int("screen_brightness"), timeout)
	fmt.Fprintf(w, "Collection time: %s\n", formatTime(f.CollectionTime))
	return nil
}

// separator goes between human readings in watch mode.
func (p *printer) separator() {
	if !p.json {
		fmt.Fprintln(p.out)
	}
}
