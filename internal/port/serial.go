package port

import (
	"io"

	goserial "github.com/hootrhino/goserial"
	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

func openGoSerial(cfg Config) (io.ReadWriteCloser, error) {
	return goserial.Open(&goserial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
}

func openBugst(cfg Config) (io.ReadWriteCloser, error) {
	p, err := bugst.Open(cfg.Address, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		if err := p.SetReadTimeout(cfg.Timeout); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func openTarm(cfg Config) (io.ReadWriteCloser, error) {
	return tarm.OpenPort(&tarm.Config{
		Name:        cfg.Address,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.Timeout,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	})
}

// List enumerates the serial ports present on the host.
func List() ([]string, error) {
	return bugst.GetPortsList()
}
