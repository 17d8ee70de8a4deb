// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rdserial

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var registerTableHeader = []string{"map", "name", "address", "kind", "scale", "write_only", "description"}

// WriteRegisterTable writes the register layout of f as CSV: the device map
// followed by every preset group at its absolute address.
func WriteRegisterTable(w io.Writer, f *Family) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(registerTableHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := writeMapRows(cw, "device", NewDeviceMap(f)); err != nil {
		return err
	}
	for i := 0; i < GroupCount; i++ {
		g, err := NewGroupMap(f, i)
		if err != nil {
			return err
		}
		if err := writeMapRows(cw, fmt.Sprintf("group%d", i), g); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMapRows(cw *csv.Writer, label string, m *RegisterMap) error {
	for _, field := range m.Fields() {
		scale := ""
		if field.Kind == KindFixed {
			scale = strconv.Itoa(field.Scale)
		}
		record := []string{
			label,
			field.Name,
			fmt.Sprintf("0x%04X", field.Address),
			field.Kind.String(),
			scale,
			strconv.FormatBool(field.WriteOnly),
			field.Description,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for %s: %w", field.Name, err)
		}
	}
	return nil
}
