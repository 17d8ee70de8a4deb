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
	"fmt"
	"io"
	"sort"
)

// WriteRun is a contiguous block of register writes.
type WriteRun struct {
	Start  uint16
	Values []uint16
}

// End returns the address one past the run.
func (r WriteRun) End() uint16 {
	return r.Start + uint16(len(r.Values))
}

// PlanWrites coalesces pending writes into the fewest contiguous runs of at
// most MaxWriteRegisters registers, in ascending address order.
func PlanWrites(pending map[uint16]uint16) []WriteRun {
	if len(pending) == 0 {
		return []WriteRun{}
	}

	addrs := make([]uint16, 0, len(pending))
	for a := range pending {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	result := make([]WriteRun, 0, 1)
	current := WriteRun{Start: addrs[0], Values: []uint16{pending[addrs[0]]}}
	for _, addr := range addrs[1:] {
		if addr == current.End() && canAddToRun(current) {
			current.Values = append(current.Values, pending[addr])
			continue
		}
		// Address gap or full run
		result = append(result, current)
		current = WriteRun{Start: addr, Values: []uint16{pending[addr]}}
	}
	return append(result, current)
}

// canAddToRun checks the per-request register ceiling
func canAddToRun(run WriteRun) bool {
	return len(run.Values) < MaxWriteRegisters
}

// ApplyWrites issues every run with function code 0x10, including runs of
// one register. It stops at the first failure.
func ApplyWrites(t RegisterTransport, unit uint8, runs []WriteRun, logger io.Writer) error {
	for _, run := range runs {
		if logger != nil {
			fmt.Fprintf(logger, "DEBUG: writing %d register(s) %v at base %d\n", len(run.Values), run.Values, run.Start)
		}
		if err := t.WriteRegisters(unit, run.Start, run.Values); err != nil {
			return fmt.Errorf("rdserial: write %d register(s) at 0x%02X: %w", len(run.Values), run.Start, err)
		}
	}
	return nil
}
