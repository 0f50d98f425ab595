// internal/status/writer.go
package status

import (
	"errors"
	"fmt"
	"strings"
)

// RegisterWriter is the exact delivery contract the status writer uses.
type RegisterWriter interface {
	WriteRegisters(addr uint16, regs []uint16) error
}

// Writer delivers run-status snapshots into status memory.
// No logic beyond delivery: it receives snapshots and writes them.
//
// Write policy: full block on first write and after any failed write
// (re-assert), change-driven single-register writes otherwise.
type Writer struct {
	cli      RegisterWriter
	baseSlot uint16

	needFull bool
	last     Snapshot
}

func NewWriter(cli RegisterWriter, baseSlot uint16) *Writer {
	return &Writer{
		cli:      cli,
		baseSlot: baseSlot,
		needFull: true,
	}
}

// WriteStatus delivers a snapshot. On any partial failure the next
// successful call re-asserts the full block.
func (w *Writer) WriteStatus(s Snapshot) error {
	if w == nil || w.cli == nil {
		return errors.New("status writer: disabled")
	}

	if w.needFull {
		regs := []uint16{s.StateCode, s.LastErrorCode, s.RequestsSent, s.BlocksEmitted}
		if err := w.cli.WriteRegisters(w.baseSlot, regs); err != nil {
			w.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		w.needFull = false
		w.last = s
		return nil
	}

	var errs []string

	w.writeSlot(SlotStateCode, w.last.StateCode, s.StateCode, &errs, func() { w.last.StateCode = s.StateCode })
	w.writeSlot(SlotLastErrorCode, w.last.LastErrorCode, s.LastErrorCode, &errs, func() { w.last.LastErrorCode = s.LastErrorCode })
	w.writeSlot(SlotRequestsSent, w.last.RequestsSent, s.RequestsSent, &errs, func() { w.last.RequestsSent = s.RequestsSent })
	w.writeSlot(SlotBlocksEmitted, w.last.BlocksEmitted, s.BlocksEmitted, &errs, func() { w.last.BlocksEmitted = s.BlocksEmitted })

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		w.needFull = true
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

func (w *Writer) writeSlot(slot, prev, next uint16, errs *[]string, commit func()) {
	if prev == next {
		return
	}
	if err := w.cli.WriteRegisters(w.baseSlot+slot, []uint16{next}); err != nil {
		*errs = append(*errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
		return
	}
	commit()
}
