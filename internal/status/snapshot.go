// internal/status/snapshot.go
package status

import (
	"errors"

	"github.com/crslab/memtest/internal/device"
	"github.com/crslab/memtest/internal/program"
	"github.com/crslab/memtest/internal/run"
	"github.com/crslab/memtest/internal/sample"
)

// Snapshot is the register image of one run-status block.
type Snapshot struct {
	StateCode     uint16
	LastErrorCode uint16
	RequestsSent  uint16
	BlocksEmitted uint16
}

// SnapshotOf converts an orchestrator progress report into its register
// image. Counters saturate; they never wrap.
func SnapshotOf(p run.Progress) Snapshot {
	return Snapshot{
		StateCode:     stateCode(p.State),
		LastErrorCode: errorCode(p.LastErr),
		RequestsSent:  saturate(p.RequestsSent),
		BlocksEmitted: saturate(p.BlocksEmitted),
	}
}

func stateCode(s run.State) uint16 {
	switch s {
	case run.Validating:
		return StateValidating
	case run.Running:
		return StateRunning
	case run.Completed:
		return StateCompleted
	case run.Cancelled:
		return StateCancelled
	case run.Failed:
		return StateFailed
	default:
		return StateIdle
	}
}

func errorCode(err error) uint16 {
	switch {
	case err == nil:
		return ErrCodeNone
	case errors.Is(err, run.ErrPatternSizeMismatch),
		errors.Is(err, run.ErrPatternNotBinary),
		errors.Is(err, program.ErrPulseWidthTooLarge):
		return ErrCodeValidation
	case errors.Is(err, device.ErrPortUnavailable),
		errors.Is(err, device.ErrHandshakeTimeout),
		errors.Is(err, device.ErrPortBusy):
		return ErrCodeConnection
	case errors.Is(err, run.ErrInvalidPatternChar):
		return ErrCodeProtocol
	case errors.Is(err, sample.ErrNoData):
		return ErrCodeNoData
	default:
		return ErrCodeGeneric
	}
}

func saturate(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
