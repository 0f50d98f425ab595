// internal/status/constants.go
package status

// Run state codes as exported to status memory.
const (
	StateIdle       uint16 = 0
	StateValidating uint16 = 1
	StateRunning    uint16 = 2
	StateCompleted  uint16 = 3
	StateCancelled  uint16 = 4
	StateFailed     uint16 = 5
)

// Error codes. Coarse classes only; the operator channel carries detail.
const (
	ErrCodeNone       uint16 = 0
	ErrCodeGeneric    uint16 = 1
	ErrCodeValidation uint16 = 2
	ErrCodeConnection uint16 = 3
	ErrCodeProtocol   uint16 = 4
	ErrCodeNoData     uint16 = 5
)

// Register layout of one run-status block.
const (
	SlotStateCode     uint16 = 0
	SlotLastErrorCode uint16 = 1
	SlotRequestsSent  uint16 = 2
	SlotBlocksEmitted uint16 = 3

	SlotsPerRun = 4
)
