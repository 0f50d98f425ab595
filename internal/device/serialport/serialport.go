// internal/device/serialport/serialport.go
package serialport

import (
	"time"

	"github.com/goburrow/serial"

	"github.com/crslab/memtest/internal/device"
)

// Opener returns a device.OpenFunc backed by a real serial port.
// readTimeout bounds every single-byte read the link performs; the link's
// own handshake deadline is layered on top.
func Opener(readTimeout time.Duration) device.OpenFunc {
	return func(address string, baud int) (device.Port, error) {
		return serial.Open(&serial.Config{
			Address:  address,
			BaudRate: baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  readTimeout,
		})
	}
}
