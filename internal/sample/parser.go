// internal/sample/parser.go
package sample

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoData means the controller returned an empty payload. Distinct from
// a valid response that decodes to zero samples.
var ErrNoData = errors.New("sample: no data")

// The controller echoes its own setup text before the sample lines.
// Exactly this many leading lines are discarded. Locked by the firmware.
const headerEchoLines = 3

// Parse decodes a raw response buffer into an ordered sample sequence.
//
// The buffer is split into lines; the first three lines are controller
// echo and dropped. Every remaining line must be "<index>,<rawADC>"; lines
// that are not are skipped without error, because the firmware interleaves
// verbose diagnostics with the data.
func Parse(buf []byte, timeStepMs, voltageRatio float64) ([]Sample, error) {
	text := strings.TrimSpace(string(buf))
	if text == "" {
		return nil, ErrNoData
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= headerEchoLines {
		return nil, nil
	}

	var out []Sample
	for _, line := range lines[headerEchoLines:] {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) != 2 {
			continue
		}

		index, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			continue
		}
		raw, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}

		out = append(out, Sample{
			TimeMs:   index * timeStepMs,
			VoltageV: raw * voltageRatio,
		})
	}

	return out, nil
}
