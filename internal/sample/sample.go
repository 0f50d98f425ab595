// internal/sample/sample.go
package sample

// Controller ADC scaling: 5 V reference over a 10-bit converter,
// one sample every 0.5 ms.
const (
	DefaultTimeStepMs   = 0.5
	DefaultVoltageRatio = 5.0 / 1023
)

// Sample is one decoded ADC point.
type Sample struct {
	TimeMs   float64
	VoltageV float64
}

// ResultBlock is the output of one completed program: the request header
// followed by the decoded sample trace. Blocks are ordered; the order is
// the array-address sweep order.
type ResultBlock struct {
	Header  []string
	Samples []Sample
}

// EntryKind tags a ResultEntry.
type EntryKind int

const (
	EntryHeader EntryKind = iota + 1
	EntrySamples
)

// ResultEntry is the tagged view of a block part, so consumers never
// probe element types to tell header text from sample data.
type ResultEntry struct {
	Kind    EntryKind
	Header  []string
	Samples []Sample
}

// Entries flattens a block into its tagged parts, header first.
func (b ResultBlock) Entries() []ResultEntry {
	return []ResultEntry{
		{Kind: EntryHeader, Header: b.Header},
		{Kind: EntrySamples, Samples: b.Samples},
	}
}
