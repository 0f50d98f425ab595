// internal/sink/file.go
package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crslab/memtest/internal/sample"
)

// File accumulates result blocks in emission order and persists them as
// the flat text layout the bench has always produced: header lines
// verbatim, one tab-separated line per sample, a blank line between
// blocks.
type File struct {
	mu     sync.Mutex
	blocks []sample.ResultBlock
}

func NewFile() *File {
	return &File{}
}

// Emit appends a block. Emission order is array-address order and is
// preserved through Save.
func (f *File) Emit(block sample.ResultBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, block)
	return nil
}

// Blocks returns the accumulated blocks.
func (f *File) Blocks() []sample.ResultBlock {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sample.ResultBlock, len(f.blocks))
	copy(out, f.blocks)
	return out
}

// Len reports the number of accumulated blocks.
func (f *File) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}

// Save writes the accumulated blocks to dir/name, creating dir if needed,
// and returns the full path.
func (f *File) Save(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sink: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("sink: create %s: %w", path, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	for _, block := range f.Blocks() {
		for _, entry := range block.Entries() {
			switch entry.Kind {
			case sample.EntryHeader:
				for _, line := range entry.Header {
					fmt.Fprintf(w, "%s\n", line)
				}
			case sample.EntrySamples:
				for _, s := range entry.Samples {
					fmt.Fprintf(w, "%.1f\t%.5f\n", s.TimeMs, s.VoltageV)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("sink: write %s: %w", path, err)
	}
	return path, nil
}
