// internal/sink/file_test.go
package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crslab/memtest/internal/sample"
)

func TestFile_SaveLayout(t *testing.T) {
	f := NewFile()

	require.NoError(t, f.Emit(sample.ResultBlock{
		Header: []string{"Program: 1 camread", "Address: WL 0   BL 0"},
		Samples: []sample.Sample{
			{TimeMs: 0, VoltageV: 2.5},
			{TimeMs: 0.5, VoltageV: 5},
		},
	}))
	require.NoError(t, f.Emit(sample.ResultBlock{
		Header: []string{"Program: 1 camread", "Address: WL 0   BL 1"},
	}))

	dir := filepath.Join(t.TempDir(), "results")
	path, err := f.Save(dir, "sample_1.txt")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "Program: 1 camread\n" +
		"Address: WL 0   BL 0\n" +
		"0.0\t2.50000\n" +
		"0.5\t5.00000\n" +
		"\n" +
		"Program: 1 camread\n" +
		"Address: WL 0   BL 1\n" +
		"\n"
	assert.Equal(t, want, string(data))
}

func TestFile_EmissionOrderPreserved(t *testing.T) {
	f := NewFile()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.Emit(sample.ResultBlock{
			Header: []string{string(rune('a' + i))},
		}))
	}

	blocks := f.Blocks()
	require.Len(t, blocks, 5)
	for i, b := range blocks {
		assert.Equal(t, string(rune('a'+i)), b.Header[0])
	}
	assert.Equal(t, 5, f.Len())
}

func TestFile_CreatesDirectory(t *testing.T) {
	f := NewFile()
	require.NoError(t, f.Emit(sample.ResultBlock{Header: []string{"h"}}))

	dir := filepath.Join(t.TempDir(), "nested", "results")
	_, err := f.Save(dir, "run_1.txt")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "run_1.txt"))
	assert.NoError(t, err)
}
