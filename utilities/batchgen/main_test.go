package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

func TestParseSeedRange(t *testing.T) {
	tests := []struct {
		in          string
		first, last int64
		wantErr     bool
	}{
		{"5", 5, 5, false},
		{"1-25", 1, 25, false},
		{" 3 - 4 ", 3, 4, false},
		{"0-0", 0, 0, false},
		{"9-2", 0, 0, true},
		{"a-2", 0, 0, true},
		{"1-b", 0, 0, true},
		{"x", 0, 0, true},
	}
	for _, tt := range tests {
		first, last, err := parseSeedRange(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestBatchGeneratorWritesOneFilePerSeed(t *testing.T) {
	dir := t.TempDir()
	opts := wfc.DefaultOptions(0)
	opts.TotalCells = 16
	batch, err := NewBatchGenerator(opts, false, dir)
	require.NoError(t, err)

	for seed := int64(1); seed <= 3; seed++ {
		status, err := batch.Generate(context.Background(), seed)
		require.NoError(t, err)
		assert.NotEmpty(t, status)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	doc, err := export.ReadRunYAMLFile(filepath.Join(dir, "run_2.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Seed)
	assert.Equal(t, 4, doc.Width)
}
