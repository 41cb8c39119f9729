package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStatistics()

	s.AddFilesAdded(ctx, 5)
	s.AddFilesRejected(ctx, 2)
	s.IncrementCompressionRuns(ctx)
	s.AddImagesCompressed(ctx, 5)
	s.AddFallbacks(ctx, 1)
	s.AddBytes(ctx, 4000, 1000)
	s.IncrementArchivesBuilt(ctx)
	s.SetLastRunTime(1500 * time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, int64(5), snap["files_added"])
	assert.Equal(t, int64(2), snap["files_rejected"])
	assert.Equal(t, int64(1), snap["compression_runs"])
	assert.Equal(t, int64(1), snap["fallbacks"])
	assert.Equal(t, int64(1), snap["archives_built"])
	assert.Equal(t, int64(1500), snap["last_run_ms"])
	assert.InDelta(t, 75.0, s.SavedPercentage(), 1e-9)
}

func TestSavedPercentageWithoutInput(t *testing.T) {
	assert.Zero(t, NewStatistics().SavedPercentage())
}

func TestSummaries(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, "No errors occurred during processing", s.GetErrorSummary())

	s.AddError("id-1", "compress", "decode failed")
	assert.Contains(t, s.GetErrorSummary(), "Errors (1 total)")
	assert.Contains(t, s.GetErrorSummary(), "decode failed")

	s.AddBytes(context.Background(), 2048, 1024)
	summary := s.GetSummary()
	assert.Contains(t, summary, "Before: 2.0 KB")
	assert.Contains(t, summary, "Saved: 50.0%")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "3.0 MB", formatBytes(3*1024*1024))
}
