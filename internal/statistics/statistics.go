package statistics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "photo-compressor"

// Statistics contains all statistics for one compression session.
type Statistics struct {
	FilesAdded       int64
	FilesRejected    int64
	FilesRemoved     int64
	CompressionRuns  int64
	ImagesCompressed int64
	Fallbacks        int64
	ArchivesBuilt    int64
	ArchiveErrors    int64
	BytesIn          int64
	BytesOut         int64

	StartTime   time.Time
	LastRunTime time.Duration

	Errors []StatError

	mutex sync.RWMutex

	counters map[string]metric.Int64Counter
}

// StatError represents an error that occurred during processing.
type StatError struct {
	EntryID   string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance whose counters are mirrored
// to OpenTelemetry instruments from the global meter provider.
func NewStatistics() *Statistics {
	s := &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
		counters:  make(map[string]metric.Int64Counter),
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	for _, name := range []string{
		"files_added_total",
		"files_rejected_total",
		"files_removed_total",
		"compression_runs_total",
		"images_compressed_total",
		"compression_fallbacks_total",
		"archives_built_total",
		"archive_errors_total",
		"bytes_in_total",
		"bytes_out_total",
	} {
		if c, err := meter.Int64Counter(name); err == nil {
			s.counters[name] = c
		}
	}
	return s
}

func (s *Statistics) add(ctx context.Context, field *int64, name string, n int64) {
	atomic.AddInt64(field, n)
	if c, ok := s.counters[name]; ok {
		c.Add(ctx, n)
	}
}

// AddFilesAdded increases the count of accepted files.
func (s *Statistics) AddFilesAdded(ctx context.Context, n int) {
	s.add(ctx, &s.FilesAdded, "files_added_total", int64(n))
}

// AddFilesRejected increases the count of rejected non-image files.
func (s *Statistics) AddFilesRejected(ctx context.Context, n int) {
	s.add(ctx, &s.FilesRejected, "files_rejected_total", int64(n))
}

// AddFilesRemoved increases the count of removed entries.
func (s *Statistics) AddFilesRemoved(ctx context.Context, n int) {
	s.add(ctx, &s.FilesRemoved, "files_removed_total", int64(n))
}

// IncrementCompressionRuns increases the count of compress-and-download runs by 1.
func (s *Statistics) IncrementCompressionRuns(ctx context.Context) {
	s.add(ctx, &s.CompressionRuns, "compression_runs_total", 1)
}

// AddImagesCompressed increases the count of merged compression results.
func (s *Statistics) AddImagesCompressed(ctx context.Context, n int) {
	s.add(ctx, &s.ImagesCompressed, "images_compressed_total", int64(n))
}

// AddFallbacks increases the count of results that kept the original bytes.
func (s *Statistics) AddFallbacks(ctx context.Context, n int) {
	s.add(ctx, &s.Fallbacks, "compression_fallbacks_total", int64(n))
}

// IncrementArchivesBuilt increases the count of built archives by 1.
func (s *Statistics) IncrementArchivesBuilt(ctx context.Context) {
	s.add(ctx, &s.ArchivesBuilt, "archives_built_total", 1)
}

// IncrementArchiveErrors increases the count of failed archive builds by 1.
func (s *Statistics) IncrementArchiveErrors(ctx context.Context) {
	s.add(ctx, &s.ArchiveErrors, "archive_errors_total", 1)
}

// AddBytes records payload sizes before and after compression.
func (s *Statistics) AddBytes(ctx context.Context, in, out int64) {
	s.add(ctx, &s.BytesIn, "bytes_in_total", in)
	s.add(ctx, &s.BytesOut, "bytes_out_total", out)
}

// SetLastRunTime records how long the last compression run took.
func (s *Statistics) SetLastRunTime(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.LastRunTime = d
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(entryID, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		EntryID:   entryID,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// SavedPercentage returns the share of input bytes removed by compression.
func (s *Statistics) SavedPercentage() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	if in == 0 {
		return 0
	}
	return float64(in-atomic.LoadInt64(&s.BytesOut)) * 100 / float64(in)
}

// Snapshot returns the counters as a map suitable for JSON output.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	lastRun := s.LastRunTime
	errs := len(s.Errors)
	s.mutex.RUnlock()

	return map[string]interface{}{
		"files_added":       atomic.LoadInt64(&s.FilesAdded),
		"files_rejected":    atomic.LoadInt64(&s.FilesRejected),
		"files_removed":     atomic.LoadInt64(&s.FilesRemoved),
		"compression_runs":  atomic.LoadInt64(&s.CompressionRuns),
		"images_compressed": atomic.LoadInt64(&s.ImagesCompressed),
		"fallbacks":         atomic.LoadInt64(&s.Fallbacks),
		"archives_built":    atomic.LoadInt64(&s.ArchivesBuilt),
		"archive_errors":    atomic.LoadInt64(&s.ArchiveErrors),
		"bytes_in":          atomic.LoadInt64(&s.BytesIn),
		"bytes_out":         atomic.LoadInt64(&s.BytesOut),
		"saved_percentage":  s.SavedPercentage(),
		"last_run_ms":       lastRun.Milliseconds(),
		"errors":            errs,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	lastRun := s.LastRunTime
	s.mutex.RUnlock()

	return fmt.Sprintf(`Photo Compressor Statistics Summary:

Files:
		Added: %d
		Rejected: %d
		Removed: %d

Compression:
		Runs: %d
		Compressed: %d
		Kept Original: %d
		Last Run: %v

Size:
		Before: %s
		After: %s
		Saved: %.1f%%

Archives:
		Built: %d
		Errors: %d`,
		atomic.LoadInt64(&s.FilesAdded),
		atomic.LoadInt64(&s.FilesRejected),
		atomic.LoadInt64(&s.FilesRemoved),
		atomic.LoadInt64(&s.CompressionRuns),
		atomic.LoadInt64(&s.ImagesCompressed),
		atomic.LoadInt64(&s.Fallbacks),
		lastRun,
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.SavedPercentage(),
		atomic.LoadInt64(&s.ArchivesBuilt),
		atomic.LoadInt64(&s.ArchiveErrors))
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.EntryID,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
