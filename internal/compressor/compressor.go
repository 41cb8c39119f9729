package compressor

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidOptions is returned when Compress is called with options it cannot honour.
var ErrInvalidOptions = errors.New("invalid compression options")

// Options defines parameters for one compression run.
type Options struct {
	TargetQuality float64 // 0..1
	MaxDimension  int     // pixels, longest side
	SizeBudgetMB  float64 // 0 means no budget
}

// Item is a snapshot of one entry handed to the compressor.
type Item struct {
	ID         string
	Name       string
	MimeType   string
	Data       []byte
	Compressed bool
}

// CompressionResult describes the result of compressing a single item.
type CompressionResult struct {
	EntryID        string
	Name           string
	MimeType       string
	Data           []byte
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Fallback       bool
	StartedAt      time.Time
	FinishedAt     time.Time
	Error          error
}

// ProgressFunc is invoked once per finished item with a monotonic done counter.
type ProgressFunc func(done, total int)

// Transformer is the image transform primitive used by the compressor.
type Transformer interface {
	// Transform returns the re-encoded bytes and their mime type.
	Transform(ctx context.Context, item Item, opts Options) ([]byte, string, error)
}

// Compressor defines the interface for batch image compression.
type Compressor interface {
	// Compress processes every item that is not already compressed and returns
	// exactly one result for each of them. Per-item failures fall back to the
	// original bytes and never abort the batch.
	Compress(ctx context.Context, items []Item, opts Options, onProgress ProgressFunc) ([]CompressionResult, error)
}
