package compressor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Scheduling selects how the compressor bounds concurrent transforms.
type Scheduling string

const (
	// SchedulingGroups runs fixed-size groups and waits for each group to finish.
	SchedulingGroups Scheduling = "groups"
	// SchedulingPool keeps up to GroupSize transforms in flight continuously.
	SchedulingPool Scheduling = "pool"

	DefaultGroupSize = 4
)

// Config holds compressor tuning.
type Config struct {
	GroupSize  int
	Scheduling Scheduling
}

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	transformer Transformer
	groupSize   int
	scheduling  Scheduling
	logger      *logrus.Logger
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(cfg Config, transformer Transformer, logger *logrus.Logger) *DefaultCompressor {
	groupSize := cfg.GroupSize
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	scheduling := cfg.Scheduling
	if scheduling != SchedulingPool {
		scheduling = SchedulingGroups
	}
	return &DefaultCompressor{
		transformer: transformer,
		groupSize:   groupSize,
		scheduling:  scheduling,
		logger:      logger,
	}
}

// ParseScheduling converts a config string into a Scheduling value.
func ParseScheduling(s string) (Scheduling, error) {
	switch Scheduling(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchedulingGroups:
		return SchedulingGroups, nil
	case SchedulingPool:
		return SchedulingPool, nil
	default:
		return "", fmt.Errorf("unknown scheduling %q (valid: groups, pool)", s)
	}
}

// Compress performs image compression according to the provided options.
func (c *DefaultCompressor) Compress(ctx context.Context, items []Item, opts Options, onProgress ProgressFunc) ([]CompressionResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	todo := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Compressed {
			c.logger.WithField("entry_id", it.ID).Debug("Skipping already compressed image")
			continue
		}
		todo = append(todo, it)
	}
	if len(todo) == 0 {
		return []CompressionResult{}, nil
	}

	results := make([]CompressionResult, len(todo))
	report := newProgressReporter(len(todo), onProgress)

	c.logger.WithFields(logrus.Fields{
		"count":      len(todo),
		"group_size": c.groupSize,
		"scheduling": c.scheduling,
	}).Info("Starting compression")

	if c.scheduling == SchedulingPool {
		c.runPool(ctx, todo, opts, results, report)
	} else {
		c.runGroups(ctx, todo, opts, results, report)
	}

	return results, nil
}

func (c *DefaultCompressor) runGroups(ctx context.Context, todo []Item, opts Options, results []CompressionResult, report func()) {
	for start := 0; start < len(todo); start += c.groupSize {
		end := min(start+c.groupSize, len(todo))

		if err := ctx.Err(); err != nil {
			for i := start; i < end; i++ {
				results[i] = fallbackResult(todo[i], time.Now(), err)
				report()
			}
			continue
		}

		var wg sync.WaitGroup
		wg.Add(end - start)
		for i := start; i < end; i++ {
			go func(i int) {
				defer wg.Done()
				results[i] = c.compressOne(ctx, todo[i], opts)
				report()
			}(i)
		}
		wg.Wait()
	}
}

func (c *DefaultCompressor) runPool(ctx context.Context, todo []Item, opts Options, results []CompressionResult, report func()) {
	sem := semaphore.NewWeighted(int64(c.groupSize))
	var wg sync.WaitGroup
	for i := range todo {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = fallbackResult(todo[i], time.Now(), err)
			report()
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = c.compressOne(ctx, todo[i], opts)
			report()
		}(i)
	}
	wg.Wait()
}

// compressOne transforms a single item, falling back to its original bytes on failure.
func (c *DefaultCompressor) compressOne(ctx context.Context, item Item, opts Options) (res CompressionResult) {
	start := time.Now()
	log := c.logger.WithFields(logrus.Fields{"entry_id": item.ID, "file": item.Name})

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("transform panic: %v", r)
			log.WithError(err).Warn("Compression failed, keeping original")
			res = fallbackResult(item, start, err)
		}
	}()

	data, mimeType, err := c.transformer.Transform(ctx, item, opts)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("transform produced no data")
	}
	if err != nil {
		log.WithError(err).Warn("Compression failed, keeping original")
		return fallbackResult(item, start, err)
	}
	if mimeType == "" {
		mimeType = item.MimeType
	}

	res = CompressionResult{
		EntryID:        item.ID,
		Name:           item.Name,
		MimeType:       mimeType,
		Data:           data,
		OriginalSize:   int64(len(item.Data)),
		CompressedSize: int64(len(data)),
		Ratio:          Ratio(int64(len(item.Data)), int64(len(data))),
		StartedAt:      start,
		FinishedAt:     time.Now(),
	}
	log.WithFields(logrus.Fields{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"ratio":           res.Ratio,
	}).Debug("Image compressed")
	return res
}

// fallbackResult keeps the original bytes with a ratio of 1.
func fallbackResult(item Item, start time.Time, err error) CompressionResult {
	return CompressionResult{
		EntryID:        item.ID,
		Name:           item.Name,
		MimeType:       item.MimeType,
		Data:           item.Data,
		OriginalSize:   int64(len(item.Data)),
		CompressedSize: int64(len(item.Data)),
		Ratio:          1,
		Fallback:       true,
		StartedAt:      start,
		FinishedAt:     time.Now(),
		Error:          err,
	}
}

// Ratio returns originalSize/compressedSize. It is not clamped, so an
// enlarged payload yields a ratio below 1.
func Ratio(originalSize, compressedSize int64) float64 {
	if compressedSize <= 0 {
		return 1
	}
	return float64(originalSize) / float64(compressedSize)
}

// newProgressReporter serialises progress callbacks so the done counter is
// strictly increasing across goroutines.
func newProgressReporter(total int, onProgress ProgressFunc) func() {
	var mu sync.Mutex
	done := 0
	return func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if onProgress != nil {
			onProgress(done, total)
		}
	}
}

func validateOptions(opts Options) error {
	if opts.TargetQuality <= 0 || opts.TargetQuality > 1 {
		return fmt.Errorf("%w: target quality %.2f outside (0, 1]", ErrInvalidOptions, opts.TargetQuality)
	}
	if opts.MaxDimension <= 0 {
		return fmt.Errorf("%w: max dimension %d must be positive", ErrInvalidOptions, opts.MaxDimension)
	}
	if opts.SizeBudgetMB < 0 {
		return fmt.Errorf("%w: size budget %.2f must not be negative", ErrInvalidOptions, opts.SizeBudgetMB)
	}
	return nil
}
