// Package session coordinates one batch-compression session. A Session is the
// only writer of compression results into its store: transforms run in the
// compressor's goroutines and hand results back, and the Session merges them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"photo-compressor-go/internal/archive"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/preview"
	"photo-compressor-go/internal/settings"
	"photo-compressor-go/internal/statistics"
	"photo-compressor-go/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned when a compress-and-download run is already in progress.
	ErrBusy = errors.New("compression already in progress")
	// ErrNothingToCompress is returned when every entry is already compressed.
	ErrNothingToCompress = errors.New("no images to compress")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Outcome summarises one compress-and-download run.
type Outcome struct {
	Dispatched int
	Compressed int
	Fallbacks  int
	Unmatched  int
	Archive    *archive.Archive
}

// Session owns the store, settings and previews of one user session.
type Session struct {
	store      *store.Store
	previews   *preview.Registry
	settings   *settings.Provider
	compressor compressor.Compressor
	archiver   *archive.Builder
	stats      *statistics.Statistics
	logger     *logrus.Logger

	listeners listeners
	running   atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool
}

// Config wires a Session's collaborators. Nil fields get defaults.
type Config struct {
	Settings   *settings.Provider
	Compressor compressor.Compressor
	Archiver   *archive.Builder
	Stats      *statistics.Statistics
	Logger     *logrus.Logger
}

// New creates a Session.
func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	if cfg.Settings == nil {
		cfg.Settings = settings.Default()
	}
	if cfg.Compressor == nil {
		cfg.Compressor = compressor.NewDefaultCompressor(compressor.Config{}, compressor.NewImagingTransformer(log), log)
	}
	if cfg.Archiver == nil {
		cfg.Archiver = archive.NewBuilder("", log)
	}
	if cfg.Stats == nil {
		cfg.Stats = statistics.NewStatistics()
	}

	previews := preview.NewRegistry(log)
	return &Session{
		store:      store.New(previews, log),
		previews:   previews,
		settings:   cfg.Settings,
		compressor: cfg.Compressor,
		archiver:   cfg.Archiver,
		stats:      cfg.Stats,
		logger:     log,
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	return s.listeners.add(l)
}

func (s *Session) emit(ev Event) {
	s.listeners.emit(ev)
}

// Add ingests blobs, creating one Pending entry per image.
func (s *Session) Add(ctx context.Context, blobs []store.Blob) (store.AddResult, error) {
	if s.closed.Load() {
		return store.AddResult{}, ErrClosed
	}
	res := s.store.Add(blobs)

	if res.Accepted > 0 {
		s.stats.AddFilesAdded(ctx, res.Accepted)
		s.emit(Event{Type: EventFilesAdded, Count: res.Accepted})
	}
	if res.Rejected > 0 {
		s.stats.AddFilesRejected(ctx, res.Rejected)
		s.emit(Event{Type: EventFilesRejected, Count: res.Rejected})
	}
	s.logger.WithFields(logrus.Fields{
		"accepted": res.Accepted,
		"rejected": res.Rejected,
	}).Info("Files added")
	return res, nil
}

// Remove deletes one entry. Unknown ids are ignored.
func (s *Session) Remove(ctx context.Context, id string) bool {
	if !s.store.Remove(id) {
		return false
	}
	s.stats.AddFilesRemoved(ctx, 1)
	s.emit(Event{Type: EventImageRemoved, EntryID: id})
	return true
}

// Clear removes every entry.
func (s *Session) Clear(ctx context.Context) int {
	n := s.store.Clear()
	s.stats.AddFilesRemoved(ctx, n)
	s.emit(Event{Type: EventImagesCleared, Count: n})
	s.logger.WithField("count", n).Info("Images cleared")
	return n
}

// SetQuality updates the quality used by the next run.
func (s *Session) SetQuality(q float64) error {
	return s.settings.SetQuality(q)
}

// SetMaxDimension updates the max dimension used by the next run.
func (s *Session) SetMaxDimension(px int) error {
	return s.settings.SetMaxDimension(px)
}

// Settings returns the session's settings provider.
func (s *Session) Settings() *settings.Provider {
	return s.settings
}

// Entries returns a snapshot of every entry in display order.
func (s *Session) Entries() []store.Entry {
	return s.store.Snapshot()
}

// Entry returns a snapshot of one entry.
func (s *Session) Entry(id string) (store.Entry, bool) {
	return s.store.Get(id)
}

// Preview returns the bytes behind a live preview handle.
func (s *Session) Preview(h preview.Handle) ([]byte, string, bool) {
	return s.previews.Get(h)
}

// Previews exposes the registry for inspection.
func (s *Session) Previews() *preview.Registry {
	return s.previews
}

// Stats returns the session statistics.
func (s *Session) Stats() *statistics.Statistics {
	return s.stats
}

// Running reports whether a compress-and-download run is in progress.
func (s *Session) Running() bool {
	return s.running.Load()
}

// CompressAndDownload compresses every entry that is not yet compressed,
// merges the results and packages this run's entries into one archive.
// Per-image failures are reported as compression_error events and do not fail
// the run; an archive failure fails the run but keeps the merged results.
func (s *Session) CompressAndDownload(ctx context.Context) (Outcome, error) {
	var out Outcome
	if s.closed.Load() {
		return out, ErrClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return out, ErrBusy
	}
	defer s.running.Store(false)

	start := time.Now()
	log := logger.WithOperation(s.logger, "compress_and_download")

	pending := s.store.Pending()
	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	dispatched := s.store.MarkCompressing(ids)
	if len(dispatched) == 0 {
		s.emit(Event{Type: EventNothingToCompress})
		return out, ErrNothingToCompress
	}
	out.Dispatched = len(dispatched)
	s.stats.IncrementCompressionRuns(ctx)
	s.emit(Event{Type: EventCompressionStarted, Count: len(dispatched)})
	log.WithField("count", len(dispatched)).Info("Compression started")

	items := make([]compressor.Item, len(dispatched))
	dispatchedIDs := make([]string, len(dispatched))
	for i, e := range dispatched {
		items[i] = compressor.Item{
			ID:       e.ID,
			Name:     e.Original.Name,
			MimeType: e.Original.MimeType,
			Data:     e.Original.Data,
		}
		dispatchedIDs[i] = e.ID
	}

	results, err := s.compressor.Compress(ctx, items, s.settings.Options(), func(done, total int) {
		s.emit(Event{Type: EventCompressionProgress, Done: done, Total: total})
	})
	if err != nil {
		s.store.Fail(dispatchedIDs)
		s.stats.AddError("", "compress", err.Error())
		return out, fmt.Errorf("compress: %w", err)
	}

	for _, r := range results {
		s.stats.AddBytes(ctx, r.OriginalSize, r.CompressedSize)
		if r.Fallback {
			msg := "compression failed"
			if r.Error != nil {
				msg = r.Error.Error()
			}
			s.stats.AddError(r.EntryID, "compress", msg)
			logger.WithEntry(s.logger, r.EntryID, r.Name).Warn("Kept original image: " + msg)
			s.emit(Event{Type: EventCompressionError, EntryID: r.EntryID, Error: msg})
		}
	}

	rep := s.store.MergeResults(results)
	if failed := s.store.Fail(dispatchedIDs); failed > 0 {
		log.WithField("count", failed).Warn("Images received no compression result")
	}
	out.Compressed = rep.Merged
	out.Fallbacks = rep.Fallbacks
	out.Unmatched = rep.Unmatched
	s.stats.AddImagesCompressed(ctx, rep.Merged)
	s.stats.AddFallbacks(ctx, rep.Fallbacks)
	s.stats.SetLastRunTime(time.Since(start))
	s.emit(Event{Type: EventCompressionComplete, Count: rep.Merged})
	log.WithFields(logrus.Fields{
		"compressed": rep.Merged,
		"fallbacks":  rep.Fallbacks,
		"unmatched":  rep.Unmatched,
	}).Info("Compression complete")

	arc, err := s.archiver.Build(s.runEntries(rep.IDs))
	if err != nil {
		s.stats.IncrementArchiveErrors(ctx)
		s.stats.AddError("", "archive", err.Error())
		s.emit(Event{Type: EventArchiveError, Error: err.Error()})
		log.WithError(err).Error("Archive failed")
		return out, err
	}

	out.Archive = arc
	s.stats.IncrementArchivesBuilt(ctx)
	s.emit(Event{Type: EventArchiveReady, Bytes: len(arc.Data), Filename: arc.Filename})
	return out, nil
}

// runEntries returns current snapshots of the given entries in store order.
func (s *Session) runEntries(ids []string) []store.Entry {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []store.Entry
	for _, e := range s.store.Snapshot() {
		if _, ok := want[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Close releases every entry and preview. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.store.Close()
		s.logger.WithField("live_previews", s.previews.Live()).Debug("Session closed")
	})
}
