// Package store keeps the ordered collection of image entries and owns the
// lifecycle of their preview handles.
//
// Every change of an entry's current bytes releases its previous preview
// handle and acquires a new one while the store lock is held, so readers never
// observe an entry whose handle does not match its bytes.
package store

import (
	"sync"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/preview"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AddResult reports how many blobs were accepted and rejected by Add.
type AddResult struct {
	Accepted int
	Rejected int
	IDs      []string
}

// MergeReport reports the outcome of MergeResults.
type MergeReport struct {
	Merged    int
	Fallbacks int
	Unmatched int
	IDs       []string
}

// Store is the canonical ordered collection of entries.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	issued   map[string]struct{}
	previews *preview.Registry
	logger   *logrus.Logger
}

// New creates an empty store that acquires previews from the registry.
func New(previews *preview.Registry, logger *logrus.Logger) *Store {
	return &Store{
		issued:   make(map[string]struct{}),
		previews: previews,
		logger:   logger,
	}
}

// Add appends one Pending entry per image blob, in input order. Non-image
// blobs are counted as rejected and never inserted.
func (s *Store) Add(blobs []Blob) AddResult {
	var res AddResult
	accepted := make([]Blob, 0, len(blobs))
	for _, b := range blobs {
		mimeType := DetectMimeType(b)
		if !IsImageType(mimeType) {
			res.Rejected++
			s.logger.WithError(ErrNotImage).WithFields(logrus.Fields{"file": b.Name, "mime_type": mimeType}).Warn("Rejected file")
			continue
		}
		b.MimeType = mimeType
		accepted = append(accepted, b)
	}
	if len(accepted) == 0 {
		return res
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range accepted {
		id := s.newID()
		s.entries = append(s.entries, Entry{
			ID:       id,
			Original: b,
			Current:  b,
			Preview:  s.previews.Acquire(b.Data, b.MimeType),
			Ratio:    1,
			Status:   StatusPending,
		})
		s.issued[id] = struct{}{}
		res.IDs = append(res.IDs, id)
		res.Accepted++
		s.logger.WithFields(logrus.Fields{"entry_id": id, "file": b.Name, "bytes": b.Size()}).Debug("Image added")
	}
	return res
}

// newID returns an id this store has never issued. Callers hold mu.
func (s *Store) newID() string {
	for {
		id := uuid.NewString()
		if _, taken := s.issued[id]; !taken {
			return id
		}
	}
}

// Remove deletes the entry and releases its preview. An unknown id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.previews.Release(s.entries[idx].Preview)
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.logger.WithField("entry_id", id).Debug("Image removed")
	return true
}

// Clear releases every preview and empties the store. It returns the number
// of entries removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	for _, e := range s.entries {
		s.previews.Release(e.Preview)
	}
	s.entries = nil
	return n
}

// Close disposes every entry. It is safe to call more than once.
func (s *Store) Close() {
	s.Clear()
}

// MarkCompressing moves Pending and Failed entries to Compressing and returns
// their snapshots. Entries already Compressing or Compressed are skipped, so
// at most one attempt is in flight per entry.
func (s *Store) MarkCompressing(ids []string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		idx := s.indexOf(id)
		if idx < 0 {
			continue
		}
		e := &s.entries[idx]
		if e.Status != StatusPending && e.Status != StatusFailed {
			continue
		}
		e.Status = StatusCompressing
		e.Ratio = 1
		out = append(out, *e)
	}
	return out
}

// MergeResults applies compression results to the entries they were
// dispatched for, replacing each in place. Results whose entry is gone or
// already Compressed are ignored.
func (s *Store) MergeResults(results []compressor.CompressionResult) MergeReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep MergeReport
	for _, r := range results {
		idx := s.indexOf(r.EntryID)
		if idx < 0 || s.entries[idx].Status == StatusCompressed {
			rep.Unmatched++
			s.logger.WithField("entry_id", r.EntryID).Debug("Ignoring unmatched compression result")
			continue
		}

		e := &s.entries[idx]
		mimeType := r.MimeType
		if mimeType == "" {
			mimeType = e.Original.MimeType
		}
		current := Blob{Name: e.Original.Name, MimeType: mimeType, Data: r.Data}

		old := e.Preview
		e.Preview = s.previews.Acquire(current.Data, current.MimeType)
		s.previews.Release(old)

		e.Current = current
		e.Status = StatusCompressed
		e.Fallback = r.Fallback
		e.Ratio = r.Ratio
		if r.Fallback || e.Ratio < 0 {
			e.Ratio = 1
		}

		rep.Merged++
		rep.IDs = append(rep.IDs, e.ID)
		if r.Fallback {
			rep.Fallbacks++
		}
	}
	return rep
}

// Fail marks entries still Compressing as Failed, keeping their bytes. It is
// used when a dispatched entry received no result.
func (s *Store) Fail(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		idx := s.indexOf(id)
		if idx < 0 || s.entries[idx].Status != StatusCompressing {
			continue
		}
		s.entries[idx].Status = StatusFailed
		s.entries[idx].Ratio = 1
		n++
	}
	return n
}

// Get returns a snapshot of the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// Snapshot returns a copy of every entry in order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Pending returns snapshots of every entry that is not Compressed.
func (s *Store) Pending() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Status != StatusCompressed {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) indexOf(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}
