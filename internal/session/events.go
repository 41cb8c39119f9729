package session

import "sync"

// EventType names an event emitted by a Session.
type EventType string

const (
	EventFilesAdded          EventType = "files_added"
	EventFilesRejected       EventType = "files_rejected"
	EventImageRemoved        EventType = "image_removed"
	EventImagesCleared       EventType = "images_cleared"
	EventNothingToCompress   EventType = "nothing_to_compress"
	EventCompressionStarted  EventType = "compression_started"
	EventCompressionProgress EventType = "compression_progress"
	EventCompressionComplete EventType = "compression_complete"
	EventCompressionError    EventType = "compression_error"
	EventArchiveReady        EventType = "archive_ready"
	EventArchiveError        EventType = "archive_error"
)

// Event is one notification for the host. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType `json:"type"`
	Count    int       `json:"count,omitempty"`
	Done     int       `json:"done,omitempty"`
	Total    int       `json:"total,omitempty"`
	EntryID  string    `json:"entry_id,omitempty"`
	Bytes    int       `json:"bytes,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Listener receives session events. Listeners are called synchronously on the
// goroutine that produced the event.
type Listener func(Event)

type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.RLock()
	fns := make([]Listener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
