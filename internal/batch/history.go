package batch

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistorySize = 100

// Record is a dispatched batch kept for operator diagnostics.
type Record struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Pipeline   string    `json:"pipeline"`
	Events     int       `json:"events"`
	Partitions int       `json:"partitions"`
	ReceivedAt time.Time `json:"received_at"`
	Duration   string    `json:"duration"`
	Report     Report    `json:"report"`
}

// History keeps the most recent batch records in memory.
type History struct {
	mu      sync.Mutex
	size    int
	records []Record
}

// NewHistory creates a History holding at most size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size, records: make([]Record, 0, size)}
}

// Add stores rec, assigning an id and receive time when missing, and evicts
// the oldest record once the history is full.
func (h *History) Add(rec Record) Record {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == h.size {
		copy(h.records, h.records[1:])
		h.records = h.records[:h.size-1]
	}
	h.records = append(h.records, rec)
	return rec
}

// List returns the stored records, newest first.
func (h *History) List() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	items := make([]Record, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0; i-- {
		items = append(items, h.records[i])
	}
	return items
}

// Get returns the record with the given id.
func (h *History) Get(id string) (Record, bool) {
	id = strings.TrimSpace(id)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}
