package apiclient

import (
	"sort"
	"sync"
)

// historyLimit caps how many resolved records the client keeps locally.
const historyLimit = 10

// history holds the most recent terminal records, one entry per id.
type history struct {
	mu      sync.Mutex
	records []Record
}

// merge inserts rec, replacing any entry with the same id instead of
// duplicating it, and evicts the oldest entries beyond the cap.
func (h *history) merge(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replaced := false
	for i := range h.records {
		if h.records[i].ID == rec.ID {
			h.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		h.records = append(h.records, rec)
	}

	sort.SliceStable(h.records, func(i, j int) bool {
		return h.records[i].CreatedAt.After(h.records[j].CreatedAt)
	})
	if len(h.records) > historyLimit {
		h.records = h.records[:historyLimit]
	}
}

func (h *history) snapshot() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}
