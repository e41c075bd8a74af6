// Package history keeps a bounded, deduplicated record of recently completed checks.
package history

import (
	"encoding/json"
	"sync"

	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// Key is the namespaced key the history lives under.
	Key = "antiplagiat_history"
	// Capacity is the maximum number of items kept.
	Capacity = 10
	// PreviewLength bounds the preview excerpt, in characters.
	PreviewLength = 120
)

// Backend is a key-value persistence boundary.
type Backend interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Store is the check history. All methods are safe for concurrent use and never fail:
// an unavailable backend or corrupt data reads as an empty history.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// NewStore creates a store over backend. A nil backend makes every operation a no-op.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Record puts item at the front, removing any earlier entry with the same task id
// and evicting the oldest entries beyond Capacity. A pending preview for the task is dropped.
func (s *Store) Record(item models.HistoryItem) {
	if s.backend == nil || item.TaskID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readLocked()
	next := make([]models.HistoryItem, 0, Capacity)
	next = append(next, item)
	for _, h := range current {
		if len(next) == Capacity {
			break
		}
		if h.TaskID != item.TaskID {
			next = append(next, h)
		}
	}
	s.writeLocked(next)
	s.forgetPendingLocked(item.TaskID)
}

// List returns the history, most recent first.
func (s *Store) List() []models.HistoryItem {
	if s.backend == nil {
		return []models.HistoryItem{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get returns the entry for taskID if present.
func (s *Store) Get(taskID string) (models.HistoryItem, bool) {
	for _, h := range s.List() {
		if h.TaskID == taskID {
			return h, true
		}
	}
	return models.HistoryItem{}, false
}

// Remove drops the entry and any pending preview for taskID.
func (s *Store) Remove(taskID string) {
	if s.backend == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readLocked()
	next := current[:0]
	for _, h := range current {
		if h.TaskID != taskID {
			next = append(next, h)
		}
	}
	if len(next) != len(current) {
		s.writeLocked(next)
	}
	s.forgetPendingLocked(taskID)
}

// Clear removes the whole history, pending previews included.
func (s *Store) Clear() {
	if s.backend == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{Key, PendingKey} {
		if err := s.backend.Remove(key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("History clear dropped")
		}
	}
}

func (s *Store) readLocked() []models.HistoryItem {
	raw, ok, err := s.backend.Get(Key)
	if err != nil {
		log.Debug().Err(err).Msg("History unavailable, treating as empty")
		return []models.HistoryItem{}
	}
	if !ok || raw == "" {
		return []models.HistoryItem{}
	}

	var items []models.HistoryItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Debug().Err(err).Msg("History corrupt, treating as empty")
		return []models.HistoryItem{}
	}

	// entries written by other tools may break the invariants; restore them on read
	seen := make(map[string]bool, len(items))
	out := make([]models.HistoryItem, 0, len(items))
	for _, h := range items {
		if h.TaskID == "" || seen[h.TaskID] {
			continue
		}
		seen[h.TaskID] = true
		out = append(out, h)
		if len(out) == Capacity {
			break
		}
	}
	return out
}

func (s *Store) writeLocked(items []models.HistoryItem) {
	data, err := json.Marshal(items)
	if err != nil {
		log.Debug().Err(err).Msg("History encode failed, write dropped")
		return
	}
	if err := s.backend.Set(Key, string(data)); err != nil {
		log.Debug().Err(err).Msg("History write dropped")
	}
}

// Preview returns at most PreviewLength characters of text, with an ellipsis when cut.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return string(runes)
	}
	return string(runes[:PreviewLength]) + "..."
}
