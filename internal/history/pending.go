package history

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

const (
	// PendingKey holds previews of submitted texts whose reports are not recorded yet.
	PendingKey = "antiplagiat_pending"
	// PendingCapacity bounds the pending previews kept.
	PendingCapacity = 50
)

type pendingPreview struct {
	TaskID  string `json:"task_id"`
	Preview string `json:"preview"`
}

// RememberPreview keeps the preview of text for taskID until its report is recorded,
// so a later hand-off fetch can still show where the check came from.
func (s *Store) RememberPreview(taskID, text string) {
	if s.backend == nil || taskID == "" || text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readPendingLocked()
	next := make([]pendingPreview, 0, PendingCapacity)
	next = append(next, pendingPreview{TaskID: taskID, Preview: Preview(text)})
	for _, p := range current {
		if len(next) == PendingCapacity {
			break
		}
		if p.TaskID != taskID {
			next = append(next, p)
		}
	}
	s.writePendingLocked(next)
}

// PendingPreview returns the remembered preview for taskID, or "".
func (s *Store) PendingPreview(taskID string) string {
	if s.backend == nil {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.readPendingLocked() {
		if p.TaskID == taskID {
			return p.Preview
		}
	}
	return ""
}

func (s *Store) forgetPendingLocked(taskID string) {
	current := s.readPendingLocked()
	next := current[:0]
	for _, p := range current {
		if p.TaskID != taskID {
			next = append(next, p)
		}
	}
	if len(next) != len(current) {
		s.writePendingLocked(next)
	}
}

func (s *Store) readPendingLocked() []pendingPreview {
	raw, ok, err := s.backend.Get(PendingKey)
	if err != nil || !ok || raw == "" {
		return nil
	}
	var items []pendingPreview
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Debug().Err(err).Msg("Pending previews corrupt, treating as empty")
		return nil
	}
	return items
}

func (s *Store) writePendingLocked(items []pendingPreview) {
	if len(items) == 0 {
		if err := s.backend.Remove(PendingKey); err != nil {
			log.Debug().Err(err).Msg("Pending preview write dropped")
		}
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		log.Debug().Err(err).Msg("Pending preview encode failed, write dropped")
		return
	}
	if err := s.backend.Set(PendingKey, string(data)); err != nil {
		log.Debug().Err(err).Msg("Pending preview write dropped")
	}
}
