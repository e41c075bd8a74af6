package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antiplagiat/textcheck/internal/models"
)

func item(id string) models.HistoryItem {
	return models.HistoryItem{
		TaskID:      id,
		Originality: 90,
		CreatedAt:   models.NewTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Preview:     "preview of " + id,
	}
}

func ids(items []models.HistoryItem) []string {
	out := make([]string, len(items))
	for i, h := range items {
		out[i] = h.TaskID
	}
	return out
}

func TestStore_RecordMostRecentFirst(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	s.Record(item("a"))
	s.Record(item("b"))
	s.Record(item("c"))

	got := ids(s.List())
	want := []string{"c", "b", "a"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("List = %v, want %v", got, want)
	}
}

func TestStore_EvictsOldestBeyondCapacity(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	for i := 1; i <= 11; i++ {
		s.Record(item(fmt.Sprintf("t%d", i)))
	}

	got := s.List()
	if len(got) != Capacity {
		t.Fatalf("expected %d items, got %d", Capacity, len(got))
	}
	if got[0].TaskID != "t11" {
		t.Fatalf("expected newest first, got %s", got[0].TaskID)
	}
	for _, h := range got {
		if h.TaskID == "t1" {
			t.Fatalf("oldest entry t1 should have been evicted")
		}
	}
}

func TestStore_RecordIsIdempotentPerTask(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	s.Record(item("a"))
	s.Record(item("b"))
	updated := item("a")
	updated.Originality = 42
	s.Record(updated)

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("re-recording must not grow the history, got %v", ids(got))
	}
	if got[0].TaskID != "a" || got[0].Originality != 42 {
		t.Fatalf("expected updated a moved to front, got %+v", got[0])
	}
}

func TestStore_FullHistoryReRecordKeepsCount(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	for i := 1; i <= Capacity; i++ {
		s.Record(item(fmt.Sprintf("t%d", i)))
	}
	s.Record(item("t1"))

	got := s.List()
	if len(got) != Capacity {
		t.Fatalf("expected %d, got %d", Capacity, len(got))
	}
	if got[0].TaskID != "t1" || got[Capacity-1].TaskID != "t2" {
		t.Fatalf("unexpected order %v", ids(got))
	}
}

func TestStore_ClearAndRemove(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	s.Record(item("a"))
	s.Record(item("b"))

	s.Remove("a")
	if got := ids(s.List()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("after Remove got %v", got)
	}
	if _, ok := s.Get("b"); !ok {
		t.Fatalf("expected Get to find b")
	}

	s.Clear()
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty after Clear, got %v", ids(got))
	}
}

func TestStore_NilBackendIsNoop(t *testing.T) {
	s := NewStore(nil)
	s.Record(item("a"))
	s.Clear()
	s.Remove("a")
	if got := s.List(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
}

func TestStore_CorruptDataReadsEmpty(t *testing.T) {
	b := NewMemoryBackend()
	_ = b.Set(Key, "{not json")
	s := NewStore(b)

	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", ids(got))
	}

	// a write after corruption starts over
	s.Record(item("fresh"))
	if got := ids(s.List()); len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("unexpected history %v", got)
	}
}

func TestStore_RepairsDuplicatesOnRead(t *testing.T) {
	b := NewMemoryBackend()
	_ = b.Set(Key, `[{"task_id":"a"},{"task_id":"a"},{"task_id":""},{"task_id":"b"}]`)
	s := NewStore(b)

	if got := ids(s.List()); strings.Join(got, ",") != "a,b" {
		t.Fatalf("unexpected history %v", got)
	}
}

type failingBackend struct{}

func (failingBackend) Get(string) (string, bool, error) { return "", false, errors.New("storage disabled") }
func (failingBackend) Set(string, string) error         { return errors.New("storage disabled") }
func (failingBackend) Remove(string) error              { return errors.New("storage disabled") }

func TestStore_BackendErrorsAbsorbed(t *testing.T) {
	s := NewStore(failingBackend{})
	s.Record(item("a"))
	s.Clear()
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", ids(got))
	}
}

func TestStore_ConcurrentRecordsAreNotLost(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	var wg sync.WaitGroup
	for i := 0; i < Capacity; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Record(item(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	if got := s.List(); len(got) != Capacity {
		t.Fatalf("expected %d items, lost updates: %v", Capacity, ids(got))
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	if _, ok, err := b.Get(Key); ok || err != nil {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	s := NewStore(b)
	s.Record(item("a"))

	// a second store over the same directory sees the data
	again, _ := NewFileBackend(dir)
	if got := ids(NewStore(again).List()); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected persisted history %v", got)
	}

	s.Clear()
	if _, err := os.Stat(filepath.Join(dir, Key+".json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected history file removed, stat err=%v", err)
	}
	if err := b.Remove(Key); err != nil {
		t.Fatalf("removing a missing key should not fail: %v", err)
	}
}

func TestFileBackend_RejectsUnsafeKeys(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	if err := b.Set("../escape", "x"); err == nil {
		t.Fatalf("expected error for path traversal key")
	}
}

func TestPreview(t *testing.T) {
	short := "короткий текст"
	if Preview(short) != short {
		t.Fatalf("short text must be kept")
	}

	long := strings.Repeat("я", PreviewLength+5)
	p := Preview(long)
	if !strings.HasSuffix(p, "...") {
		t.Fatalf("expected ellipsis, got %q", p)
	}
	if n := len([]rune(strings.TrimSuffix(p, "..."))); n != PreviewLength {
		t.Fatalf("preview length = %d, want %d", n, PreviewLength)
	}
}

func TestStore_PendingPreviewUntilRecorded(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	text := strings.Repeat("текст ", 30)

	s.RememberPreview("p1", text)
	if got := s.PendingPreview("p1"); got != Preview(text) {
		t.Fatalf("pending preview = %q", got)
	}
	if got := s.PendingPreview("other"); got != "" {
		t.Fatalf("unknown task preview = %q", got)
	}

	s.Record(item("p1"))
	if got := s.PendingPreview("p1"); got != "" {
		t.Fatalf("recording must drop the pending preview, got %q", got)
	}
}

func TestStore_PendingPreviewBounded(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	for i := 0; i <= PendingCapacity; i++ {
		s.RememberPreview(fmt.Sprintf("p%d", i), "text")
	}

	if got := s.PendingPreview("p0"); got != "" {
		t.Fatalf("oldest pending preview should have been evicted")
	}
	if got := s.PendingPreview(fmt.Sprintf("p%d", PendingCapacity)); got != "text" {
		t.Fatalf("newest pending preview missing")
	}
}

func TestStore_RemoveAndClearDropPendingPreviews(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	s.RememberPreview("a", "text a")
	s.RememberPreview("b", "text b")

	s.Remove("a")
	if s.PendingPreview("a") != "" || s.PendingPreview("b") != "text b" {
		t.Fatalf("Remove must only drop the pending preview of its task")
	}

	s.Clear()
	if s.PendingPreview("b") != "" {
		t.Fatalf("Clear must drop pending previews")
	}

	nilStore := NewStore(nil)
	nilStore.RememberPreview("a", "text")
	if nilStore.PendingPreview("a") != "" {
		t.Fatalf("nil backend must not remember previews")
	}
}
