package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/blues/ilr/internal/model"
)

type memStore struct {
	mu        sync.Mutex
	events    []model.IntentEventModel
	delivered map[int64]bool
	failures  map[int64]int
}

func newMemStore(events ...model.IntentEventModel) *memStore {
	return &memStore{events: events, delivered: map[int64]bool{}, failures: map[int64]int{}}
}

func (m *memStore) PendingEvents(ctx context.Context, limit int) ([]model.IntentEventModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.IntentEventModel
	for _, e := range m.events {
		if !m.delivered[e.Id] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) MarkEventDelivered(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = true
	return nil
}

func (m *memStore) MarkEventFailed(ctx context.Context, id int64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id]++
	return nil
}

func sampleEvents() []model.IntentEventModel {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []model.IntentEventModel{
		{Id: 1, CreatedAt: now, IntentId: "i-1", Version: 2, FromState: model.IntentAwaitingSubmission, ToState: model.IntentSubmitted, TxHash: "0xabc"},
		{Id: 2, CreatedAt: now, IntentId: "i-1", Version: 3, FromState: model.IntentSubmitted, ToState: model.IntentConfirming, TxHash: "0xabc"},
	}
}

func TestDispatchPendingDelivers(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
		got  []Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var e Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		got = append(got, e)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	store := newMemStore(sampleEvents()...)
	d := NewDispatcher(store, srv.URL, 10, srv.Client())

	n, err := d.DispatchPending(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("DispatchPending = %d, %v", n, err)
	}
	if keys[0] != "i-1:2:Submitted" || keys[1] != "i-1:3:Confirming" {
		t.Fatalf("keys = %v", keys)
	}
	if got[0].TxHash != "0xabc" || got[1].ToState != model.IntentConfirming {
		t.Fatalf("payloads = %+v", got)
	}

	// 已投递的事件不再重复发送
	if n, _ := d.DispatchPending(context.Background()); n != 0 {
		t.Fatalf("redelivered %d events", n)
	}
}

func TestDispatchPendingStopsOnFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newMemStore(sampleEvents()...)
	d := NewDispatcher(store, srv.URL, 10, srv.Client())

	n, err := d.DispatchPending(context.Background())
	if err == nil || n != 0 {
		t.Fatalf("DispatchPending = %d, %v; want failure", n, err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if store.failures[1] != 1 || store.delivered[1] {
		t.Fatalf("event 1 bookkeeping: failures=%d delivered=%v", store.failures[1], store.delivered[1])
	}
}
