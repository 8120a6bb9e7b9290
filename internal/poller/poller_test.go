package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lanternchat/streamhub/internal/api"
	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/session"
)

// mockRegistry records Ensure/Close calls.
type mockRegistry struct {
	mu      sync.Mutex
	ensured []string
	closed  []string
	live    map[string]bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{live: make(map[string]bool)}
}

func (m *mockRegistry) Ensure(sessionID string) *session.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, sessionID)
	m.live[sessionID] = true
	return nil
}

func (m *mockRegistry) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, sessionID)
	delete(m.live, sessionID)
}

func (m *mockRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *mockRegistry) ensuredIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ensured))
	copy(out, m.ensured)
	return out
}

func (m *mockRegistry) closedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.closed))
	copy(out, m.closed)
	return out
}

// directoryServer serves a mutable session list.
func directoryServer(t *testing.T, sessions *[]model.Session, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewEncoder(w).Encode(api.SessionsResponse{Sessions: *sessions})
	}))
}

func TestPoller_AttachesActiveSessions(t *testing.T) {
	var mu sync.Mutex
	sessions := []model.Session{
		{ID: "s-1", Status: "active"},
		{ID: "s-2", Status: "active"},
		{ID: "s-3", Status: "archived"},
	}
	server := directoryServer(t, &sessions, &mu)
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	reg := newMockRegistry()
	p := New(Config{}, client, reg, nil)
	p.ctx = context.Background()

	p.syncAll()

	ensured := reg.ensuredIDs()
	if len(ensured) != 2 {
		t.Fatalf("ensured %v, want the two active sessions", ensured)
	}
	for _, id := range ensured {
		if id == "s-3" {
			t.Error("archived session attached")
		}
	}
	if len(reg.closedIDs()) != 0 {
		t.Errorf("closed %v on first sync, want none", reg.closedIDs())
	}
}

func TestPoller_DetachesDroppedSessions(t *testing.T) {
	var mu sync.Mutex
	sessions := []model.Session{
		{ID: "s-1", Status: "active"},
		{ID: "s-2", Status: "active"},
	}
	server := directoryServer(t, &sessions, &mu)
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	reg := newMockRegistry()
	p := New(Config{}, client, reg, nil)
	p.ctx = context.Background()

	p.syncAll()
	if reg.Len() != 2 {
		t.Fatalf("live = %d after first sync, want 2", reg.Len())
	}

	// s-2 goes idle in the directory.
	mu.Lock()
	sessions = []model.Session{
		{ID: "s-1", Status: "active"},
		{ID: "s-2", Status: "idle"},
	}
	mu.Unlock()

	p.syncAll()

	closed := reg.closedIDs()
	if len(closed) != 1 || closed[0] != "s-2" {
		t.Fatalf("closed = %v, want [s-2]", closed)
	}
	if reg.Len() != 1 {
		t.Errorf("live = %d after detach, want 1", reg.Len())
	}
}

func TestPoller_DirectoryErrorKeepsSessions(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(api.SessionsResponse{
			Sessions: []model.Session{{ID: "s-1", Status: "active"}},
		})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithRetries(0, time.Millisecond))
	reg := newMockRegistry()
	p := New(Config{}, client, reg, nil)
	p.ctx = context.Background()

	mu.Lock()
	healthy = true
	mu.Unlock()
	p.syncAll()
	if reg.Len() != 1 {
		t.Fatalf("live = %d, want 1", reg.Len())
	}

	// A failed listing must not tear anything down.
	mu.Lock()
	healthy = false
	mu.Unlock()
	p.syncAll()

	if len(reg.closedIDs()) != 0 {
		t.Errorf("closed %v after directory error, want none", reg.closedIDs())
	}
	if reg.Len() != 1 {
		t.Errorf("live = %d after directory error, want still 1", reg.Len())
	}
}

// slowRegistry blocks inside Ensure and tracks how many calls overlap.
type slowRegistry struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	ensured  int
}

func (r *slowRegistry) Ensure(sessionID string) *session.Manager {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.inFlight--
	r.ensured++
	r.mu.Unlock()
	return nil
}

func (r *slowRegistry) Close(sessionID string) {}

func (r *slowRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensured
}

func TestPoller_AttachConcurrencyIsBounded(t *testing.T) {
	var mu sync.Mutex
	var sessions []model.Session
	for i := 0; i < 8; i++ {
		sessions = append(sessions, model.Session{ID: fmt.Sprintf("s-%d", i), Status: "active"})
	}
	server := directoryServer(t, &sessions, &mu)
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	reg := &slowRegistry{}
	p := New(Config{Concurrency: 2}, client, reg, nil)
	p.ctx = context.Background()

	p.syncAll()

	reg.mu.Lock()
	ensured, maxSeen := reg.ensured, reg.maxSeen
	reg.mu.Unlock()

	if ensured != 8 {
		t.Fatalf("ensured = %d, want all 8 sessions", ensured)
	}
	if maxSeen > 2 {
		t.Errorf("max concurrent Ensure = %d, want at most 2", maxSeen)
	}
}

func TestPoller_Lifecycle(t *testing.T) {
	var mu sync.Mutex
	sessions := []model.Session{{ID: "s-1", Status: "active"}}
	server := directoryServer(t, &sessions, &mu)
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	reg := newMockRegistry()
	p := New(Config{Interval: time.Hour}, client, reg, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The initial sync runs on start.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && reg.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	if reg.Len() != 1 {
		t.Fatalf("live = %d after start, want 1", reg.Len())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
