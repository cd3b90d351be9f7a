package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otopasar/internal/domain/entity"
	apperrors "otopasar/pkg/errors"
)

type memStore struct {
	mu    sync.Mutex
	msgs  []entity.Message
	fail  bool
	delay time.Duration
	seq   int
}

func (s *memStore) CreateMessage(ctx context.Context, m *entity.Message) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return fmt.Errorf("store unavailable")
	}

	s.seq++
	m.ID = fmt.Sprintf("msg-%d", s.seq)
	m.CreatedAt = time.Now()
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *memStore) stored() []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

type sinkRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *sinkRecorder) record(chatID string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *sinkRecorder) states(localID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, e := range r.entries {
		if e.LocalID == localID {
			out = append(out, e.State)
		}
	}
	return out
}

func newTestPipeline(t *testing.T, store *memStore, maxRetries int) (*Pipeline, *sinkRecorder) {
	t.Helper()
	rec := &sinkRecorder{}
	p := NewPipeline(store, maxRetries, time.Millisecond, rec.record)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p, rec
}

func TestSendIsOptimistic(t *testing.T) {
	store := &memStore{delay: 50 * time.Millisecond}
	p, rec := newTestPipeline(t, store, 0)

	handle := p.Send("chat-1", "alice", "bob", "hello", entity.MessageTypeText)

	// The entry is visible as pending before the store has confirmed.
	snap := p.Snapshot("chat-1")
	require.Len(t, snap, 1)
	assert.Equal(t, StatePending, snap[0].State)
	assert.Equal(t, handle.LocalID, snap[0].LocalID)

	require.Eventually(t, func() bool {
		snap := p.Snapshot("chat-1")
		return len(snap) == 1 && snap[0].State == StateConfirmed
	}, time.Second, 5*time.Millisecond)

	// The sink saw pending first, then confirmed.
	assert.Equal(t, []State{StatePending, StateConfirmed}, rec.states(handle.LocalID))

	snap = p.Snapshot("chat-1")
	assert.NotEmpty(t, snap[0].Message.ID, "confirmation carries the store-assigned id")
}

func TestSendPreservesOrderPerChat(t *testing.T) {
	store := &memStore{delay: 2 * time.Millisecond}
	p, _ := newTestPipeline(t, store, 0)

	var handles []Handle
	for i := 0; i < 5; i++ {
		handles = append(handles, p.Send("chat-1", "alice", "bob", fmt.Sprintf("m%d", i), entity.MessageTypeText))
	}

	require.Eventually(t, func() bool {
		return len(store.stored()) == 5
	}, time.Second, 5*time.Millisecond)

	stored := store.stored()
	for i, m := range stored {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content, "store order must match composition order")
	}

	// Snapshot keeps composition order too.
	snap := p.Snapshot("chat-1")
	require.Len(t, snap, 5)
	for i, e := range snap {
		assert.Equal(t, handles[i].LocalID, e.LocalID)
		assert.Equal(t, StateConfirmed, e.State)
	}
}

func TestIndependentChatsDoNotBlockEachOther(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPipeline(t, store, 0)

	p.Send("chat-1", "alice", "bob", "one", entity.MessageTypeText)
	p.Send("chat-2", "carol", "dave", "two", entity.MessageTypeText)

	require.Eventually(t, func() bool {
		return len(store.stored()) == 2
	}, time.Second, 5*time.Millisecond)

	chats := map[string]bool{}
	for _, m := range store.stored() {
		chats[m.ChatID] = true
	}
	assert.Len(t, chats, 2)
}

func TestFailedSendIsRetryable(t *testing.T) {
	store := &memStore{fail: true}
	p, rec := newTestPipeline(t, store, 1)

	handle := p.Send("chat-1", "alice", "bob", "hello", entity.MessageTypeText)

	require.Eventually(t, func() bool {
		snap := p.Snapshot("chat-1")
		return len(snap) == 1 && snap[0].State == StateFailed
	}, time.Second, 5*time.Millisecond)

	snap := p.Snapshot("chat-1")
	require.Error(t, snap[0].Err)
	assert.True(t, apperrors.Is(snap[0].Err, "DELIVERY_FAILED"))
	assert.Empty(t, store.stored(), "nothing reaches the store while it is down")

	// Store recovers; an explicit retry re-queues the same entry.
	store.setFail(false)
	require.NoError(t, p.Retry("chat-1", handle.LocalID))

	require.Eventually(t, func() bool {
		snap := p.Snapshot("chat-1")
		return snap[0].State == StateConfirmed
	}, time.Second, 5*time.Millisecond)

	stored := store.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, "hello", stored[0].Content)

	// Same LocalID throughout: failed entries are retried in place, never
	// duplicated.
	states := rec.states(handle.LocalID)
	assert.Equal(t, []State{StatePending, StateFailed, StatePending, StateConfirmed}, states)
}

func TestRetryRejectsNonFailedEntries(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPipeline(t, store, 0)

	handle := p.Send("chat-1", "alice", "bob", "hello", entity.MessageTypeText)

	require.Eventually(t, func() bool {
		snap := p.Snapshot("chat-1")
		return len(snap) == 1 && snap[0].State == StateConfirmed
	}, time.Second, 5*time.Millisecond)

	err := p.Retry("chat-1", handle.LocalID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "BAD_REQUEST"))

	assert.Error(t, p.Retry("chat-1", "no-such-local-id"))
	assert.Error(t, p.Retry("no-such-chat", handle.LocalID))
}
