package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	ch chan []Event
}

func (s *scriptedStream) Next(ctx context.Context) ([]Event, error) {
	select {
	case evs, ok := <-s.ch:
		if !ok {
			return nil, fmt.Errorf("feed dropped")
		}
		return evs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedStream) Close() error { return nil }

// fakeFeed hands out scripted streams and lets tests push events into the
// most recent one or kill it to force a reconnect.
type fakeFeed struct {
	mu       sync.Mutex
	streams  []*scriptedStream
	connects int
}

func (f *fakeFeed) factory(ctx context.Context, userID string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &scriptedStream{ch: make(chan []Event, 16)}
	f.streams = append(f.streams, s)
	f.connects++
	return s, nil
}

func (f *fakeFeed) waitConnected(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.connects >= n
	}, time.Second, time.Millisecond)
}

func (f *fakeFeed) push(events ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[len(f.streams)-1].ch <- events
}

func (f *fakeFeed) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.streams[len(f.streams)-1].ch)
}

type refreshRecorder struct {
	ch chan Reason
}

func newRefreshRecorder() *refreshRecorder {
	return &refreshRecorder{ch: make(chan Reason, 16)}
}

func (r *refreshRecorder) fn(reason Reason) {
	r.ch <- reason
}

func (r *refreshRecorder) wait(t *testing.T, timeout time.Duration) Reason {
	t.Helper()
	select {
	case reason := <-r.ch:
		return reason
	case <-time.After(timeout):
		t.Fatal("expected a refresh, got none")
		return ""
	}
}

func (r *refreshRecorder) expectNone(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case reason := <-r.ch:
		t.Fatalf("unexpected refresh: %s", reason)
	case <-time.After(window):
	}
}

func added(id string) Event {
	return Event{Kind: EventAdded, Table: TableMessages, ID: id}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 30*time.Millisecond, 0)
	defer bridge.Close()

	rec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", rec.fn)
	feed.waitConnected(t, 1)

	feed.push(added("m1"))
	feed.push(added("m2"))
	feed.push(added("m3"))

	reason := rec.wait(t, time.Second)
	assert.Equal(t, ReasonEvent, reason)

	// The whole burst collapses into that single firing.
	rec.expectNone(t, 100*time.Millisecond)
}

func TestDuplicateEventsDoNotRefire(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 10*time.Millisecond, 0)
	defer bridge.Close()

	rec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", rec.fn)
	feed.waitConnected(t, 1)

	feed.push(added("m1"))
	rec.wait(t, time.Second)

	// The feed is at-least-once; a replayed insert is not a new change.
	feed.push(added("m1"))
	rec.expectNone(t, 100*time.Millisecond)
}

func TestFallbackPoll(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 10*time.Millisecond, 25*time.Millisecond)
	defer bridge.Close()

	rec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", rec.fn)
	feed.waitConnected(t, 1)

	// No events at all; the poll still fires.
	reason := rec.wait(t, time.Second)
	assert.Equal(t, ReasonPoll, reason)
}

func TestResubscribeReplacesHandler(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 10*time.Millisecond, 0)
	defer bridge.Close()

	oldRec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", oldRec.fn)
	feed.waitConnected(t, 1)

	newRec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", newRec.fn)
	feed.waitConnected(t, 2)

	feed.push(added("m1"))

	newRec.wait(t, time.Second)
	oldRec.expectNone(t, 100*time.Millisecond)
}

func TestReconnectTriggersRefresh(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 10*time.Millisecond, 0)
	defer bridge.Close()

	rec := newRefreshRecorder()
	bridge.Subscribe(context.Background(), "user-1", rec.fn)
	feed.waitConnected(t, 1)

	feed.drop()
	feed.waitConnected(t, 2)

	// Events may have been missed during the gap, so the bridge refreshes
	// unconditionally on reconnect.
	reason := rec.wait(t, 5*time.Second)
	assert.Equal(t, ReasonReconnect, reason)

	// The replacement stream still delivers.
	feed.push(added("m1"))
	assert.Equal(t, ReasonEvent, rec.wait(t, time.Second))
}

func TestCloseStopsEverything(t *testing.T) {
	feed := &fakeFeed{}
	bridge := NewBridge(feed.factory, 10*time.Millisecond, 20*time.Millisecond)

	rec := newRefreshRecorder()
	sub := bridge.Subscribe(context.Background(), "user-1", rec.fn)
	feed.waitConnected(t, 1)

	feed.push(added("m1"))
	rec.wait(t, time.Second)

	sub.Close()

	// Neither pushed events nor the poll fire after teardown.
	rec.expectNone(t, 100*time.Millisecond)

	bridge.Close()
}
