package notify

import (
	"context"
	"sync"
	"time"

	"otopasar/pkg/logger"
)

type EventKind string

const (
	EventAdded    EventKind = "added"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
)

const (
	TableMessages = "chat_messages"
	TableOffers   = "offers"
	TableChats    = "chats"
)

// Event is one row-level change scoped to a subscribed user.
type Event struct {
	Kind  EventKind
	Table string
	ID    string
}

// Stream is a live change feed. Next blocks until a batch of events arrives
// or the feed breaks; delivery is at-least-once.
type Stream interface {
	Next(ctx context.Context) ([]Event, error)
	Close() error
}

// StreamFactory opens a change feed scoped to one user. The bridge calls it
// again after every stream failure.
type StreamFactory func(ctx context.Context, userID string) (Stream, error)

type Reason string

const (
	ReasonEvent     Reason = "event"
	ReasonPoll      Reason = "poll"
	ReasonReconnect Reason = "reconnect"
)

// RefreshFunc is invoked at most once per debounce window, however many
// events arrived inside it.
type RefreshFunc func(reason Reason)

// Bridge fans change notifications out to per-user subscriptions. Each
// subscription debounces event bursts, keeps a fallback poll ticking in case
// the live feed drops silently, and resubscribes after disconnects without
// ever duplicating handlers.
type Bridge struct {
	factory      StreamFactory
	debounce     time.Duration
	pollInterval time.Duration

	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewBridge(factory StreamFactory, debounce, pollInterval time.Duration) *Bridge {
	return &Bridge{
		factory:      factory,
		debounce:     debounce,
		pollInterval: pollInterval,
		subs:         make(map[string]*Subscription),
	}
}

// Subscribe registers refresh for the user's change scope. Subscribing again
// for the same user replaces the previous subscription, so a remount cannot
// leave two handlers firing.
func (b *Bridge) Subscribe(ctx context.Context, userID string, refresh RefreshFunc) *Subscription {
	b.mu.Lock()
	old := b.subs[userID]

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		userID:       userID,
		refresh:      refresh,
		factory:      b.factory,
		debounce:     b.debounce,
		pollInterval: b.pollInterval,
		ctx:          subCtx,
		cancel:       cancel,
		seen:         newRingSet(1024),
	}
	sub.onClose = func() {
		b.remove(userID, sub)
	}
	b.subs[userID] = sub
	b.mu.Unlock()

	if old != nil {
		old.stop()
	}
	sub.start()
	return sub
}

// remove drops the mapping only if sub still owns it; a replaced
// subscription's Close must not evict its successor.
func (b *Bridge) remove(userID string, sub *Subscription) {
	b.mu.Lock()
	if b.subs[userID] == sub {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

// Close tears down every live subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// Subscription is one user's live view of the change feed.
type Subscription struct {
	userID       string
	refresh      RefreshFunc
	factory      StreamFactory
	debounce     time.Duration
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
	seen  *ringSet

	closeOnce sync.Once
	onClose   func()
}

func (s *Subscription) start() {
	s.wg.Add(2)
	go s.streamLoop()
	go s.pollLoop()
}

// Close tears the subscription down: timers stopped, stream closed, no
// handler fires afterwards.
func (s *Subscription) Close() {
	s.stop()
	if s.onClose != nil {
		s.onClose()
	}
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Subscription) streamLoop() {
	defer s.wg.Done()

	reconnectDelay := time.Second
	first := true

	for {
		if s.ctx.Err() != nil {
			return
		}

		stream, err := s.factory(s.ctx, s.userID)
		if err != nil {
			logger.Warn("notify: subscribe failed for user %s: %v", s.userID, err)
			if !s.sleep(reconnectDelay) {
				return
			}
			reconnectDelay = nextDelay(reconnectDelay)
			continue
		}
		reconnectDelay = time.Second

		if !first {
			// The feed may have dropped events while we were gone.
			s.fire(ReasonReconnect)
		}
		first = false

		s.consume(stream)
		stream.Close()
	}
}

func (s *Subscription) consume(stream Stream) {
	for {
		events, err := stream.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Warn("notify: stream lost for user %s: %v", s.userID, err)
			}
			return
		}

		fresh := false
		for _, ev := range events {
			// The feed is at-least-once; dedupe additions by identity so a
			// replayed insert cannot trigger a spurious recount.
			if ev.Kind == EventAdded && !s.seen.add(ev.Table+"/"+ev.ID) {
				continue
			}
			fresh = true
		}

		if fresh {
			s.bump()
		}
	}
}

func (s *Subscription) pollLoop() {
	defer s.wg.Done()

	if s.pollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fire(ReasonPoll)
		}
	}
}

// bump schedules a debounced refresh. The first event of a burst arms the
// timer; later events inside the window coalesce into the same firing.
func (s *Subscription) bump() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.fire(ReasonEvent)
	})
}

func (s *Subscription) fire(reason Reason) {
	if s.ctx.Err() != nil {
		return
	}
	s.refresh(reason)
}

func (s *Subscription) sleep(d time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// ringSet is a fixed-capacity set with FIFO eviction, used to dedupe
// at-least-once event ids without unbounded growth.
type ringSet struct {
	mu    sync.Mutex
	cap   int
	order []string
	items map[string]struct{}
}

func newRingSet(capacity int) *ringSet {
	return &ringSet{
		cap:   capacity,
		items: make(map[string]struct{}, capacity),
	}
}

// add reports true when key was not present.
func (r *ringSet) add(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[key]; ok {
		return false
	}
	r.items[key] = struct{}{}
	r.order = append(r.order, key)
	if len(r.order) > r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.items, oldest)
	}
	return true
}
