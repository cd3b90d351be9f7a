package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"otopasar/internal/domain/entity"
	"otopasar/pkg/errors"
	"otopasar/pkg/logger"
)

type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Store is the durable side of the pipeline. CreateMessage assigns the
// authoritative id and timestamp on the passed message.
type Store interface {
	CreateMessage(ctx context.Context, message *entity.Message) error
}

// Entry is the tagged local view of one outbound message, keyed by LocalID.
// A pending entry becomes confirmed in place (same position, same LocalID)
// or failed; failed entries stay visible until retried.
type Entry struct {
	LocalID    string         `json:"local_id"`
	State      State          `json:"state"`
	Message    entity.Message `json:"message"`
	ComposedAt time.Time      `json:"composed_at"`
	Attempts   int            `json:"attempts"`
	Err        error          `json:"-"`
}

// Handle identifies an optimistic entry to callers.
type Handle struct {
	LocalID string `json:"local_id"`
	ChatID  string `json:"chat_id"`
}

// Sink receives every entry state change (pending, confirmed, failed),
// typically to push it over the websocket.
type Sink func(chatID string, entry Entry)

// Pipeline gives outbound messages immediate optimistic visibility and
// submits them to the store in composition order, one chat at a time.
// Sends in different chats proceed concurrently.
type Pipeline struct {
	store      Store
	maxRetries int
	backoff    time.Duration
	sink       Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*chatQueue
}

type chatQueue struct {
	work    chan string
	order   []*Entry
	byLocal map[string]*Entry
}

func NewPipeline(store Store, maxRetries int, backoff time.Duration, sink Sink) *Pipeline {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Pipeline{
		store:      store,
		maxRetries: maxRetries,
		backoff:    backoff,
		sink:       sink,
		queues:     make(map[string]*chatQueue),
	}
}

// SetSink wires the consumer of entry transitions. Must be called before
// the first Send; the sink may itself hold a reference to the pipeline.
func (p *Pipeline) SetSink(sink Sink) {
	p.sink = sink
}

// Start runs the pipeline until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels all workers and waits for them to drain.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Send materializes a pending entry with a client-generated id and the
// current wall clock, then queues the store submit. It never blocks on the
// network.
func (p *Pipeline) Send(chatID, senderID, receiverID, content, msgType string) Handle {
	now := time.Now()
	entry := &Entry{
		LocalID: uuid.New().String(),
		State:   StatePending,
		Message: entity.Message{
			ChatID:     chatID,
			SenderID:   senderID,
			ReceiverID: receiverID,
			Content:    content,
			Type:       msgType,
			CreatedAt:  now,
		},
		ComposedAt: now,
	}

	p.mu.Lock()
	q := p.queue(chatID)
	q.order = append(q.order, entry)
	q.byLocal[entry.LocalID] = entry
	snap := *entry
	p.mu.Unlock()

	p.emit(chatID, snap)
	q.work <- entry.LocalID

	return Handle{LocalID: entry.LocalID, ChatID: chatID}
}

// Retry re-queues a failed entry. The entry keeps its composition position;
// only its state resets to pending.
func (p *Pipeline) Retry(chatID, localID string) error {
	p.mu.Lock()
	q, ok := p.queues[chatID]
	if !ok {
		p.mu.Unlock()
		return errors.NotFound("Chat queue", nil)
	}
	entry, ok := q.byLocal[localID]
	if !ok {
		p.mu.Unlock()
		return errors.NotFound("Message", nil)
	}
	if entry.State != StateFailed {
		p.mu.Unlock()
		return errors.BadRequest("Only failed messages can be retried", nil)
	}
	entry.State = StatePending
	entry.Err = nil
	entry.Attempts = 0
	snap := *entry
	p.mu.Unlock()

	p.emit(chatID, snap)
	q.work <- localID

	return nil
}

// Snapshot returns the chat's local entries in composition order with their
// current states.
func (p *Pipeline) Snapshot(chatID string) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[chatID]
	if !ok {
		return nil
	}

	out := make([]Entry, len(q.order))
	for i, e := range q.order {
		out[i] = *e
	}
	return out
}

// queue returns the chat's queue, starting its worker on first use.
// Caller holds p.mu.
func (p *Pipeline) queue(chatID string) *chatQueue {
	if p.ctx == nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
	q, ok := p.queues[chatID]
	if !ok {
		q = &chatQueue{
			work:    make(chan string, 256),
			byLocal: make(map[string]*Entry),
		}
		p.queues[chatID] = q
		p.wg.Add(1)
		go p.worker(chatID, q)
	}
	return q
}

// worker is the single writer for one chat; FIFO consumption preserves
// composition order at the store.
func (p *Pipeline) worker(chatID string, q *chatQueue) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case localID := <-q.work:
			p.submit(chatID, q, localID)
		}
	}
}

func (p *Pipeline) submit(chatID string, q *chatQueue, localID string) {
	p.mu.Lock()
	entry, ok := q.byLocal[localID]
	if !ok {
		p.mu.Unlock()
		return
	}
	msg := entry.Message
	p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.backoff * time.Duration(attempt)):
			}
		}

		m := msg
		m.ID = "" // the store assigns the authoritative id
		if err := p.store.CreateMessage(p.ctx, &m); err != nil {
			lastErr = err
			logger.Warn("delivery: submit attempt %d failed for chat %s: %v", attempt+1, chatID, err)
			continue
		}

		p.mu.Lock()
		entry.State = StateConfirmed
		entry.Message = m
		entry.Err = nil
		entry.Attempts = attempt + 1
		snap := *entry
		p.mu.Unlock()

		p.emit(chatID, snap)
		return
	}

	p.mu.Lock()
	entry.State = StateFailed
	entry.Err = errors.DeliveryFailed("Message could not be delivered", lastErr)
	entry.Attempts = p.maxRetries + 1
	snap := *entry
	p.mu.Unlock()

	logger.Error("delivery: message %s in chat %s marked failed: %v", localID, chatID, lastErr)
	p.emit(chatID, snap)
}

func (p *Pipeline) emit(chatID string, entry Entry) {
	if p.sink != nil {
		p.sink(chatID, entry)
	}
}
