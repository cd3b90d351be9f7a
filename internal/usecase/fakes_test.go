package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"otopasar/internal/domain/entity"
	"otopasar/pkg/errors"
)

// In-memory repositories mirroring the Firestore adapters' contracts.

type fakeOfferRepo struct {
	mu     sync.Mutex
	offers map[string]*entity.Offer
}

func newFakeOfferRepo() *fakeOfferRepo {
	return &fakeOfferRepo{offers: make(map[string]*entity.Offer)}
}

func (r *fakeOfferRepo) CreatePending(ctx context.Context, offer *entity.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.offers {
		if o.ListingID == offer.ListingID && o.BuyerID == offer.BuyerID && o.Status == entity.OfferStatusPending {
			return errors.DuplicatePendingOffer(offer.ListingID)
		}
	}

	offer.ID = uuid.New().String()
	offer.Status = entity.OfferStatusPending
	offer.CreatedAt = time.Now()
	offer.UpdatedAt = offer.CreatedAt
	cp := *offer
	r.offers[offer.ID] = &cp
	return nil
}

func (r *fakeOfferRepo) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, errors.NotFound("Offer", nil)
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOfferRepo) Resolve(ctx context.Context, id string, status string) (*entity.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, errors.NotFound("Offer", nil)
	}
	if o.Status != entity.OfferStatusPending {
		return nil, errors.AlreadyResolved("Offer is already " + o.Status)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (r *fakeOfferRepo) GetLatestByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *entity.Offer
	for _, o := range r.offers {
		if o.ListingID != listingID || o.BuyerID != buyerID {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, errors.NotFound("Offer", nil)
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeOfferRepo) ListByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*entity.Offer, int64, error) {
	return r.list(func(o *entity.Offer) bool { return o.BuyerID == buyerID }, limit, offset)
}

func (r *fakeOfferRepo) ListBySellerID(ctx context.Context, sellerID string, limit, offset int) ([]*entity.Offer, int64, error) {
	return r.list(func(o *entity.Offer) bool { return o.SellerID == sellerID }, limit, offset)
}

func (r *fakeOfferRepo) list(match func(*entity.Offer) bool, limit, offset int) ([]*entity.Offer, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Offer
	for _, o := range r.offers {
		if match(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	chats    map[string]*entity.Chat
	messages map[string][]*entity.Message
	failSend bool
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		chats:    make(map[string]*entity.Chat),
		messages: make(map[string][]*entity.Message),
	}
}

func tripleKey(c *entity.Chat) string {
	return fmt.Sprintf("%s|%s|%s", c.ListingID, c.BuyerID, c.SellerID)
}

func (r *fakeChatRepo) GetOrCreate(ctx context.Context, chat *entity.Chat) (*entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tripleKey(chat)
	if existing, ok := r.chats[key]; ok {
		cp := *existing
		return &cp, nil
	}

	now := time.Now()
	created := &entity.Chat{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
		ListingID:   chat.ListingID,
		BuyerID:     chat.BuyerID,
		SellerID:    chat.SellerID,
		Status:      entity.ChatStatusActive,
		UnreadCount: map[string]int{chat.BuyerID: 0, chat.SellerID: 0},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.chats[key] = created
	cp := *created
	return &cp, nil
}

func (r *fakeChatRepo) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.chats {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Chat", nil)
}

func (r *fakeChatRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Chat, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Chat
	for _, c := range r.chats {
		if c.BuyerID == userID || c.SellerID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, int64(len(out)), nil
}

func (r *fakeChatRepo) Update(ctx context.Context, chat *entity.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tripleKey(chat)
	if _, ok := r.chats[key]; !ok {
		return errors.NotFound("Chat", nil)
	}
	cp := *chat
	r.chats[key] = &cp
	return nil
}

func (r *fakeChatRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSend {
		return fmt.Errorf("store unavailable")
	}

	message.ID = uuid.New().String()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	cp := *message
	r.messages[message.ChatID] = append(r.messages[message.ChatID], &cp)
	return nil
}

func (r *fakeChatRepo) GetMessagesByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.messages[chatID]
	out := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeChatRepo) MarkMessagesSeen(ctx context.Context, chatID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flipped := 0
	for _, m := range r.messages[chatID] {
		if m.ReceiverID == userID && !m.Seen {
			m.Seen = true
			flipped++
		}
	}
	return flipped, nil
}

func (r *fakeChatRepo) CountUnread(ctx context.Context, chatID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, m := range r.messages[chatID] {
		if m.ReceiverID == userID && !m.Seen {
			count++
		}
	}
	return count, nil
}

func (r *fakeChatRepo) CountUnreadTotal(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, msgs := range r.messages {
		for _, m := range msgs {
			if m.ReceiverID == userID && !m.Seen {
				count++
			}
		}
	}
	return count, nil
}

type fakeListingRepo struct {
	mu       sync.Mutex
	listings map[string]*entity.Listing
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{listings: make(map[string]*entity.Listing)}
}

func (r *fakeListingRepo) add(l *entity.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.listings[l.ID] = &cp
}

func (r *fakeListingRepo) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, errors.NotFound("Listing", nil)
	}
	cp := *l
	return &cp, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*entity.User)}
}

func (r *fakeUserRepo) add(u *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *u
	return &cp, nil
}
