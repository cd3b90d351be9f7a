package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otopasar/internal/domain/entity"
	ws "otopasar/internal/infrastructure/websocket"
	"otopasar/pkg/errors"
)

type offerFixture struct {
	uc          *OfferUseCase
	offerRepo   *fakeOfferRepo
	chatRepo    *fakeChatRepo
	listingRepo *fakeListingRepo
	userRepo    *fakeUserRepo
}

func newOfferFixture(t *testing.T) *offerFixture {
	t.Helper()

	f := &offerFixture{
		offerRepo:   newFakeOfferRepo(),
		chatRepo:    newFakeChatRepo(),
		listingRepo: newFakeListingRepo(),
		userRepo:    newFakeUserRepo(),
	}

	f.listingRepo.add(&entity.Listing{
		ID:       "listing-1",
		SellerID: "seller-1",
		Title:    "2019 Toyota Avanza",
		Price:    150_000_000,
		Status:   entity.ListingStatusActive,
	})
	f.userRepo.add(&entity.User{ID: "seller-1", Username: "seller"})
	f.userRepo.add(&entity.User{ID: "buyer-1", Username: "buyer"})

	f.uc = NewOfferUseCase(f.offerRepo, f.chatRepo, f.listingRepo, f.userRepo, ws.NewManager(), 2.0)
	return f
}

func (f *offerFixture) submit(t *testing.T, buyerID string, amount float64) *entity.Offer {
	t.Helper()
	offer, err := f.uc.SubmitOffer(context.Background(), buyerID, SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    amount,
	})
	require.NoError(t, err)
	return offer
}

func TestSubmitOfferCreatesPending(t *testing.T) {
	f := newOfferFixture(t)

	offer := f.submit(t, "buyer-1", 140_000_000)

	assert.NotEmpty(t, offer.ID)
	assert.Equal(t, entity.OfferStatusPending, offer.Status)
	assert.Equal(t, "seller-1", offer.SellerID)
}

func TestSubmitOfferRejectsOwnListing(t *testing.T) {
	f := newOfferFixture(t)

	_, err := f.uc.SubmitOffer(context.Background(), "seller-1", SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    100_000_000,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestSubmitOfferValidatesAmount(t *testing.T) {
	f := newOfferFixture(t)

	_, err := f.uc.SubmitOffer(context.Background(), "buyer-1", SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    0,
	})
	assert.True(t, errors.Is(err, "INVALID_AMOUNT"))

	_, err = f.uc.SubmitOffer(context.Background(), "buyer-1", SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    -5,
	})
	assert.True(t, errors.Is(err, "INVALID_AMOUNT"))

	// Ceiling is 2x the asking price.
	_, err = f.uc.SubmitOffer(context.Background(), "buyer-1", SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    301_000_000,
	})
	assert.True(t, errors.Is(err, "INVALID_AMOUNT"))
}

func TestSubmitOfferBlocksDuplicatePending(t *testing.T) {
	f := newOfferFixture(t)

	f.submit(t, "buyer-1", 140_000_000)

	_, err := f.uc.SubmitOffer(context.Background(), "buyer-1", SubmitOfferInput{
		ListingID: "listing-1",
		Amount:    145_000_000,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, "DUPLICATE_PENDING_OFFER"))
}

func TestSubmitOfferAllowedAfterRejection(t *testing.T) {
	f := newOfferFixture(t)

	first := f.submit(t, "buyer-1", 140_000_000)

	rejected, err := f.uc.RespondToOffer(context.Background(), "seller-1", first.ID, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferStatusRejected, rejected.Status)

	// The rejection is terminal; a fresh offer starts a new cycle.
	second := f.submit(t, "buyer-1", 145_000_000)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, entity.OfferStatusPending, second.Status)

	// The gate follows the latest offer, which is pending again.
	enabled, err := f.uc.ChatGate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRespondToOfferRequiresSeller(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	_, err := f.uc.RespondToOffer(context.Background(), "buyer-1", offer.ID, DecisionAccept)

	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestRespondToOfferAcceptUnlocksChat(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	accepted, err := f.uc.RespondToOffer(context.Background(), "seller-1", offer.ID, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferStatusAccepted, accepted.Status)

	enabled, err := f.uc.ChatGate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	// The chat exists and carries the acceptance announcement.
	chat, err := f.chatRepo.GetOrCreate(context.Background(), &entity.Chat{
		ListingID: "listing-1", BuyerID: "buyer-1", SellerID: "seller-1",
	})
	require.NoError(t, err)

	msgs, _, err := f.chatRepo.GetMessagesByChat(context.Background(), chat.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.MessageTypeSystem, msgs[0].Type)
}

func TestRespondToOfferIdempotentSameDecision(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	first, err := f.uc.RespondToOffer(context.Background(), "seller-1", offer.ID, DecisionAccept)
	require.NoError(t, err)

	// The same decision retried from another device returns the terminal
	// state instead of erroring.
	second, err := f.uc.RespondToOffer(context.Background(), "seller-1", offer.ID, DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ID, second.ID)
}

func TestRespondToOfferConflictingDecision(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	_, err := f.uc.RespondToOffer(context.Background(), "seller-1", offer.ID, DecisionAccept)
	require.NoError(t, err)

	_, err = f.uc.RespondToOffer(context.Background(), "seller-1", offer.ID, DecisionReject)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "ALREADY_RESOLVED"))

	// The terminal state never flips.
	current, err := f.uc.GetOffer(context.Background(), "seller-1", offer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferStatusAccepted, current.Status)
}

func TestWithdrawOffer(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	_, err := f.uc.WithdrawOffer(context.Background(), "seller-1", offer.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	withdrawn, err := f.uc.WithdrawOffer(context.Background(), "buyer-1", offer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferStatusRejected, withdrawn.Status)

	// Withdrawal frees the buyer to submit again.
	f.submit(t, "buyer-1", 138_000_000)
}

func TestChatGateNoOffer(t *testing.T) {
	f := newOfferFixture(t)

	enabled, err := f.uc.ChatGate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, enabled)

	f.submit(t, "buyer-1", 140_000_000)

	enabled, err = f.uc.ChatGate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, enabled, "pending offer must not open the gate")
}

func TestGetOfferParticipantsOnly(t *testing.T) {
	f := newOfferFixture(t)
	offer := f.submit(t, "buyer-1", 140_000_000)

	_, err := f.uc.GetOffer(context.Background(), "stranger", offer.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestListOffersByRole(t *testing.T) {
	f := newOfferFixture(t)
	f.userRepo.add(&entity.User{ID: "buyer-2", Username: "buyer2"})
	f.submit(t, "buyer-1", 140_000_000)
	f.submit(t, "buyer-2", 130_000_000)

	asSeller, total, err := f.uc.ListOffers(context.Background(), "seller-1", "seller", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, asSeller, 2)

	asBuyer, total, err := f.uc.ListOffers(context.Background(), "buyer-1", "buyer", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, asBuyer, 1)

	_, _, err = f.uc.ListOffers(context.Background(), "buyer-1", "observer", 20, 0)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}
