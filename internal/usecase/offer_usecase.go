package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"otopasar/internal/domain/entity"
	"otopasar/internal/domain/repository"
	"otopasar/internal/infrastructure/ratelimit"
	ws "otopasar/internal/infrastructure/websocket"
	"otopasar/pkg/errors"
)

// OfferUseCase owns the negotiation state machine for a listing:
// none -> pending -> accepted|rejected, with accepted and rejected terminal.
// An accepted offer is the gate that unlocks the chat between the pair.
type OfferUseCase struct {
	offerRepo    repository.OfferRepository
	chatRepo     repository.ChatRepository
	listingRepo  repository.ListingRepository
	userRepo     repository.UserRepository
	wsManager    *ws.Manager
	rateLimiter  *ratelimit.RateLimiter
	offerCeiling float64
}

func NewOfferUseCase(
	offerRepo repository.OfferRepository,
	chatRepo repository.ChatRepository,
	listingRepo repository.ListingRepository,
	userRepo repository.UserRepository,
	wsManager *ws.Manager,
	offerCeiling float64,
) *OfferUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &OfferUseCase{
		offerRepo:    offerRepo,
		chatRepo:     chatRepo,
		listingRepo:  listingRepo,
		userRepo:     userRepo,
		wsManager:    wsManager,
		rateLimiter:  rateLimiter,
		offerCeiling: offerCeiling,
	}
}

type SubmitOfferInput struct {
	ListingID string
	Amount    float64
	Message   string
}

const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

func (uc *OfferUseCase) SubmitOffer(ctx context.Context, buyerID string, input SubmitOfferInput) (*entity.Offer, error) {
	allowed, waitTime := uc.rateLimiter.Allow(buyerID, "submit_offer")
	if !allowed {
		log.Printf("SubmitOffer Rate Limited: User %s must wait %v", buyerID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before submitting another offer", waitTime)
	}

	listing, err := uc.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		log.Printf("SubmitOffer Error: Listing %s not found: %v", input.ListingID, err)
		return nil, errors.NotFound("Listing", err)
	}

	if listing.SellerID == buyerID {
		return nil, errors.BadRequest("You cannot make an offer on your own listing", nil)
	}
	if listing.Status != entity.ListingStatusActive {
		return nil, errors.BadRequest("Listing is no longer available", nil)
	}

	if input.Amount <= 0 {
		return nil, errors.InvalidAmount("Offer amount must be greater than zero")
	}
	if uc.offerCeiling > 0 && input.Amount > listing.Price*uc.offerCeiling {
		return nil, errors.InvalidAmount(fmt.Sprintf("Offer amount exceeds %.1fx the asking price", uc.offerCeiling))
	}

	offer := &entity.Offer{
		ListingID: input.ListingID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		Amount:    input.Amount,
		Message:   input.Message,
	}

	// The repository rejects with DUPLICATE_PENDING_OFFER while an
	// unresolved offer from this buyer exists; the buyer must withdraw
	// first if they want to change the amount.
	if err := uc.offerRepo.CreatePending(ctx, offer); err != nil {
		return nil, err
	}

	uc.broadcastOfferEvent("offer_received", offer, listing.SellerID)

	return offer, nil
}

// RespondToOffer resolves a pending offer. Repeating the same decision on an
// already-resolved offer returns the terminal state instead of erroring, so
// a seller acting from two devices can retry safely.
func (uc *OfferUseCase) RespondToOffer(ctx context.Context, sellerID, offerID, decision string) (*entity.Offer, error) {
	var target string
	switch decision {
	case DecisionAccept:
		target = entity.OfferStatusAccepted
	case DecisionReject:
		target = entity.OfferStatusRejected
	default:
		return nil, errors.BadRequest("Decision must be accept or reject", nil)
	}

	offer, err := uc.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	if offer.SellerID != sellerID {
		log.Printf("RespondToOffer Error: User %s does not own listing %s", sellerID, offer.ListingID)
		return nil, errors.Forbidden("Only the listing owner can respond to this offer", nil)
	}

	resolved, err := uc.resolveIdempotent(ctx, offer, target)
	if err != nil {
		return nil, err
	}

	if resolved.Status == entity.OfferStatusAccepted {
		uc.unlockChat(ctx, resolved)
	}

	uc.broadcastOfferEvent("offer_update", resolved, resolved.BuyerID)
	uc.broadcastOfferEvent("offer_update", resolved, resolved.SellerID)

	return resolved, nil
}

// WithdrawOffer lets the buyer retract a pending offer. Withdrawal is
// recorded as a rejection; the buyer may submit a fresh offer afterwards.
func (uc *OfferUseCase) WithdrawOffer(ctx context.Context, buyerID, offerID string) (*entity.Offer, error) {
	offer, err := uc.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	if offer.BuyerID != buyerID {
		return nil, errors.Forbidden("Only the offer's buyer can withdraw it", nil)
	}

	resolved, err := uc.resolveIdempotent(ctx, offer, entity.OfferStatusRejected)
	if err != nil {
		return nil, err
	}

	uc.broadcastOfferEvent("offer_update", resolved, resolved.SellerID)

	return resolved, nil
}

// resolveIdempotent applies the terminal transition, treating a lost race
// against an identical decision as success.
func (uc *OfferUseCase) resolveIdempotent(ctx context.Context, offer *entity.Offer, target string) (*entity.Offer, error) {
	if offer.Resolved() {
		if offer.Status == target {
			return offer, nil
		}
		return nil, errors.AlreadyResolved("Offer is already " + offer.Status)
	}

	resolved, err := uc.offerRepo.Resolve(ctx, offer.ID, target)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, "ALREADY_RESOLVED") {
		return nil, err
	}

	// Someone else resolved it between our read and the transaction.
	current, getErr := uc.offerRepo.GetByID(ctx, offer.ID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == target {
		return current, nil
	}
	return nil, errors.AlreadyResolved("Offer is already " + current.Status)
}

// unlockChat materializes the thread for the triple and announces the
// acceptance inside it. Chat creation is idempotent, so an accept retried
// from a second device lands on the same thread.
func (uc *OfferUseCase) unlockChat(ctx context.Context, offer *entity.Offer) {
	chat, err := uc.chatRepo.GetOrCreate(ctx, &entity.Chat{
		ListingID: offer.ListingID,
		BuyerID:   offer.BuyerID,
		SellerID:  offer.SellerID,
	})
	if err != nil {
		log.Printf("unlockChat Error: Failed to create chat for offer %s: %v", offer.ID, err)
		return
	}

	message := &entity.Message{
		ChatID:     chat.ID,
		SenderID:   "system",
		ReceiverID: offer.BuyerID,
		Content:    fmt.Sprintf("Offer of %s accepted. You can now chat with each other.", formatPrice(offer.Amount)),
		Type:       entity.MessageTypeSystem,
		Seen:       true,
	}
	if err := uc.chatRepo.CreateMessage(ctx, message); err != nil {
		log.Printf("unlockChat Error: Failed to send system message for chat %s: %v", chat.ID, err)
	} else {
		chat.LastMessageID = message.ID
		chat.LastMessage = message.Content
		chat.LastMessageAt = message.CreatedAt
		if err := uc.chatRepo.Update(ctx, chat); err != nil {
			log.Printf("unlockChat Error: Failed to update chat %s: %v", chat.ID, err)
		}
	}

	notification := map[string]interface{}{
		"type":       "chat_unlocked",
		"chat_id":    chat.ID,
		"listing_id": offer.ListingID,
		"offer_id":   offer.ID,
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(offer.BuyerID, payload)
	uc.wsManager.SendToUser(offer.SellerID, payload)
}

// ChatGate reports whether the chat between the pair is usable: true iff
// the latest offer for (listing, buyer) is accepted. Callers re-check on
// every render; the state can change out-of-band from another device.
func (uc *OfferUseCase) ChatGate(ctx context.Context, listingID, buyerID string) (bool, error) {
	latest, err := uc.offerRepo.GetLatestByListingAndBuyer(ctx, listingID, buyerID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return false, nil
		}
		return false, err
	}

	return latest.Status == entity.OfferStatusAccepted, nil
}

func (uc *OfferUseCase) GetOffer(ctx context.Context, userID, offerID string) (*entity.Offer, error) {
	offer, err := uc.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	if offer.BuyerID != userID && offer.SellerID != userID {
		return nil, errors.Forbidden("You are not a party to this offer", nil)
	}

	return offer, nil
}

// ListOffers returns the user's offers as buyer or as seller, newest first.
func (uc *OfferUseCase) ListOffers(ctx context.Context, userID, role string, limit, offset int) ([]*entity.Offer, int64, error) {
	switch role {
	case "buyer":
		return uc.offerRepo.ListByBuyerID(ctx, userID, limit, offset)
	case "seller":
		return uc.offerRepo.ListBySellerID(ctx, userID, limit, offset)
	default:
		return nil, 0, errors.BadRequest("Role must be buyer or seller", nil)
	}
}

func (uc *OfferUseCase) broadcastOfferEvent(eventType string, offer *entity.Offer, recipientID string) {
	notification := map[string]interface{}{
		"type":       eventType,
		"offer_id":   offer.ID,
		"listing_id": offer.ListingID,
		"buyer_id":   offer.BuyerID,
		"seller_id":  offer.SellerID,
		"amount":     offer.Amount,
		"status":     offer.Status,
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(recipientID, payload)
}
