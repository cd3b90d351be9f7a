package repository

import (
	"context"

	"otopasar/internal/domain/entity"
)

type OfferRepository interface {
	// CreatePending inserts a new pending offer. It fails with
	// DUPLICATE_PENDING_OFFER when an unresolved offer from the same buyer
	// on the same listing already exists; the check and the insert run in
	// one transaction.
	CreatePending(ctx context.Context, offer *entity.Offer) error

	GetByID(ctx context.Context, id string) (*entity.Offer, error)

	// Resolve moves a pending offer to a terminal status. It fails with
	// ALREADY_RESOLVED when the offer is no longer pending; terminal states
	// are linearized by the store and never overwritten.
	Resolve(ctx context.Context, id string, status string) (*entity.Offer, error)

	// GetLatestByListingAndBuyer returns the most recent offer for the
	// pair, pending or terminal.
	GetLatestByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error)

	ListByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*entity.Offer, int64, error)
	ListBySellerID(ctx context.Context, sellerID string, limit, offset int) ([]*entity.Offer, int64, error)
}
