package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"otopasar/internal/domain/entity"
	"otopasar/internal/domain/repository"
	"otopasar/pkg/errors"
)

type firestoreOfferRepository struct {
	client *firestore.Client
}

func NewFirestoreOfferRepository(client *firestore.Client) repository.OfferRepository {
	return &firestoreOfferRepository{
		client: client,
	}
}

func (r *firestoreOfferRepository) CreatePending(ctx context.Context, offer *entity.Offer) error {
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}

	now := time.Now()
	offer.Status = entity.OfferStatusPending
	offer.CreatedAt = now
	offer.UpdatedAt = now

	// The uniqueness check and the insert run in one transaction so two
	// devices submitting at once cannot both end up pending.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := r.client.Collection("offers").
			Where("listingId", "==", offer.ListingID).
			Where("buyerId", "==", offer.BuyerID).
			Where("status", "==", entity.OfferStatusPending).
			Limit(1)

		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return errors.Internal("Failed to check for pending offers", err)
		}
		if len(docs) > 0 {
			return errors.DuplicatePendingOffer(offer.ListingID)
		}

		return tx.Set(r.client.Collection("offers").Doc(offer.ID), offer)
	})
	if err != nil {
		if errors.Is(err, "DUPLICATE_PENDING_OFFER") {
			return err
		}
		if errors.Is(err, "INTERNAL_ERROR") {
			return err
		}
		return errors.Internal("Failed to create offer", err)
	}

	return nil
}

func (r *firestoreOfferRepository) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	doc, err := r.client.Collection("offers").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Offer", err)
		}
		return nil, errors.Internal("Failed to get offer", err)
	}

	var offer entity.Offer
	if err := doc.DataTo(&offer); err != nil {
		return nil, errors.Internal("Failed to parse offer data", err)
	}

	return &offer, nil
}

func (r *firestoreOfferRepository) Resolve(ctx context.Context, id string, newStatus string) (*entity.Offer, error) {
	docRef := r.client.Collection("offers").Doc(id)
	var resolved entity.Offer

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Offer", err)
			}
			return errors.Internal("Failed to get offer", err)
		}

		var offer entity.Offer
		if err := doc.DataTo(&offer); err != nil {
			return errors.Internal("Failed to parse offer data", err)
		}

		if offer.Resolved() {
			return errors.AlreadyResolved("Offer is already " + offer.Status)
		}

		offer.Status = newStatus
		offer.UpdatedAt = time.Now()
		resolved = offer

		return tx.Set(docRef, &offer)
	})
	if err != nil {
		log.Printf("Resolve: transaction failed for offer %s: %v", id, err)
		return nil, err
	}

	return &resolved, nil
}

func (r *firestoreOfferRepository) GetLatestByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error) {
	query := r.client.Collection("offers").
		Where("listingId", "==", listingID).
		Where("buyerId", "==", buyerID).
		OrderBy("createdAt", firestore.Desc).
		Limit(1)

	iter := query.Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Offer", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to query offers", err)
	}

	var offer entity.Offer
	if err := doc.DataTo(&offer); err != nil {
		return nil, errors.Internal("Failed to parse offer data", err)
	}

	return &offer, nil
}

func (r *firestoreOfferRepository) ListByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*entity.Offer, int64, error) {
	return r.listByField(ctx, "buyerId", buyerID, limit, offset)
}

func (r *firestoreOfferRepository) ListBySellerID(ctx context.Context, sellerID string, limit, offset int) ([]*entity.Offer, int64, error) {
	return r.listByField(ctx, "sellerId", sellerID, limit, offset)
}

func (r *firestoreOfferRepository) listByField(ctx context.Context, field, value string, limit, offset int) ([]*entity.Offer, int64, error) {
	query := r.client.Collection("offers").
		Where(field, "==", value).
		OrderBy("createdAt", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting offers (%s=%s): %v", field, value, err)
		return nil, 0, errors.Internal("Failed to count offers", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var offers []*entity.Offer

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, errors.Internal("Failed to iterate offers", err)
		}

		var offer entity.Offer
		if err := doc.DataTo(&offer); err != nil {
			return nil, 0, errors.Internal("Failed to parse offer data", err)
		}

		offers = append(offers, &offer)
	}

	return offers, total, nil
}
