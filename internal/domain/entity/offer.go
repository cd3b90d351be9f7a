package entity

import "time"

const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// Offer is a buyer's proposed price on a listing. Status moves
// pending -> accepted|rejected and never leaves a terminal state.
type Offer struct {
	ID        string    `json:"id" firestore:"id"`
	ListingID string    `json:"listing_id" firestore:"listingId"`
	BuyerID   string    `json:"buyer_id" firestore:"buyerId"`
	SellerID  string    `json:"seller_id" firestore:"sellerId"`
	Amount    float64   `json:"amount" firestore:"amount"`
	Message   string    `json:"message,omitempty" firestore:"message,omitempty"`
	Status    string    `json:"status" firestore:"status"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (o *Offer) Resolved() bool {
	return o.Status != OfferStatusPending
}
