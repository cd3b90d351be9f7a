package entity

import "time"

const (
	ListingStatusActive = "active"
	ListingStatusSold   = "sold"
	ListingStatusDraft  = "draft"
)

// Listing is the read-side view of a car listing. Listing CRUD lives in a
// separate service; the negotiation core only needs price and ownership.
type Listing struct {
	ID        string    `json:"id" firestore:"id"`
	SellerID  string    `json:"seller_id" firestore:"sellerId"`
	Title     string    `json:"title" firestore:"title"`
	Price     float64   `json:"price" firestore:"price"`
	Status    string    `json:"status" firestore:"status"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
