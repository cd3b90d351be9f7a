package entity

import "time"

const (
	ChatStatusActive   = "active"
	ChatStatusBlocked  = "blocked"
	ChatStatusArchived = "archived"
)

// Chat is the single thread for one (listing, buyer, seller) triple.
// The registry derives the document id from the triple, so two concurrent
// creates converge on the same row.
type Chat struct {
	ID            string         `json:"id" firestore:"id"`
	ListingID     string         `json:"listing_id" firestore:"listingId"`
	BuyerID       string         `json:"buyer_id" firestore:"buyerId"`
	SellerID      string         `json:"seller_id" firestore:"sellerId"`
	Status        string         `json:"status" firestore:"status"`
	LastMessageID string         `json:"last_message_id,omitempty" firestore:"lastMessageId,omitempty"`
	LastMessage   string         `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at" firestore:"lastMessageAt"`
	UnreadCount   map[string]int `json:"unread_count" firestore:"unreadCount"`
	CreatedAt     time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time      `json:"updated_at" firestore:"updatedAt"`
}

func (c *Chat) IsParticipant(userID string) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// OtherParty returns the counterpart's user id, or "" when userID is not
// a participant.
func (c *Chat) OtherParty(userID string) string {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	}
	return ""
}
