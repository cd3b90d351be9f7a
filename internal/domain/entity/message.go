package entity

import "time"

const (
	MessageTypeText      = "text"
	MessageTypeSystem    = "system"
	MessageTypeTestDrive = "test_drive"
)

// Message is one unit of communication inside a chat. ID and CreatedAt are
// assigned by the store; Seen flips false -> true exactly once.
type Message struct {
	ID         string    `json:"id" firestore:"id"`
	ChatID     string    `json:"chat_id" firestore:"chatId"`
	SenderID   string    `json:"sender_id" firestore:"senderId"`
	ReceiverID string    `json:"receiver_id" firestore:"receiverId"`
	Content    string    `json:"content" firestore:"content"`
	Type       string    `json:"type" firestore:"type"`
	Seen       bool      `json:"seen" firestore:"seen"`
	CreatedAt  time.Time `json:"created_at" firestore:"createdAt"`
}
