package entity

import "time"

// User holds profile fields. Phone and Email are private contact fields and
// are only exposed to a counterpart once an offer between the pair has been
// accepted.
type User struct {
	ID        string    `json:"id" firestore:"id"`
	Username  string    `json:"username" firestore:"username"`
	FullName  string    `json:"full_name,omitempty" firestore:"fullName,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty" firestore:"avatarUrl,omitempty"`
	Verified  bool      `json:"verified" firestore:"verified"`
	Phone     string    `json:"phone,omitempty" firestore:"phone,omitempty"`
	Email     string    `json:"email,omitempty" firestore:"email,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
