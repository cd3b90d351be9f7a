package repository

import (
	"context"

	"otopasar/internal/domain/entity"
)

type ChatRepository interface {
	// GetOrCreate resolves the single chat for chat's (listing, buyer,
	// seller) triple, creating it when absent. Concurrent calls for the
	// same triple converge on the same chat id.
	GetOrCreate(ctx context.Context, chat *entity.Chat) (*entity.Chat, error)

	GetByID(ctx context.Context, id string) (*entity.Chat, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Chat, int64, error)
	Update(ctx context.Context, chat *entity.Chat) error

	// Message methods
	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessagesByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error)

	// MarkMessagesSeen flips seen=true on every unseen message in the chat
	// addressed to userID and reports how many were flipped. Idempotent.
	MarkMessagesSeen(ctx context.Context, chatID, userID string) (int, error)

	CountUnread(ctx context.Context, chatID, userID string) (int64, error)
	CountUnreadTotal(ctx context.Context, userID string) (int64, error)
}
