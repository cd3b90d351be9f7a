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

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

// ChatDocID derives the chat document id from the (listing, buyer, seller)
// triple. Deterministic ids make GetOrCreate race-free: concurrent creates
// target the same document and the transaction keeps the first write.
func ChatDocID(listingID, buyerID, sellerID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(listingID+"|"+buyerID+"|"+sellerID)).String()
}

func (r *firestoreChatRepository) GetOrCreate(ctx context.Context, chat *entity.Chat) (*entity.Chat, error) {
	chat.ID = ChatDocID(chat.ListingID, chat.BuyerID, chat.SellerID)
	docRef := r.client.Collection("chats").Doc(chat.ID)

	var result entity.Chat
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err == nil {
			return doc.DataTo(&result)
		}
		if status.Code(err) != codes.NotFound {
			return errors.Internal("Failed to get chat", err)
		}

		now := time.Now()
		chat.Status = entity.ChatStatusActive
		chat.CreatedAt = now
		chat.UpdatedAt = now
		chat.LastMessageAt = now
		if chat.UnreadCount == nil {
			chat.UnreadCount = make(map[string]int)
		}
		result = *chat

		return tx.Set(docRef, chat)
	})
	if err != nil {
		log.Printf("GetOrCreate: transaction failed for chat %s: %v", chat.ID, err)
		if errors.Is(err, "INTERNAL_ERROR") {
			return nil, err
		}
		return nil, errors.Internal("Failed to get or create chat", err)
	}

	return &result, nil
}

func (r *firestoreChatRepository) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	doc, err := r.client.Collection("chats").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Chat", err)
		}
		return nil, errors.Internal("Failed to get chat", err)
	}

	var chat entity.Chat
	if err := doc.DataTo(&chat); err != nil {
		return nil, errors.Internal("Failed to parse chat data", err)
	}

	return &chat, nil
}

func (r *firestoreChatRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Chat, int64, error) {
	// A user appears either as buyer or as seller; Firestore has no OR
	// filter across fields in this client, so run both queries and merge.
	buyerChats, err := r.listByField(ctx, "buyerId", userID)
	if err != nil {
		return nil, 0, err
	}
	sellerChats, err := r.listByField(ctx, "sellerId", userID)
	if err != nil {
		return nil, 0, err
	}

	chats := append(buyerChats, sellerChats...)
	sortChatsByLastMessage(chats)

	total := int64(len(chats))

	if offset > 0 {
		if offset >= len(chats) {
			return nil, total, nil
		}
		chats = chats[offset:]
	}
	if limit > 0 && limit < len(chats) {
		chats = chats[:limit]
	}

	return chats, total, nil
}

func (r *firestoreChatRepository) listByField(ctx context.Context, field, value string) ([]*entity.Chat, error) {
	iter := r.client.Collection("chats").Where(field, "==", value).Documents(ctx)
	var chats []*entity.Chat

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating chats (%s=%s): %v", field, value, err)
			return nil, errors.Internal("Failed to iterate chats", err)
		}

		var chat entity.Chat
		if err := doc.DataTo(&chat); err != nil {
			return nil, errors.Internal("Failed to parse chat data", err)
		}

		chats = append(chats, &chat)
	}

	return chats, nil
}

func sortChatsByLastMessage(chats []*entity.Chat) {
	for i := 1; i < len(chats); i++ {
		for j := i; j > 0 && chats[j].LastMessageAt.After(chats[j-1].LastMessageAt); j-- {
			chats[j], chats[j-1] = chats[j-1], chats[j]
		}
	}
}

func (r *firestoreChatRepository) Update(ctx context.Context, chat *entity.Chat) error {
	chat.UpdatedAt = time.Now()

	_, err := r.client.Collection("chats").Doc(chat.ID).Set(ctx, chat)
	if err != nil {
		return errors.Internal("Failed to update chat", err)
	}

	return nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	message.CreatedAt = time.Now()

	_, err := r.client.Collection("chats").Doc(message.ChatID).Collection("messages").Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetMessagesByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.client.Collection("chats").Doc(chatID).Collection("messages").OrderBy("createdAt", firestore.Asc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting messages for chat %s: %v", chatID, err)
		return nil, 0, errors.Internal("Failed to count messages for chat", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for chat %s: %v", chatID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreChatRepository) MarkMessagesSeen(ctx context.Context, chatID, userID string) (int, error) {
	query := r.client.Collection("chats").Doc(chatID).Collection("messages").
		Where("receiverId", "==", userID).
		Where("seen", "==", false)

	iter := query.Documents(ctx)
	flipped := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return flipped, errors.Internal("Failed to iterate unseen messages", err)
		}

		_, err = doc.Ref.Update(ctx, []firestore.Update{
			{Path: "seen", Value: true},
		})
		if err != nil {
			log.Printf("MarkMessagesSeen: failed to flip message %s in chat %s: %v", doc.Ref.ID, chatID, err)
			return flipped, errors.Internal("Failed to mark message seen", err)
		}
		flipped++
	}

	return flipped, nil
}

func (r *firestoreChatRepository) CountUnread(ctx context.Context, chatID, userID string) (int64, error) {
	docs, err := r.client.Collection("chats").Doc(chatID).Collection("messages").
		Where("receiverId", "==", userID).
		Where("seen", "==", false).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}

	return int64(len(docs)), nil
}

func (r *firestoreChatRepository) CountUnreadTotal(ctx context.Context, userID string) (int64, error) {
	docs, err := r.client.CollectionGroup("messages").
		Where("receiverId", "==", userID).
		Where("seen", "==", false).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}

	return int64(len(docs)), nil
}
