package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"otopasar/internal/delivery"
	"otopasar/internal/domain/entity"
	"otopasar/internal/domain/repository"
	"otopasar/internal/infrastructure/ratelimit"
	ws "otopasar/internal/infrastructure/websocket"
	"otopasar/pkg/errors"
)

// ChatUseCase is the session registry: one chat per (listing, buyer, seller)
// triple, participant-scoped access, read tracking, and the optimistic send
// path through the delivery pipeline. It also consumes inbound websocket
// frames as the manager's MessageSink.
type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	offerRepo   repository.OfferRepository
	listingRepo repository.ListingRepository
	userRepo    repository.UserRepository
	pipeline    *delivery.Pipeline
	wsManager   *ws.Manager
	rateLimiter *ratelimit.RateLimiter
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	offerRepo repository.OfferRepository,
	listingRepo repository.ListingRepository,
	userRepo repository.UserRepository,
	pipeline *delivery.Pipeline,
	wsManager *ws.Manager,
) *ChatUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ChatUseCase{
		chatRepo:    chatRepo,
		offerRepo:   offerRepo,
		listingRepo: listingRepo,
		userRepo:    userRepo,
		pipeline:    pipeline,
		wsManager:   wsManager,
		rateLimiter: rateLimiter,
	}
}

// PartyResponse is the counterpart's profile as shown inside a chat. Phone
// and Email are present only once an offer between the pair is accepted.
type PartyResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Verified  bool   `json:"verified"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

type ChatResponse struct {
	*entity.Chat
	Listing     *entity.Listing `json:"listing,omitempty"`
	OtherParty  *PartyResponse  `json:"other_party,omitempty"`
	SendEnabled bool            `json:"send_enabled"`
}

type GetOrCreateChatInput struct {
	ListingID string `json:"listing_id" validate:"required"`
	BuyerID   string `json:"buyer_id,omitempty"`
}

// GetOrCreateChat resolves the thread for the triple, creating it when
// absent. The caller is the buyer unless they own the listing, in which case
// BuyerID names the counterpart. A blocked thread is returned as-is; callers
// render the blocked state rather than an error toast.
func (uc *ChatUseCase) GetOrCreateChat(ctx context.Context, userID string, input GetOrCreateChatInput) (*ChatResponse, error) {
	allowed, waitTime := uc.rateLimiter.Allow(userID, "create_chat")
	if !allowed {
		log.Printf("GetOrCreateChat Rate Limited: User %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before opening another chat", waitTime)
	}

	listing, err := uc.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		log.Printf("GetOrCreateChat Error: Listing %s unavailable: %v", input.ListingID, err)
		return nil, errors.ChatUnavailable("Listing no longer exists", err)
	}

	buyerID := userID
	if userID == listing.SellerID {
		if input.BuyerID == "" {
			return nil, errors.BadRequest("buyer_id is required when opening a chat on your own listing", nil)
		}
		buyerID = input.BuyerID
	}
	if buyerID == listing.SellerID {
		return nil, errors.BadRequest("A chat needs two distinct parties", nil)
	}

	counterpartID := listing.SellerID
	if userID == listing.SellerID {
		counterpartID = buyerID
	}
	if _, err := uc.userRepo.GetByID(ctx, counterpartID); err != nil {
		log.Printf("GetOrCreateChat Error: Counterpart %s unavailable: %v", counterpartID, err)
		return nil, errors.ChatUnavailable("The other party's account no longer exists", err)
	}

	chat, err := uc.chatRepo.GetOrCreate(ctx, &entity.Chat{
		ListingID: input.ListingID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
	})
	if err != nil {
		return nil, err
	}

	return uc.buildChatResponse(ctx, chat, userID, listing)
}

func (uc *ChatUseCase) GetChat(ctx context.Context, userID, chatID string) (*ChatResponse, error) {
	chat, err := uc.requireParticipant(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return uc.buildChatResponse(ctx, chat, userID, nil)
}

// GetUserChats lists the user's threads ordered by latest activity.
func (uc *ChatUseCase) GetUserChats(ctx context.Context, userID string, limit, offset int) ([]*ChatResponse, int64, error) {
	chats, total, err := uc.chatRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*ChatResponse, 0, len(chats))
	for _, chat := range chats {
		resp, err := uc.buildChatResponse(ctx, chat, userID, nil)
		if err != nil {
			log.Printf("GetUserChats Warning: Skipping chat %s: %v", chat.ID, err)
			continue
		}
		responses = append(responses, resp)
	}

	return responses, total, nil
}

// ResolveOtherParty returns the counterpart's profile. Contact fields ride
// along only when the pair's latest offer is accepted; the check runs on
// every call because acceptance can happen out-of-band.
func (uc *ChatUseCase) ResolveOtherParty(ctx context.Context, chat *entity.Chat, userID string) (*PartyResponse, error) {
	otherID := chat.OtherParty(userID)
	if otherID == "" {
		return nil, errors.Forbidden("You are not a participant in this chat", nil)
	}

	user, err := uc.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return nil, errors.ChatUnavailable("The other party's account no longer exists", err)
	}

	resp := &PartyResponse{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		Verified:  user.Verified,
	}

	if uc.gateAccepted(ctx, chat.ListingID, chat.BuyerID) {
		resp.Phone = user.Phone
		resp.Email = user.Email
	}

	return resp, nil
}

type SendMessageInput struct {
	ChatID  string `json:"chat_id" validate:"required"`
	Content string `json:"content" validate:"required"`
	Type    string `json:"type"`
}

// SendMessage admits a message into the delivery pipeline. The returned
// handle identifies the optimistic entry; confirmation or failure arrives
// through the pipeline sink.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (delivery.Handle, error) {
	allowed, waitTime := uc.rateLimiter.Allow(userID, "send_message")
	if !allowed {
		return delivery.Handle{}, errors.TooManyRequests("Rate limit exceeded. Please slow down", waitTime)
	}

	chat, err := uc.requireParticipant(ctx, userID, input.ChatID)
	if err != nil {
		return delivery.Handle{}, err
	}

	if chat.Status == entity.ChatStatusBlocked {
		return delivery.Handle{}, errors.ChatBlocked(chat.ID)
	}
	if !uc.gateAccepted(ctx, chat.ListingID, chat.BuyerID) {
		return delivery.Handle{}, errors.Forbidden("Chat is locked until an offer is accepted", nil)
	}

	msgType := input.Type
	if msgType == "" {
		msgType = entity.MessageTypeText
	}
	switch msgType {
	case entity.MessageTypeText, entity.MessageTypeTestDrive:
	default:
		return delivery.Handle{}, errors.BadRequest("Unsupported message type", nil)
	}

	receiverID := chat.OtherParty(userID)
	handle := uc.pipeline.Send(chat.ID, userID, receiverID, input.Content, msgType)

	return handle, nil
}

// RetryMessage re-queues a failed optimistic entry.
func (uc *ChatUseCase) RetryMessage(ctx context.Context, userID, chatID, localID string) error {
	if _, err := uc.requireParticipant(ctx, userID, chatID); err != nil {
		return err
	}
	return uc.pipeline.Retry(chatID, localID)
}

// HandleDeliveryUpdate is the pipeline sink: every entry state change fans
// out to the chat room, and a confirmation additionally updates the chat's
// preview fields and the receiver's unread counter.
func (uc *ChatUseCase) HandleDeliveryUpdate(chatID string, entry delivery.Entry) {
	notification := map[string]interface{}{
		"type":     "message_update",
		"chat_id":  chatID,
		"local_id": entry.LocalID,
		"state":    entry.State,
		"message":  entry.Message,
	}
	if entry.Err != nil {
		notification["error"] = entry.Err.Error()
	}
	payload, _ := json.Marshal(notification)

	uc.wsManager.SendToUser(entry.Message.SenderID, payload)
	if entry.State == delivery.StateConfirmed {
		uc.wsManager.SendToChatRoom(chatID, payload, entry.Message.SenderID)
	}

	if entry.State != delivery.StateConfirmed {
		return
	}

	ctx := context.Background()
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		log.Printf("HandleDeliveryUpdate Error: Chat %s not found: %v", chatID, err)
		return
	}

	chat.LastMessageID = entry.Message.ID
	chat.LastMessage = entry.Message.Content
	chat.LastMessageAt = entry.Message.CreatedAt
	if chat.UnreadCount == nil {
		chat.UnreadCount = make(map[string]int)
	}
	chat.UnreadCount[entry.Message.ReceiverID]++
	if err := uc.chatRepo.Update(ctx, chat); err != nil {
		log.Printf("HandleDeliveryUpdate Error: Failed to update chat %s: %v", chatID, err)
	}

	uc.notifyChatListUpdate(entry.Message.ReceiverID, chat)
}

// GetChatMessages returns the durable messages ascending, followed by the
// chat's unconfirmed local entries so the caller renders one merged timeline.
func (uc *ChatUseCase) GetChatMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]*entity.Message, []delivery.Entry, int64, error) {
	if _, err := uc.requireParticipant(ctx, userID, chatID); err != nil {
		return nil, nil, 0, err
	}

	messages, total, err := uc.chatRepo.GetMessagesByChat(ctx, chatID, limit, offset)
	if err != nil {
		return nil, nil, 0, err
	}

	var local []delivery.Entry
	for _, e := range uc.pipeline.Snapshot(chatID) {
		if e.State != delivery.StateConfirmed && e.Message.SenderID == userID {
			local = append(local, e)
		}
	}

	return messages, local, total, nil
}

// MarkChatAsRead flips seen on every message addressed to the user and zeroes
// their unread counter. Safe to call repeatedly; already-seen messages never
// revert.
func (uc *ChatUseCase) MarkChatAsRead(ctx context.Context, userID, chatID string) error {
	chat, err := uc.requireParticipant(ctx, userID, chatID)
	if err != nil {
		return err
	}

	flipped, err := uc.chatRepo.MarkMessagesSeen(ctx, chatID, userID)
	if err != nil {
		return err
	}

	if chat.UnreadCount == nil {
		chat.UnreadCount = make(map[string]int)
	}
	if chat.UnreadCount[userID] != 0 || flipped > 0 {
		chat.UnreadCount[userID] = 0
		if err := uc.chatRepo.Update(ctx, chat); err != nil {
			return err
		}
	}

	if flipped > 0 {
		notification := map[string]interface{}{
			"type":    "messages_read",
			"chat_id": chatID,
			"user_id": userID,
		}
		payload, _ := json.Marshal(notification)
		uc.wsManager.SendToChatRoom(chatID, payload, userID)
	}

	return nil
}

// UnreadCount derives one chat's badge for the user from message state.
func (uc *ChatUseCase) UnreadCount(ctx context.Context, userID, chatID string) (int64, error) {
	if _, err := uc.requireParticipant(ctx, userID, chatID); err != nil {
		return 0, err
	}
	return uc.chatRepo.CountUnread(ctx, chatID, userID)
}

// TotalUnread derives the user's aggregate badge across all chats.
func (uc *ChatUseCase) TotalUnread(ctx context.Context, userID string) (int64, error) {
	return uc.chatRepo.CountUnreadTotal(ctx, userID)
}

// BlockChat freezes the thread. Either participant may block; messages are
// rejected with CHAT_BLOCKED until the status changes.
func (uc *ChatUseCase) BlockChat(ctx context.Context, userID, chatID string) (*entity.Chat, error) {
	return uc.setStatus(ctx, userID, chatID, entity.ChatStatusBlocked)
}

// ArchiveChat hides the thread from active lists without freezing it.
func (uc *ChatUseCase) ArchiveChat(ctx context.Context, userID, chatID string) (*entity.Chat, error) {
	return uc.setStatus(ctx, userID, chatID, entity.ChatStatusArchived)
}

func (uc *ChatUseCase) setStatus(ctx context.Context, userID, chatID, status string) (*entity.Chat, error) {
	chat, err := uc.requireParticipant(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	if chat.Status == status {
		return chat, nil
	}

	chat.Status = status
	if err := uc.chatRepo.Update(ctx, chat); err != nil {
		return nil, err
	}

	notification := map[string]interface{}{
		"type":    "chat_status",
		"chat_id": chat.ID,
		"status":  status,
		"by":      userID,
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(chat.BuyerID, payload)
	uc.wsManager.SendToUser(chat.SellerID, payload)

	return chat, nil
}

func (uc *ChatUseCase) requireParticipant(ctx context.Context, userID, chatID string) (*entity.Chat, error) {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this chat", nil)
	}
	return chat, nil
}

// gateAccepted reports whether the latest offer for (listing, buyer) is
// accepted. Errors degrade to a closed gate.
func (uc *ChatUseCase) gateAccepted(ctx context.Context, listingID, buyerID string) bool {
	latest, err := uc.offerRepo.GetLatestByListingAndBuyer(ctx, listingID, buyerID)
	if err != nil {
		return false
	}
	return latest.Status == entity.OfferStatusAccepted
}

func (uc *ChatUseCase) buildChatResponse(ctx context.Context, chat *entity.Chat, userID string, listing *entity.Listing) (*ChatResponse, error) {
	resp := &ChatResponse{
		Chat:        chat,
		Listing:     listing,
		SendEnabled: chat.Status != entity.ChatStatusBlocked && uc.gateAccepted(ctx, chat.ListingID, chat.BuyerID),
	}

	if resp.Listing == nil {
		if l, err := uc.listingRepo.GetByID(ctx, chat.ListingID); err == nil {
			resp.Listing = l
		}
	}

	party, err := uc.ResolveOtherParty(ctx, chat, userID)
	if err != nil {
		return nil, err
	}
	resp.OtherParty = party

	return resp, nil
}

func (uc *ChatUseCase) notifyChatListUpdate(userID string, chat *entity.Chat) {
	notification := map[string]interface{}{
		"type":    "chat_list_update",
		"chat_id": chat.ID,
		"preview": chat.LastMessage,
		"at":      chat.LastMessageAt,
		"unread":  chat.UnreadCount[userID],
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(userID, payload)
}

// --- websocket.MessageSink ---

func (uc *ChatUseCase) HandleSendMessage(ctx context.Context, userID string, data ws.SendMessageData) {
	handle, err := uc.SendMessage(ctx, userID, SendMessageInput{
		ChatID:  data.ChatID,
		Content: data.Content,
		Type:    data.Type,
	})
	if err != nil {
		uc.sendWSError(userID, data.ChatID, data.TempID, err)
		return
	}

	// Echo the client's temp id back with the pipeline's local id so the
	// sender can reconcile its optimistic row.
	ack := map[string]interface{}{
		"type":     "message_queued",
		"chat_id":  handle.ChatID,
		"temp_id":  data.TempID,
		"local_id": handle.LocalID,
	}
	payload, _ := json.Marshal(ack)
	uc.wsManager.SendToUser(userID, payload)
}

func (uc *ChatUseCase) HandleRetryMessage(ctx context.Context, userID string, data ws.RetryMessageData) {
	if err := uc.RetryMessage(ctx, userID, data.ChatID, data.LocalID); err != nil {
		uc.sendWSError(userID, data.ChatID, data.LocalID, err)
	}
}

func (uc *ChatUseCase) HandleTyping(ctx context.Context, userID string, data ws.TypingData) {
	allowed, _ := uc.rateLimiter.Allow(userID, "typing")
	if !allowed {
		return
	}
	if _, err := uc.requireParticipant(ctx, userID, data.ChatID); err != nil {
		return
	}

	notification := map[string]interface{}{
		"type":    "typing",
		"chat_id": data.ChatID,
		"user_id": userID,
		"typing":  data.Typing,
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToChatRoom(data.ChatID, payload, userID)
}

func (uc *ChatUseCase) HandleMarkRead(ctx context.Context, userID string, data ws.MarkReadData) {
	if err := uc.MarkChatAsRead(ctx, userID, data.ChatID); err != nil {
		log.Printf("HandleMarkRead Error: %v", err)
	}
}

func (uc *ChatUseCase) CanJoinRoom(ctx context.Context, userID, chatID string) bool {
	_, err := uc.requireParticipant(ctx, userID, chatID)
	return err == nil
}

func (uc *ChatUseCase) sendWSError(userID, chatID, ref string, err error) {
	notification := map[string]interface{}{
		"type":    "error",
		"chat_id": chatID,
		"ref":     ref,
		"message": err.Error(),
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(userID, payload)
}

func formatPrice(amount float64) string {
	return fmt.Sprintf("Rp %.0f", amount)
}
