package handler

import (
	"github.com/labstack/echo/v4"

	"otopasar/internal/usecase"
	"otopasar/pkg/response"
	"otopasar/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
	BuyerID   string `json:"buyer_id"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=text test_drive"`
}

// CreateChat resolves or creates the chat for a listing
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	chat, err := h.chatUseCase.GetOrCreateChat(c.Request().Context(), userID, usecase.GetOrCreateChatInput{
		ListingID: req.ListingID,
		BuyerID:   req.BuyerID,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, chat)
}

// GetUserChats gets all chats for the authenticated user
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	chats, total, err := h.chatUseCase.GetUserChats(c.Request().Context(), userID, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, chats, total, pagination.PageSize, pagination.Offset)
}

// GetChatByID gets a specific chat by ID
func (h *ChatHandler) GetChatByID(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	chat, err := h.chatUseCase.GetChat(c.Request().Context(), userID, chatID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chat)
}

// SendMessage queues a message through the delivery pipeline
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	handle, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ChatID:  chatID,
		Content: req.Content,
		Type:    req.Type,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, handle)
}

// RetryMessage re-queues a failed message by its local id
func (h *ChatHandler) RetryMessage(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")
	localID := c.Param("localId")

	if err := h.chatUseCase.RetryMessage(c.Request().Context(), userID, chatID, localID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{
		"chat_id":  chatID,
		"local_id": localID,
		"state":    "pending",
	})
}

// GetChatMessages returns the confirmed timeline plus the caller's pending
// and failed local entries
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")
	pagination := utils.GetPaginationParams(c)

	messages, local, total, err := h.chatUseCase.GetChatMessages(c.Request().Context(), userID, chatID, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"messages": messages,
		"local":    local,
		"total":    total,
	})
}

// MarkChatAsRead flips seen on everything addressed to the caller
func (h *ChatHandler) MarkChatAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	if err := h.chatUseCase.MarkChatAsRead(c.Request().Context(), userID, chatID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}

// BlockChat freezes the thread
func (h *ChatHandler) BlockChat(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	chat, err := h.chatUseCase.BlockChat(c.Request().Context(), userID, chatID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chat)
}

// ArchiveChat hides the thread from active lists
func (h *ChatHandler) ArchiveChat(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	chat, err := h.chatUseCase.ArchiveChat(c.Request().Context(), userID, chatID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chat)
}

// GetUnreadCount returns one chat's unread badge for the caller
func (h *ChatHandler) GetUnreadCount(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	count, err := h.chatUseCase.UnreadCount(c.Request().Context(), userID, chatID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"chat_id": chatID,
		"unread":  count,
	})
}

// GetTotalUnreadCount returns the caller's aggregate unread badge
func (h *ChatHandler) GetTotalUnreadCount(c echo.Context) error {
	userID := c.Get("uid").(string)

	total, err := h.chatUseCase.TotalUnread(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"total": total,
	})
}
