package router

import (
	"github.com/labstack/echo/v4"

	"otopasar/internal/adapter/api/handler"
	"otopasar/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	chatHandler := handler.GetChatHandler()

	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate) // All chat endpoints require authentication

	// Chat management
	chatGroup.POST("", chatHandler.CreateChat)                          // POST /v1/chats - Resolve or create the thread
	chatGroup.GET("", chatHandler.GetUserChats)                         // GET /v1/chats - Get user's chats
	chatGroup.GET("/unread-count", chatHandler.GetTotalUnreadCount)     // GET /v1/chats/unread-count - Aggregate badge
	chatGroup.GET("/:id", chatHandler.GetChatByID)                      // GET /v1/chats/:id - Get specific chat
	chatGroup.GET("/:id/unread-count", chatHandler.GetUnreadCount)      // GET /v1/chats/:id/unread-count - Per-chat badge
	chatGroup.PUT("/:id/read", chatHandler.MarkChatAsRead)              // PUT /v1/chats/:id/read - Mark chat as read
	chatGroup.PUT("/:id/block", chatHandler.BlockChat)                  // PUT /v1/chats/:id/block - Freeze the thread
	chatGroup.PUT("/:id/archive", chatHandler.ArchiveChat)              // PUT /v1/chats/:id/archive - Hide the thread

	// Message management
	chatGroup.POST("/:id/messages", chatHandler.SendMessage)                    // POST /v1/chats/:id/messages - Send message
	chatGroup.GET("/:id/messages", chatHandler.GetChatMessages)                 // GET /v1/chats/:id/messages - Get chat messages
	chatGroup.POST("/:id/messages/:localId/retry", chatHandler.RetryMessage)    // POST - Retry a failed message
}
