package handler

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	ws "otopasar/internal/infrastructure/websocket"
	"otopasar/internal/usecase"
	"otopasar/pkg/errors"
)

type WebSocketHandler struct {
	wsManager  *ws.Manager
	authClient *auth.Client
	notifier   *usecase.NotificationUseCase
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authClient *auth.Client, notifier *usecase.NotificationUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:  wsManager,
		authClient: authClient,
		notifier:   notifier,
	}
}

// HandleWebSocket authenticates via the token query param (browsers cannot
// set headers on a websocket dial), upgrades the connection, and ties a
// change-feed subscription to its lifetime.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	idToken := c.QueryParam("token")
	if idToken == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	token, err := h.authClient.VerifyIDToken(c.Request().Context(), idToken)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}
	userID := token.UID

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.wsManager.Register <- client

	sub := h.notifier.WatchUser(context.Background(), userID)

	go client.WritePump()
	go func() {
		client.ReadPump(h.wsManager)
		sub.Close()
	}()

	return nil
}
