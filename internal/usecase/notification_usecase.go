package usecase

import (
	"context"
	"encoding/json"
	"log"

	"otopasar/internal/domain/repository"
	ws "otopasar/internal/infrastructure/websocket"
	"otopasar/internal/notify"
)

// NotificationUseCase connects the change-feed bridge to the websocket
// surface: while a user is connected, every debounced refresh recomputes
// their unread totals and pushes the fresh badge down the socket.
type NotificationUseCase struct {
	chatRepo  repository.ChatRepository
	bridge    *notify.Bridge
	wsManager *ws.Manager
}

func NewNotificationUseCase(
	chatRepo repository.ChatRepository,
	bridge *notify.Bridge,
	wsManager *ws.Manager,
) *NotificationUseCase {
	return &NotificationUseCase{
		chatRepo:  chatRepo,
		bridge:    bridge,
		wsManager: wsManager,
	}
}

// WatchUser subscribes the user to their change scope. Re-watching the same
// user replaces the previous subscription, so two tabs never double the
// refresh traffic. The caller must Close the subscription on disconnect.
func (uc *NotificationUseCase) WatchUser(ctx context.Context, userID string) *notify.Subscription {
	return uc.bridge.Subscribe(ctx, userID, func(reason notify.Reason) {
		uc.pushUnreadTotal(userID, reason)
	})
}

func (uc *NotificationUseCase) pushUnreadTotal(userID string, reason notify.Reason) {
	total, err := uc.chatRepo.CountUnreadTotal(context.Background(), userID)
	if err != nil {
		log.Printf("pushUnreadTotal Error: Failed to count unread for user %s: %v", userID, err)
		return
	}

	notification := map[string]interface{}{
		"type":   "unread_update",
		"total":  total,
		"reason": reason,
	}
	payload, _ := json.Marshal(notification)
	uc.wsManager.SendToUser(userID, payload)
}
