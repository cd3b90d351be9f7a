package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// WebSocket message types
const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSendMessage = "send_message"
	MessageTypeRetry       = "retry_message"
	MessageTypeTyping      = "typing"
	MessageTypeJoinRoom    = "join_room"
	MessageTypeLeaveRoom   = "leave_room"
	MessageTypeMarkRead    = "mark_read"
	MessageTypeError       = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type SendMessageData struct {
	TempID  string `json:"temp_id"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type RetryMessageData struct {
	ChatID  string `json:"chat_id"`
	LocalID string `json:"local_id"`
}

type TypingData struct {
	ChatID string `json:"chat_id"`
	Typing bool   `json:"typing"`
}

type RoomData struct {
	ChatID string `json:"chat_id"`
}

type MarkReadData struct {
	ChatID string `json:"chat_id"`
}

// MessageSink consumes inbound client frames. Implemented by the chat use
// case; an interface here keeps the import direction infrastructure -> domain.
type MessageSink interface {
	HandleSendMessage(ctx context.Context, userID string, data SendMessageData)
	HandleRetryMessage(ctx context.Context, userID string, data RetryMessageData)
	HandleTyping(ctx context.Context, userID string, data TypingData)
	HandleMarkRead(ctx context.Context, userID string, data MarkReadData)
	CanJoinRoom(ctx context.Context, userID, chatID string) bool
}

// HandleClientMessage processes one inbound frame.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var wsMessage WSMessage

	if err := m.parse(messageBytes, &wsMessage); err != nil {
		log.Printf("WebSocket: failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "Invalid message format")
		return
	}

	ctx := context.Background()

	switch wsMessage.Type {
	case MessageTypePing:
		m.sendToClient(client, WSMessage{Type: MessageTypePong, Timestamp: now()})

	case MessageTypeSendMessage:
		var data SendMessageData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			m.sendErrorToClient(client, "Invalid send_message payload")
			return
		}
		if m.sink != nil {
			m.sink.HandleSendMessage(ctx, client.UserID, data)
		}

	case MessageTypeRetry:
		var data RetryMessageData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			m.sendErrorToClient(client, "Invalid retry_message payload")
			return
		}
		if m.sink != nil {
			m.sink.HandleRetryMessage(ctx, client.UserID, data)
		}

	case MessageTypeTyping:
		var data TypingData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			return
		}
		if m.sink != nil {
			m.sink.HandleTyping(ctx, client.UserID, data)
		}

	case MessageTypeJoinRoom:
		var data RoomData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			return
		}
		if m.sink != nil && !m.sink.CanJoinRoom(ctx, client.UserID, data.ChatID) {
			m.sendErrorToClient(client, "Not a participant in this chat")
			return
		}
		m.JoinChatRoom(data.ChatID, client)

	case MessageTypeLeaveRoom:
		var data RoomData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			return
		}
		m.LeaveChatRoom(data.ChatID, client)

	case MessageTypeMarkRead:
		var data MarkReadData
		if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
			return
		}
		if m.sink != nil {
			m.sink.HandleMarkRead(ctx, client.UserID, data)
		}

	default:
		log.Printf("WebSocket: unknown message type '%s' from client %s", wsMessage.Type, client.UserID)
	}
}

func (m *Manager) parse(raw []byte, out *WSMessage) error {
	return json.Unmarshal(raw, out)
}

func (m *Manager) sendToClient(client *Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

func (m *Manager) sendErrorToClient(client *Client, message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	m.sendToClient(client, WSMessage{Type: MessageTypeError, Data: data, Timestamp: now()})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
