// Package store keeps the chat history of the assistant,
// keyed by the user and chat IDs of the ChatContext in the context.
package store

import (
	"context"
	"time"

	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "store")

// MaxMessages is the number of messages kept per chat.
const MaxMessages = 50

// DefaultChatTitle is the title of a chat until it is updated.
const DefaultChatTitle = "New Chat"

// ChatInfo describes a chat of a user.
type ChatInfo struct {
	UserID    string         `json:"user_id"`
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []llms.Message `json:"messages,omitempty"`
}

// MessageStore is the chat history of the ChatContext in ctx.
type MessageStore interface {
	// Messages returns the messages of the chat, oldest first.
	Messages(ctx context.Context) []llms.Message
	// Add appends messages to the chat.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset deletes the chat.
	Reset(ctx context.Context) error
	// UpdateChat creates or updates the chat with the title and metadata.
	UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error)
	// ListChats returns the chat IDs of the user.
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns the chat with messages, empty chatID is the current chat.
	GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error)
}

// MessageStoreManager manages chats across users.
type MessageStoreManager interface {
	ListUsers(ctx context.Context) ([]string, error)
	// Cleanup deletes chats of the user not updated within olderThan.
	Cleanup(ctx context.Context, userID string, olderThan time.Duration) (uint32, error)
}

// trim keeps at most MaxMessages messages. A capped history starts at
// a human message so that no tool response is left without its tool call.
func trim(msgs []llms.Message) []llms.Message {
	if len(msgs) < MaxMessages {
		return msgs
	}
	msgs = msgs[len(msgs)-MaxMessages:]
	for i, msg := range msgs {
		if msg.Role == llms.RoleHuman {
			return msgs[i:]
		}
	}
	return nil
}
