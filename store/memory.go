package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/xlog"
)

type memoryChat struct {
	info     ChatInfo
	messages []llms.Message
}

type inMemory struct {
	mu    sync.RWMutex
	chats map[string]map[string]*memoryChat
}

// NewMemoryStore returns a store kept in memory.
func NewMemoryStore() MessageStore {
	return &inMemory{
		chats: make(map[string]map[string]*memoryChat),
	}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "GetUserAndChatID", "err", err.Error())
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if chat := m.chats[userID][chatID]; chat != nil {
		return slices.Clone(chat.messages)
	}
	return nil
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.chat(userID, chatID)
	chat.messages = trim(append(chat.messages, msgs...))
	chat.info.UpdatedAt = time.Now()
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats[userID], chatID)
	return nil
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error) {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.chat(userID, chatID)
	if title != "" {
		chat.info.Title = title
	}
	if metadata != nil {
		if chat.info.Metadata == nil {
			chat.info.Metadata = make(map[string]any)
		}
		maps.Copy(chat.info.Metadata, metadata)
	}
	chat.info.UpdatedAt = time.Now()

	info := chat.info
	info.Metadata = maps.Clone(chat.info.Metadata)
	return &info, nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	userID, _, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.chats[userID])), nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.chat(userID, id)
	info := chat.info
	info.Metadata = maps.Clone(chat.info.Metadata)
	info.Messages = slices.Clone(chat.messages)
	return &info, nil
}

func (m *inMemory) ListUsers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.chats)), nil
}

func (m *inMemory) Cleanup(_ context.Context, userID string, olderThan time.Duration) (uint32, error) {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := uint32(0)
	for id, chat := range m.chats[userID] {
		if chat.info.UpdatedAt.Before(cutoff) {
			delete(m.chats[userID], id)
			deleted++
		}
	}
	return deleted, nil
}

// chat returns the chat, created on first use. Must be called under the lock.
func (m *inMemory) chat(userID, chatID string) *memoryChat {
	chats := m.chats[userID]
	if chats == nil {
		chats = make(map[string]*memoryChat)
		m.chats[userID] = chats
	}
	chat := chats[chatID]
	if chat == nil {
		now := time.Now()
		chat = &memoryChat{
			info: ChatInfo{
				UserID:    userID,
				ChatID:    chatID,
				Title:     DefaultChatTitle,
				CreatedAt: now,
				UpdatedAt: now,
				Metadata:  make(map[string]any),
			},
		}
		chats[chatID] = chat
	}
	return chat
}

var (
	_ MessageStore        = (*inMemory)(nil)
	_ MessageStoreManager = (*inMemory)(nil)
)
