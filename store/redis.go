package store

import (
	"context"
	"encoding/json"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The keys namespace is organized as follows:
// - `<prefix>/chatstore/<userID>/messages/<chatID>` list of JSON messages
// - `<prefix>/chatstore/<userID>/info/<chatID>` JSON chat info
// - `<prefix>/chatstore/<userID>/chats` set of chat IDs of the user

type redisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store kept in Redis, keys are created under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) MessageStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStoreManager returns the manager of the chats kept in Redis under prefix.
func NewRedisStoreManager(client redis.UniversalClient, prefix string) MessageStoreManager {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) messagesKey(userID, chatID string) string {
	return path.Join(m.prefix, "chatstore", userID, "messages", chatID)
}

func (m *redisStore) infoKey(userID, chatID string) string {
	return path.Join(m.prefix, "chatstore", userID, "info", chatID)
}

func (m *redisStore) chatsKey(userID string) string {
	return path.Join(m.prefix, "chatstore", userID, "chats")
}

func (m *redisStore) Messages(ctx context.Context) []llms.Message {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "GetUserAndChatID", "err", err.Error())
		return nil
	}
	return m.messages(ctx, userID, chatID)
}

func (m *redisStore) messages(ctx context.Context, userID, chatID string) []llms.Message {
	data, err := m.client.LRange(ctx, m.messagesKey(userID, chatID), 0, -1).Result()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "LRange", "err", err.Error())
		return nil
	}

	var messages []llms.Message
	for _, item := range data {
		var msg llms.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal message", "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return trim(messages)
}

func (m *redisStore) Add(ctx context.Context, msgs ...llms.Message) error {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	items := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		items = append(items, data)
	}

	key := m.messagesKey(userID, chatID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, items...)
	pipe.LTrim(ctx, key, -MaxMessages, -1)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store message in Redis")
	}

	_, err = m.UpdateChat(ctx, "", nil)
	return err
}

func (m *redisStore) Reset(ctx context.Context) error {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.messagesKey(userID, chatID))
	pipe.Del(ctx, m.infoKey(userID, chatID))
	pipe.SRem(ctx, m.chatsKey(userID), chatID)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to reset chat in Redis")
	}
	return nil
}

func (m *redisStore) UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error) {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	chat, err := m.getChatInfo(ctx, userID, chatID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get chat info")
	}

	if title != "" {
		chat.Title = title
	}
	if metadata != nil {
		if chat.Metadata == nil {
			chat.Metadata = make(map[string]any)
		}
		maps.Copy(chat.Metadata, metadata)
	}
	chat.UpdatedAt = time.Now()

	if err = m.updateChat(ctx, chat, false); err != nil {
		return nil, err
	}
	return chat, nil
}

func (m *redisStore) updateChat(ctx context.Context, chat *ChatInfo, isNew bool) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chat info")
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.infoKey(chat.UserID, chat.ChatID), data, 0)
	if isNew {
		pipe.SAdd(ctx, m.chatsKey(chat.UserID), chat.ChatID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store chat info in Redis")
	}
	return nil
}

func (m *redisStore) ListChats(ctx context.Context) ([]string, error) {
	userID, _, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := m.client.SMembers(ctx, m.chatsKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list chats from Redis")
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *redisStore) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	userID, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	info, err := m.getChatInfo(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	info.Messages = m.messages(ctx, userID, id)
	return info, nil
}

// getChatInfo returns the chat without messages,
// the chat is created if it does not exist.
func (m *redisStore) getChatInfo(ctx context.Context, userID, chatID string) (*ChatInfo, error) {
	data, err := m.client.Get(ctx, m.infoKey(userID, chatID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, errors.Wrap(err, "failed to get chat info from Redis")
		}

		now := time.Now()
		chat := &ChatInfo{
			UserID:    userID,
			ChatID:    chatID,
			Title:     DefaultChatTitle,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  make(map[string]any),
		}
		if err = m.updateChat(ctx, chat, true); err != nil {
			return nil, errors.WithMessage(err, "failed to initialize new chat info")
		}
		return chat, nil
	}

	chat := &ChatInfo{}
	if err = json.Unmarshal([]byte(data), chat); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal chat info")
	}
	return chat, nil
}

func (m *redisStore) ListUsers(ctx context.Context) ([]string, error) {
	root := path.Join(m.prefix, "chatstore")
	iter := m.client.Scan(ctx, 0, root+"/*", 0).Iterator()
	users := make(map[string]struct{})

	for iter.Next(ctx) {
		parts := strings.Split(strings.TrimPrefix(iter.Val(), root+"/"), "/")
		if len(parts) > 0 && parts[0] != "" {
			users[parts[0]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan users from Redis")
	}

	return slices.Sorted(maps.Keys(users)), nil
}

func (m *redisStore) Cleanup(ctx context.Context, userID string, olderThan time.Duration) (uint32, error) {
	chatsKey := m.chatsKey(userID)
	ids, err := m.client.SMembers(ctx, chatsKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list chats from Redis")
	}

	deleted := uint32(0)
	cutoff := time.Now().Add(-olderThan)
	for _, chatID := range ids {
		infoKey := m.infoKey(userID, chatID)
		data, err := m.client.Get(ctx, infoKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return deleted, errors.Wrap(err, "failed to get chat info")
		}

		var chat ChatInfo
		if err := json.Unmarshal([]byte(data), &chat); err != nil {
			return deleted, errors.Wrap(err, "failed to unmarshal chat info")
		}

		if chat.UpdatedAt.Before(cutoff) {
			pipe := m.client.Pipeline()
			pipe.Del(ctx, infoKey)
			pipe.Del(ctx, m.messagesKey(userID, chatID))
			pipe.SRem(ctx, chatsKey, chatID)
			if _, err = pipe.Exec(ctx); err != nil {
				return deleted, errors.Wrap(err, "failed to delete chat from Redis")
			}
			deleted++
		}
	}
	return deleted, nil
}
