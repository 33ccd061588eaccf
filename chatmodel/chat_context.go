package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ChatContext is the context of a conversation with the agent:
// the user the records belong to, the chat and the current run.
type ChatContext interface {
	// GetUserID returns the finance user ID
	GetUserID() string
	GetChatID() string
	SetChatID(chatID string)
	// RunID is unique per created context
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	userID   string
	runID    string
	appData  any
	metadata sync.Map

	lock   sync.RWMutex
	chatID string
}

func (c *chatContext) GetUserID() string {
	return c.userID
}

func (c *chatContext) GetChatID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.chatID
}

func (c *chatContext) SetChatID(chatID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a new ChatContext,
// empty chatID is replaced with a new ID.
func NewChatContext(userID, chatID string, appData any) ChatContext {
	return &chatContext{
		userID:  userID,
		chatID:  values.StringsCoalesce(chatID, NewChatID()),
		runID:   NewChatID(),
		appData: appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.GetChatID()
	}
	return ""
}

// SetChatID sets the chat ID of the ChatContext in ctx.
func SetChatID(ctx context.Context, chatID string) (context.Context, error) {
	cc := GetChatContext(ctx)
	if cc == nil {
		return ctx, errors.WithStack(ErrInvalidChatContext)
	}
	cc.SetChatID(chatID)
	return ctx, nil
}

// GetUserAndChatID returns the user and chat IDs from the context.
func GetUserAndChatID(ctx context.Context) (userID, chatID string, err error) {
	cc := GetChatContext(ctx)
	if cc == nil {
		return "", "", errors.WithStack(ErrInvalidChatContext)
	}
	return cc.GetUserID(), cc.GetChatID(), nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
