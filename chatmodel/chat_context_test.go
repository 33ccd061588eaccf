package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatContext_Basics(t *testing.T) {
	t.Parallel()
	c := NewChatContext("u1", "cid", 123)
	require.NotNil(t, c)
	assert.Equal(t, "u1", c.GetUserID())
	assert.Equal(t, "cid", c.GetChatID())
	assert.Equal(t, 123, c.AppData())
	assert.NotEmpty(t, c.RunID())

	c.SetChatID("newid")
	assert.Equal(t, "newid", c.GetChatID())

	val, ok := c.GetMetadata("not-found")
	assert.Nil(t, val)
	assert.False(t, ok)
	c.SetMetadata("foo", 1)
	v, ok := c.GetMetadata("foo")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestNewChatContext_DefaultIDs(t *testing.T) {
	t.Parallel()
	c := NewChatContext("", "", nil)
	require.NotNil(t, c)
	assert.Empty(t, c.GetUserID())
	assert.NotEmpty(t, c.GetChatID())
	assert.NotEmpty(t, c.RunID())
	assert.NotEqual(t, c.GetChatID(), c.RunID())
}

func TestContextPlumbing(t *testing.T) {
	t.Parallel()
	c := NewChatContext("u1", "y", nil)
	ctx := WithChatContext(context.Background(), c)
	assert.Equal(t, c, GetChatContext(ctx))
	assert.Equal(t, "y", GetChatID(ctx))

	newctx, err := SetChatID(ctx, "bar")
	require.NoError(t, err)
	assert.Equal(t, "bar", GetChatContext(newctx).GetChatID())

	user, chat, err := GetUserAndChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user)
	assert.Equal(t, "bar", chat)

	assert.Nil(t, GetChatContext(context.Background()))
	assert.Empty(t, GetChatID(context.Background()))
}

func TestGetSetChatID_Error(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, err := SetChatID(ctx, "fail")
	assert.ErrorIs(t, err, ErrInvalidChatContext)
	_, _, err = GetUserAndChatID(ctx)
	assert.ErrorIs(t, err, ErrInvalidChatContext)
}

func TestNewChatID_Unique(t *testing.T) {
	id1 := NewChatID()
	id2 := NewChatID()
	assert.NotEqual(t, id1, id2)
}
