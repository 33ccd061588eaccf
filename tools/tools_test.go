package tools_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/mocks/mocktools"
	"github.com/effective-security/finassist/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type echoTool struct {
	name string
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes " + t.name }
func (t *echoTool) Parameters() any     { return nil }
func (t *echoTool) Call(_ context.Context, input string) (string, error) {
	return input, nil
}
func (t *echoTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.Description(), t.Call)
}

func TestFind(t *testing.T) {
	list := []tools.ITool{&echoTool{name: "list_expenses_by_user"}, &echoTool{name: "create_expense"}}

	assert.Equal(t, list[1], tools.Find(list, "create_expense"))
	assert.Nil(t, tools.Find(list, "delete_expense"))
	assert.Nil(t, tools.Find(nil, "create_expense"))
	assert.Equal(t, []string{"list_expenses_by_user", "create_expense"}, tools.Names(list))
	assert.Empty(t, tools.Names(nil))
}

func TestGetDescriptions(t *testing.T) {
	res := tools.GetDescriptions(&echoTool{name: "t1"}, &echoTool{name: "t2"})
	assert.Contains(t, res, "```json\n")
	assert.Contains(t, res, `"Name": "t1"`)
	assert.Contains(t, res, `"Description": "echoes t2"`)
}

func TestRegisterMCP(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := mocktools.NewMockMcpServerRegistrator(ctrl)

	gomock.InOrder(
		reg.EXPECT().RegisterTool("t1", "echoes t1", gomock.Any()).Return(nil),
		reg.EXPECT().RegisterTool("t2", "echoes t2", gomock.Any()).Return(nil),
	)
	require.NoError(t, tools.RegisterMCP(reg, &echoTool{name: "t1"}, &echoTool{name: "t2"}))

	reg.EXPECT().RegisterTool("t3", gomock.Any(), gomock.Any()).Return(errors.New("duplicate"))
	err := tools.RegisterMCP(reg, &echoTool{name: "t3"}, &echoTool{name: "t4"})
	assert.EqualError(t, err, "failed to register tool t3: duplicate")
}
