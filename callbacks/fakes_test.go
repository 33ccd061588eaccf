package callbacks

import (
	"context"

	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
)

type fakeAssistant struct{ name string }

func (a *fakeAssistant) Name() string        { return a.name }
func (a *fakeAssistant) Description() string { return "desc" }
func (a *fakeAssistant) Call(context.Context, *assistants.CallInput) (*llms.ContentResponse, error) {
	return nil, nil
}

type fakeTool struct{ name string }

func (t *fakeTool) Name() string                                           { return t.name }
func (t *fakeTool) Description() string                                    { return "desc" }
func (t *fakeTool) Parameters() any                                        { return nil }
func (t *fakeTool) Call(ctx context.Context, input string) (string, error) { return "", nil }

type fakeLLM struct{}

func (fakeLLM) GetName() string                    { return "gemini-2.5-flash" }
func (fakeLLM) GetProviderType() llms.ProviderType { return llms.ProviderGoogleAI }
func (fakeLLM) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, nil
}

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("u1", "chat1", nil)
	return chatmodel.WithChatContext(context.Background(), chatCtx), chatCtx
}
