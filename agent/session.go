package agent

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/callbacks"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/xlog"
)

// Answer is the result of one question.
type Answer struct {
	Text string
	// Stats and Transcript are set when the session has a Scratchpad.
	Stats      *callbacks.RunStats
	Transcript []byte
}

// Session is a chat of a user with the assistant,
// all the questions share the chat ID.
type Session struct {
	assistant  assistants.IAssistant
	userID     string
	chatID     string
	scratchpad *callbacks.Scratchpad
}

// NewSession returns a new chat session.
// The scratchpad, if not nil, must be registered as a callback of the assistant.
func NewSession(assistant assistants.IAssistant, userID string, scratchpad *callbacks.Scratchpad) *Session {
	return &Session{
		assistant:  assistant,
		userID:     userID,
		chatID:     chatmodel.NewChatID(),
		scratchpad: scratchpad,
	}
}

// ChatID returns the ID of the chat.
func (s *Session) ChatID() string {
	return s.chatID
}

// Ask sends the question to the assistant and returns the answer.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is empty")
	}

	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(s.userID, s.chatID, nil))
	if s.scratchpad != nil {
		s.scratchpad.StartRun(ctx)
	}

	resp, err := s.assistant.Call(ctx, &assistants.CallInput{Input: question})

	answer := &Answer{}
	if s.scratchpad != nil {
		answer.Stats, answer.Transcript = s.scratchpad.EndRun(ctx)
	}
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"chat_id", s.chatID,
			"err", err.Error())
		return answer, err
	}
	answer.Text = assistants.Content(resp)
	return answer, nil
}
