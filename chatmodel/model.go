// Package chatmodel defines the chat context carried through a conversation
// and the errors shared by assistants and tools.
package chatmodel

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrFailedUnmarshalInput is returned by tools when the LLM produced
	// arguments that do not match the tool schema.
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
	// ErrInvalidChatContext is returned when the context has no ChatContext.
	ErrInvalidChatContext = errors.New("invalid chat context")
)

// FewShotExample is an example of a user prompt and the expected completion.
type FewShotExample struct {
	Prompt     string `json:"prompt" yaml:"prompt"`
	Completion string `json:"completion" yaml:"completion"`
}

// FewShotExamples is a list of examples.
type FewShotExamples []FewShotExample
