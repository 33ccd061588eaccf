package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is Anthropic Claude.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderGoogleAI is Google Gemini API.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
)

// ErrUnsupportedProvider is returned for unknown provider types.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ParseProviderType returns the ProviderType for a case-insensitive name.
func ParseProviderType(s string) (ProviderType, error) {
	switch pt := ProviderType(strings.ToUpper(strings.TrimSpace(s))); pt {
	case ProviderAnthropic, ProviderGoogleAI:
		return pt, nil
	}
	return "", errors.WithMessagef(ErrUnsupportedProvider, "%q", s)
}

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// Model is an interface multi-modal models implement.
type Model interface {
	// GetName returns the default model name.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages. It's the most general interface for multi-modal LLMs that support
	// chat-like interactions.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// CapabilityText is basic text or chat generation
	CapabilityText Capability = 1 << iota
	// CapabilityJSONResponse is JSON response mode
	CapabilityJSONResponse
	// CapabilityFunctionCalling is function/tool calling
	CapabilityFunctionCalling
	// CapabilityMultiToolCalling is several tool calls in one response
	CapabilityMultiToolCalling
	// CapabilitySystemPrompt is system prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderAnthropic: CapabilityText |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderGoogleAI: CapabilityText |
		CapabilitySystemPrompt |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling,
}

// ProviderCapabilities returns the capabilities of the provider.
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports returns true if the provider supports all bits of cap.
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap == cap
}
