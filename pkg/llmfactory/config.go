package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config of the LLM providers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the list of preferred model names.
	// Use `default: <model_name>` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models" yaml:"assistant_models"`
}

// ProviderConfig of a LLM provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Type specifies the provider API: GOOGLEAI|ANTHROPIC
	Type            string   `json:"type" yaml:"type" validate:"required"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`

	// Project and Location select Vertex AI for GOOGLEAI providers,
	// authenticated with the Application Default Credentials.
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty" validate:"required_with=Project"`

	// MaxTokens, Temperature, TopK and TopP override the sampling defaults
	// of GOOGLEAI providers when set.
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	TopK        int     `json:"top_k,omitempty" yaml:"top_k,omitempty" validate:"gte=0"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" validate:"gte=0,lte=1"`
	// HarmThreshold of GOOGLEAI providers, for example BLOCK_MEDIUM_AND_ABOVE.
	HarmThreshold string `json:"harm_threshold,omitempty" yaml:"harm_threshold,omitempty"`

	// MaxRetries of ANTHROPIC providers on transient errors.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0"`
}

// FindModel returns the first of the models available on the provider,
// or the default model.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file, environment variables in the file are expanded
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid LLM config: %s", file)
	}
	return cfg, nil
}
