package llmfactory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/llms/anthropic"
	"github.com/effective-security/finassist/pkg/llms/googleai"
	"github.com/effective-security/xlog"
	"google.golang.org/genai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the default LLM model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns an LLM model by its provider type: GOOGLEAI, ANTHROPIC
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if the model is not found, it will return the default model.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// AssistantModel returns the model configured for the assistant.
	AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error)
}

// Load returns the factory configured from the file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	assistantModels map[string][]string
	byType          map[llms.ProviderType]llms.Model
	byName          map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:             cfg,
		byType:          make(map[llms.ProviderType]llms.Model),
		byName:          make(map[string]llms.Model),
		assistantModels: make(map[string][]string),
	}

	for k, v := range cfg.AssistantModels {
		f.assistantModels[k] = slices.Clone(v)
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

// CreateLLM creates the model of the provider
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	provType, err := llms.ParseProviderType(cfg.Type)
	if err != nil {
		return nil, err
	}
	switch provType {
	case llms.ProviderAnthropic:
		return newAnthropic(cfg, preferredModels...)
	case llms.ProviderGoogleAI:
		return newGoogleAI(cfg, preferredModels...)
	}
	return nil, errors.WithMessagef(llms.ErrUnsupportedProvider, "%s", cfg.Type)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var opts []anthropic.Option
	model := cfg.FindModel(preferredModels...)
	opts = append(opts, anthropic.WithModel(model))
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, anthropic.WithMaxRetries(cfg.MaxRetries))
	}
	return anthropic.New(opts...)
}

// DetectCredentials returns the Application Default Credentials for Vertex AI.
var DetectCredentials = func() (*auth.Credentials, error) {
	return credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{cloudPlatformScope},
	})
}

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func newGoogleAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var opts []googleai.Option
	model := cfg.FindModel(preferredModels...)
	opts = append(opts, googleai.WithDefaultModel(model))

	if cfg.Project != "" {
		creds, err := DetectCredentials()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to detect credentials for %s", cfg.Name)
		}
		opts = append(opts,
			googleai.WithVertexAI(cfg.Project, cfg.Location),
			googleai.WithCredentials(creds))
	} else if cfg.Token != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.Token))
	}

	if cfg.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, googleai.WithDefaultTemperature(cfg.Temperature))
	}
	if cfg.TopK > 0 {
		opts = append(opts, googleai.WithDefaultTopK(cfg.TopK))
	}
	if cfg.TopP > 0 {
		opts = append(opts, googleai.WithDefaultTopP(cfg.TopP))
	}
	if cfg.HarmThreshold != "" {
		opts = append(opts, googleai.WithHarmThreshold(genai.HarmBlockThreshold(strings.ToUpper(cfg.HarmThreshold))))
	}
	return googleai.NewWithBaseURL(context.Background(), cfg.BaseURL, opts...)
}

// DefaultModel returns the default model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if len(f.cfg.Providers) == 0 || f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}

	return NewLLM(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	typ, err := llms.ParseProviderType(providerType)
	if err != nil {
		return nil, errors.Errorf("provider not found for type: %s", providerType)
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byType[typ]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if t, _ := llms.ParseProviderType(cfg.Type); t == typ {
			model, err := NewLLM(cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"type", cfg.Type,
				"name", cfg.Name)

			f.byType[typ] = model
			return model, nil
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, modelName := range modelNames {
		if client, ok := f.byName[modelName]; ok {
			return client, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				model, err := NewLLM(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewLLM",
						"type", cfg.Type,
						"models", modelNames,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_llm",
					"type", cfg.Type,
					"model", modelName,
					"name", cfg.Name)

				f.byName[modelName] = model
				return model, nil
			}
		}
	}
	return f.DefaultModel()
}

// AssistantModel returns an assistant model by its name.
func (f *factory) AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error) {
	if modelNames, ok := f.assistantModels[assistantName]; ok {
		return f.ModelByName(modelNames...)
	}

	if modelNames, ok := f.assistantModels["default"]; ok {
		return f.ModelByName(modelNames...)
	}

	return f.ModelByName(preferredModels...)
}
