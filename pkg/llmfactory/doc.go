// Package llmfactory creates LLM models from a YAML configuration of providers,
// and selects a model by provider type, model name or assistant name.
package llmfactory
