// Package llms provides a provider-neutral interface to Language Models.
//
// The `llms.go` file contains the Model interface and provider capabilities,
// `message.go` the messages and content parts exchanged with a model,
// and `options.go` the call options.
//
// Each subpackage implements Model for one provider.
package llms
