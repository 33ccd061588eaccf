// Package assistants runs an LLM conversation loop: the system prompt and chat history
// are sent to the model, tool calls it asks for are executed and their results fed back
// until the model answers with text.
package assistants
