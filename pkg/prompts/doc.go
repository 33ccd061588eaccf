// Package prompts renders the system prompt templates of the assistants.
//
// Templates use Go text/template with the sprig functions,
// or Jinja2 syntax rendered by gonja.
package prompts
