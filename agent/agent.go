// Package agent builds the finance assistant: an LLM assistant with a
// Portuguese instruction, bound to the expense tools of the MCP server.
package agent

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/expense"
	"github.com/effective-security/finassist/mcpclient"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/prompts"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/finassist/tools/expenses"
	"github.com/effective-security/xlog"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "agent")

const (
	// Name of the assistant.
	Name = "finance_assistant_agent"
	// Description of the assistant.
	Description = "Assistente financeiro que lista e registra as entradas e saídas do usuário e dá dicas financeiras."

	// InputUserID is the prompt input with the ID of the user.
	InputUserID = "user_id"
)

// ErrUserIDRequired is returned when the agent is created without a user ID.
var ErrUserIDRequired = errors.New("USER_ID is required")

// TimeNowFn is used to render today's date in the instruction.
var TimeNowFn = time.Now

//go:embed instruction.tmpl
var instruction string

//go:embed examples.yaml
var examplesYAML []byte

// RecordExample is an utterance and the record expected for it.
type RecordExample struct {
	Prompt string         `yaml:"prompt"`
	Record expense.Record `yaml:"record"`
	Note   string         `yaml:"note"`
}

// Examples are rendered in the instruction.
type Examples struct {
	Records []RecordExample `yaml:"records"`
	Tips    []string        `yaml:"tips"`
}

// LoadExamples returns the embedded examples with userId set to userID.
func LoadExamples(userID string) (*Examples, error) {
	var ex Examples
	if err := yaml.Unmarshal(examplesYAML, &ex); err != nil {
		return nil, errors.Wrap(err, "failed to parse examples")
	}
	for i := range ex.Records {
		ex.Records[i].Record.UserID = userID
	}
	return &ex, nil
}

// InstructionTemplate is the text and syntax of the agent instruction.
type InstructionTemplate struct {
	Text   string
	Format prompts.TemplateFormat
}

// DefaultInstruction returns the embedded instruction.
func DefaultInstruction() InstructionTemplate {
	return InstructionTemplate{
		Text:   instruction,
		Format: prompts.TemplateFormatGoTemplate,
	}
}

// LoadInstruction reads the instruction from the file at location.
// Files with the .j2, .jinja or .jinja2 extension use the Jinja2 syntax,
// other files are Go templates.
// The template is rendered once with the embedded examples to check it.
func LoadInstruction(location string) (InstructionTemplate, error) {
	b, err := os.ReadFile(location)
	if err != nil {
		return InstructionTemplate{}, errors.Wrap(err, "failed to read instruction")
	}

	it := InstructionTemplate{
		Text:   string(b),
		Format: prompts.TemplateFormatGoTemplate,
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".j2", ".jinja", ".jinja2":
		it.Format = prompts.TemplateFormatJinja2
	}

	examples, err := LoadExamples("user")
	if err != nil {
		return InstructionTemplate{}, err
	}
	if _, err = it.Prompt(examples).Format(map[string]any{InputUserID: "user"}); err != nil {
		return InstructionTemplate{}, errors.WithMessagef(err, "invalid instruction %s", location)
	}
	return it, nil
}

// Instruction returns the system prompt template of the agent
// with the embedded instruction.
func Instruction(examples *Examples) prompts.PromptTemplate {
	return DefaultInstruction().Prompt(examples)
}

// Prompt returns the system prompt template.
// The template expects the `user_id` input.
func (t InstructionTemplate) Prompt(examples *Examples) prompts.PromptTemplate {
	p := prompts.NewPromptTemplate(t.Text, []string{InputUserID})
	p.TemplateFormat = t.Format
	p.PartialVariables = map[string]any{
		"today":       func() string { return TimeNowFn().Format(time.DateOnly) },
		"list_tool":   expenses.ListToolName,
		"create_tool": expenses.CreateToolName,
		"examples":    examples,
	}
	return p
}

// ToolsetOptions returns the options to bind the remote expense tools to userID:
// the `user` and `expense_data.userId` arguments are always set to userID.
func ToolsetOptions(userID string) []mcpclient.Option {
	return []mcpclient.Option{
		mcpclient.WithToolFilter(expenses.ListToolName, expenses.CreateToolName),
		mcpclient.WithPinnedArgument(expenses.ListToolName, "user", userID),
		mcpclient.WithPinnedArgument(expenses.CreateToolName, "expense_data."+expense.FieldUserID, userID),
		mcpclient.WithParameters(expenses.CreateToolName, expenses.CreateParameters()),
	}
}

// Connect returns the expense tools of the MCP server at serverURL bound to userID.
func Connect(ctx context.Context, serverURL, userID string, opts ...mcpclient.Option) (*mcpclient.Toolset, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.WithStack(ErrUserIDRequired)
	}
	return mcpclient.NewToolset(ctx, serverURL, append(ToolsetOptions(userID), opts...)...)
}

// New returns the finance assistant for userID, using the tools
// returned by Connect.
func New(llm llms.Model, userID string, toolset []tools.ITool, opts ...assistants.Option) (*assistants.Assistant, error) {
	return NewWithInstruction(llm, userID, toolset, DefaultInstruction(), opts...)
}

// NewWithInstruction is New with the instruction returned by LoadInstruction.
func NewWithInstruction(llm llms.Model, userID string, toolset []tools.ITool, instr InstructionTemplate, opts ...assistants.Option) (*assistants.Assistant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.WithStack(ErrUserIDRequired)
	}
	for _, name := range []string{expenses.ListToolName, expenses.CreateToolName} {
		if tools.Find(toolset, name) == nil {
			return nil, errors.Newf("tool %q is not available", name)
		}
	}

	examples, err := LoadExamples(userID)
	if err != nil {
		return nil, err
	}

	opts = append([]assistants.Option{
		assistants.WithPromptInput(map[string]any{InputUserID: userID}),
	}, opts...)

	a := assistants.NewAssistant(llm, instr.Prompt(examples), opts...).
		WithName(Name).
		WithDescription(Description).
		WithTools(toolset...)
	if len(a.GetTools()) != len(toolset) {
		return nil, errors.New("failed to bind the tools")
	}

	logger.KV(xlog.DEBUG,
		"agent", Name,
		"model", llm.GetName(),
		"format", instr.Format,
		"user_id", userID,
		"tools", tools.Names(toolset))
	return a, nil
}
