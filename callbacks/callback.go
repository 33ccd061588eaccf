package callbacks

import (
	"context"
	"io"
	"sync"

	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	"github.com/fatih/color"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ tools.Callback      = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ tools.Callback      = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ tools.Callback      = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
	_ tools.Callback      = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
	for _, callback := range l.callbacks {
		callback.OnAssistantStart(ctx, assistant, input)
	}
}

func (l *Fanout) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantEnd(ctx, assistant, input, resp, messages)
	}
}

func (l *Fanout) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantError(ctx, assistant, input, err, messages)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, assistantName, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, assistantName, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, assistantName, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, agent, tool)
	}
}

func (l *Fanout) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallStart(ctx, agent, llm, payload)
	}
}

func (l *Fanout) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallEnd(ctx, agent, llm, resp)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
}
func (l *Noop) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
}
func (l *Noop) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
}
func (l *Noop) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
}
func (l *Noop) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
}

// Printer is a callback handler that prints to the Writer,
// events are colored when the Writer is a terminal.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock  sync.Mutex
	event *color.Color
	faint *color.Color
	fail  *color.Color
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{
		Out:   out,
		Mode:  mode,
		event: color.New(color.FgCyan, color.Bold),
		faint: color.New(color.Faint),
		fail:  color.New(color.FgRed),
	}
}

// DisableColor prints without escape sequences.
func (l *Printer) DisableColor() *Printer {
	l.event.DisableColor()
	l.faint.DisableColor()
	l.fail.DisableColor()
	return l
}

func (l *Printer) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.event.Fprintf(l.Out, "Assistant Start: %s\n", assistant.Name())
	if l.Mode == ModeVerbose {
		l.faint.Fprintf(l.Out, "Input: %s\n", input)
	}
}

func (l *Printer) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.event.Fprintf(l.Out, "Assistant End: %s\n", assistant.Name())
	if l.Mode == ModeVerbose {
		for _, choice := range resp.Choices {
			if choice.Content != "" {
				l.faint.Fprintln(l.Out, choice.Content)
			}
		}
	}
}

func (l *Printer) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.fail.Fprintf(l.Out, "Assistant Error: %s: %s\n", assistant.Name(), err.Error())
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.event.Fprintf(l.Out, "Tool Start: %s (%s)\n", tool.Name(), assistantName)
	l.faint.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.event.Fprintf(l.Out, "Tool End: %s (%s)\n", tool.Name(), assistantName)
	if l.Mode == ModeVerbose {
		l.faint.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.fail.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", tool.Name(), assistantName, err.Error())
}

func (l *Printer) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.faint.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", agent.Name(), llm.GetName(), len(payload))
}

func (l *Printer) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.faint.Fprintf(l.Out, "LLM Call End: %s: %s model, %d choices\n", agent.Name(), llm.GetName(), len(resp.Choices))
}

func (l *Printer) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.fail.Fprintf(l.Out, "Tool Not Found: %s (%s)\n", tool, agent.Name())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_start",
		"assistant", assistant.Name(),
		"input", truncate(input, 256),
	)
}

func (l *PackageLogger) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_end",
		"assistant", assistant.Name(),
		"messages", len(messages),
		"result", truncate(assistants.Content(resp), 256),
	)
}

func (l *PackageLogger) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "assistant_error",
		"assistant", assistant.Name(),
		"messages", len(messages),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"assistant", assistantName,
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"assistant", assistantName,
		"tool", tool.Name(),
		"output", truncate(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"assistant", assistantName,
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_start",
		"assistant", agent.Name(),
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_end",
		"assistant", agent.Name(),
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"assistant", agent.Name(),
		"tool", tool,
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
