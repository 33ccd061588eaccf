package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/llmutils"
	"github.com/effective-security/finassist/tools"
)

var _ assistants.Callback = (*Scratchpad)(nil)

// TimeNowFn is used for the transcript timestamps.
var TimeNowFn = time.Now

// RunStats is the usage of one run, a run is one user turn of a chat.
type RunStats struct {
	UserID string
	ChatID string
	RunID  string

	Duration        time.Duration
	LLMCalls        uint32
	MessagesSent    uint32
	LLMBytesOut     uint64
	LLMBytesIn      uint64
	LLMInputTokens  uint64
	LLMOutputTokens uint64
	AssistantFailed uint32
	ToolCalls       map[string]uint32
	ToolCallsFailed uint32
	ToolsNotFound   uint32
}

// Scratchpad keeps a transcript and stats of the runs in progress.
// Runs are keyed by the RunID of the ChatContext.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts recording the run of the ChatContext in ctx.
func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		chatCtx: chatCtx,
		started: TimeNowFn(),
		stats: RunStats{
			UserID:    chatCtx.GetUserID(),
			ChatID:    chatCtx.GetChatID(),
			RunID:     chatCtx.RunID(),
			ToolCalls: make(map[string]uint32),
		},
	}

	l.lock.Lock()
	l.runs[chatCtx.RunID()] = r
	l.lock.Unlock()

	r.print("run started for user", chatCtx.GetUserID())
}

// EndRun stops recording and returns the stats and the transcript,
// nil if the run was not started.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	r := l.getRun(ctx)
	if r == nil {
		return nil, nil
	}

	l.lock.Lock()
	delete(l.runs, r.chatCtx.RunID())
	l.lock.Unlock()

	r.lock.Lock()
	r.stats.Duration = TimeNowFn().Sub(r.started)
	stats := r.stats
	stats.ToolCalls = maps.Clone(r.stats.ToolCalls)
	r.lock.Unlock()

	var toolCalls []string
	for _, name := range slices.Sorted(maps.Keys(stats.ToolCalls)) {
		toolCalls = append(toolCalls, fmt.Sprintf("%s=%d", name, stats.ToolCalls[name]))
	}

	r.print(fmt.Sprintf("tool calls: [%s], failed: %d, not found: %d",
		strings.Join(toolCalls, " "),
		stats.ToolCallsFailed,
		stats.ToolsNotFound,
	))
	r.print(fmt.Sprintf("LLM calls: %d, messages: %d, bytes out: %d, bytes in: %d, input tokens: %d, output tokens: %d",
		stats.LLMCalls,
		stats.MessagesSent,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
	))
	r.print("run ended in", stats.Duration.String())

	return &stats, r.transcript()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatCtx.RunID()]
}

func (l *Scratchpad) OnAssistantStart(ctx context.Context, assistant assistants.IAssistant, input string) {
	if r := l.getRun(ctx); r != nil {
		r.print(assistant.Name(), "question:", input)
	}
}

func (l *Scratchpad) OnAssistantEnd(ctx context.Context, assistant assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	if l.mode == ModeVerbose {
		r.print(assistant.Name(), "answer:", assistants.Content(resp))
	}
}

func (l *Scratchpad) OnAssistantError(ctx context.Context, assistant assistants.IAssistant, input string, err error, messages []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.AssistantFailed++ })
	r.print(assistant.Name(), "error:", err.Error())
	if l.mode == ModeVerbose {
		r.print(summarizeMessages(messages))
	}
}

func (l *Scratchpad) OnAssistantLLMCallStart(ctx context.Context, agent assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	size := llmutils.CountMessagesContentSize(payload)
	r.update(func(s *RunStats) {
		s.LLMCalls++
		s.MessagesSent += uint32(len(payload))
		s.LLMBytesOut += size
	})
	r.print(agent.Name(), "LLM call:", fmt.Sprintf("%s model, %d messages", llm.GetName(), len(payload)))
	if l.mode == ModeVerbose {
		r.print(summarizeMessages(payload))
	}
}

func (l *Scratchpad) OnAssistantLLMCallEnd(ctx context.Context, agent assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
	size := llmutils.CountResponseContentSize(resp)
	r.update(func(s *RunStats) {
		s.LLMBytesIn += size
		s.LLMInputTokens += uint64(tokensIn)
		s.LLMOutputTokens += uint64(tokensOut)
	})
	r.print(agent.Name(), "LLM response:", fmt.Sprintf("%d input tokens, %d output tokens", tokensIn, tokensOut))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, assistantName, input string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolCalls[tool.Name()]++ })
	r.print(assistantName, tool.Name(), "input:", input)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, assistantName, input string, output string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	if l.mode == ModeVerbose {
		r.print(assistantName, tool.Name(), "output:", output)
	}
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, assistantName, input string, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolCallsFailed++ })
	r.print(assistantName, tool.Name(), "error:", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, agent assistants.IAssistant, tool string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolsNotFound++ })
	r.print(agent.Name(), "tool not found:", tool)
}

func summarizeMessages(messages []llms.Message) string {
	var buf strings.Builder
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "  [%d] %s:", idx, msg.Role)
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				fmt.Fprintf(&buf, " text(%d)", len(typ.Text))
			case llms.ToolCall:
				buf.WriteString(" ")
				buf.WriteString(typ.String())
			case llms.ToolCallResponse:
				buf.WriteString(" ")
				buf.WriteString(typ.String())
			}
		}
		buf.WriteString("\n")
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

type run struct {
	chatCtx chatmodel.ChatContext
	started time.Time

	lock  sync.Mutex
	w     bytes.Buffer
	stats RunStats
}

func (r *run) update(fn func(*RunStats)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	fn(&r.stats)
}

func (r *run) transcript() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}

// print writes a line to the transcript:
// [timestamp chatID.runID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	fmt.Fprintf(&r.w, "[%s %s.%s] %s\n",
		TimeNowFn().Format("2006-01-02 15:04:05"),
		r.chatCtx.GetChatID(),
		r.chatCtx.RunID(),
		strings.Join(entries, " "),
	)
}
