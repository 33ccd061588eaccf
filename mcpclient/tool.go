package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llmutils"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrToolResult is returned when the server reports the tool call as failed.
var ErrToolResult = errors.New("tool call failed")

// toolResultPrefix starts the message of an error result rewritten by toolErrorTransport.
var toolResultPrefix = fmt.Sprintf("RPC error %d: ", toolResultErrorCode)

// RemoteTool calls a tool on the MCP server.
type RemoteTool struct {
	client      Client
	name        string
	description string
	parameters  any
	pins        []pin
}

var _ tools.ITool = (*RemoteTool)(nil)

func (t *RemoteTool) Name() string {
	return t.name
}

func (t *RemoteTool) Description() string {
	return t.description
}

func (t *RemoteTool) Parameters() any {
	return t.parameters
}

// Arguments returns the call arguments with the pinned values applied.
func (t *RemoteTool) Arguments(input string) (string, error) {
	args := strings.TrimSpace(string(llmutils.CleanJSON([]byte(input))))
	if args == "" {
		args = "{}"
	}
	if !gjson.Valid(args) || !gjson.Parse(args).IsObject() {
		return "", errors.Wrapf(chatmodel.ErrFailedUnmarshalInput, "arguments of %s must be a JSON object", t.name)
	}

	var err error
	for _, p := range t.pins {
		args, err = sjson.Set(args, p.path, p.value)
		if err != nil {
			return "", errors.Wrapf(err, "failed to set %s", p.path)
		}
	}
	return args, nil
}

// Call invokes the remote tool, the text contents of the response are joined.
func (t *RemoteTool) Call(ctx context.Context, input string) (string, error) {
	args, err := t.Arguments(input)
	if err != nil {
		return "", err
	}

	if len(t.pins) > 0 {
		kv := []any{"tool", t.name}
		for _, p := range t.pins {
			kv = append(kv, p.path, gjson.Get(args, p.path).String())
		}
		logger.ContextKV(ctx, xlog.DEBUG, kv...)
	}

	res, err := t.client.CallTool(ctx, t.name, json.RawMessage(args))
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"tool", t.name,
			"err", err.Error())
		msg := err.Error()
		if i := strings.Index(msg, toolResultPrefix); i >= 0 {
			return "", errors.Mark(errors.Newf("%s: %s", t.name, msg[i+len(toolResultPrefix):]), ErrToolResult)
		}
		return "", errors.Wrapf(err, "failed to call tool %s", t.name)
	}

	var parts []string
	if res != nil {
		for _, c := range res.Content {
			if c != nil && c.TextContent != nil {
				parts = append(parts, c.TextContent.Text)
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}
