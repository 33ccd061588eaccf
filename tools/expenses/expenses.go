// Package expenses provides the finance tools exposed by the tool server:
// list_expenses_by_user and create_expense.
package expenses

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/metricskey"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "tools/expenses")

// API is the finance API used by the tools,
// implemented by *financeapi.Client.
type API interface {
	ListExpenses(ctx context.Context, user string) ([]map[string]any, error)
	CreateExpense(ctx context.Context, record map[string]any) (map[string]any, error)
}

// Tools returns both finance tools bound to the API.
func Tools(api API) []tools.IMCPTool {
	return []tools.IMCPTool{
		NewListTool(api),
		NewCreateTool(api),
	}
}

// decode unmarshals the tool input,
// numbers are kept as json.Number so `valor` is not altered.
func decode(input string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(input)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(chatmodel.ErrFailedUnmarshalInput, err.Error())
	}
	return nil
}

func encode(v any) (string, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(js), nil
}

// textResponse returns the value as a single JSON text content.
func textResponse(v any) (*mcp.ToolResponse, error) {
	js, err := encode(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(js)), nil
}

// observe records the metrics and logs of a tool call.
func observe(ctx context.Context, tool string, started time.Time, err error) {
	metricskey.PerfToolCall.MeasureSince(started, tool)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, tool)
		logger.ContextKV(ctx, xlog.ERROR,
			"tool", tool,
			"elapsed", time.Since(started).String(),
			"err", err.Error())
		return
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool)
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", tool,
		"elapsed", time.Since(started).String())
}
