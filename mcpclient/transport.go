package mcpclient

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// toolResultErrorCode is the JSON-RPC error code of a tool result
// flagged with isError.
const toolResultErrorCode = -32000

// toolErrorTransport rewrites a tools/call result flagged with isError
// into a JSON-RPC error, so the call fails on the client.
type toolErrorTransport struct {
	next http.RoundTripper
}

func newHTTPClient(next http.RoundTripper) *http.Client {
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{Transport: &toolErrorTransport{next: next}}
}

func (t *toolErrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(req)
	if err != nil || res.StatusCode != http.StatusOK {
		return res, err
	}

	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if rewritten, ok := toolResultError(body); ok {
		body = rewritten
		res.Header.Del("Content-Length")
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	return res, nil
}

// toolResultError returns the JSON-RPC error for a result with isError set.
func toolResultError(body []byte) ([]byte, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	msg := gjson.ParseBytes(body)
	if !msg.Get("id").Exists() || !msg.Get("result.isError").Bool() {
		return nil, false
	}

	var parts []string
	for _, c := range msg.Get("result.content").Array() {
		if text := c.Get("text"); text.Exists() {
			parts = append(parts, text.String())
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		text = "tool returned an error"
	}

	js := `{"jsonrpc":"2.0"}`
	js, _ = sjson.SetRaw(js, "id", msg.Get("id").Raw)
	js, _ = sjson.SetRaw(js, "error.code", strconv.Itoa(toolResultErrorCode))
	js, _ = sjson.Set(js, "error.message", text)
	return []byte(js), true
}
