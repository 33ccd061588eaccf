package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/gin-gonic/gin"
	"github.com/metoro-io/mcp-golang/transport"
)

// Transport is a stateless request/response MCP transport:
// each HTTP request carries one JSON-RPC message and
// the response is written on the same request.
type Transport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	counter        atomic.Int64
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns the transport.
func NewTransport() *Transport {
	return &Transport{
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
}

// Start implements transport.Transport, the transport is driven by HTTP requests.
func (t *Transport) Start(_ context.Context) error {
	return nil
}

// Send implements transport.Transport
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message == nil {
		return errors.New("message is nil")
	}

	var key int64
	switch message.Type {
	case transport.BaseMessageTypeJSONRPCResponseType:
		key = int64(message.JsonRpcResponse.Id)
	case transport.BaseMessageTypeJSONRPCErrorType:
		key = int64(message.JsonRpcError.Id)
	default:
		// server initiated notifications are not delivered over a stateless transport
		logger.ContextKV(ctx, xlog.DEBUG, "dropped", message.Type)
		return nil
	}

	t.mu.RLock()
	ch := t.responseMap[key]
	t.mu.RUnlock()
	if ch == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}
	ch <- message
	return nil
}

// Close implements transport.Transport
func (t *Transport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements transport.Transport
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements transport.Transport
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements transport.Transport
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// HandleMessage dispatches one JSON-RPC message and waits for the response.
// Notifications are dispatched and nil is returned.
func (t *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler == nil {
		return nil, errors.New("transport is not connected")
	}

	var request transport.BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		var notification transport.BaseJSONRPCNotification
		if nerr := json.Unmarshal(body, &notification); nerr != nil {
			return nil, errors.Wrap(err, "invalid JSON-RPC message")
		}
		handler(ctx, transport.NewBaseMessageNotification(&notification))
		return nil, nil
	}

	// request IDs are only unique per client, replace with a local key
	key := t.counter.Add(1)
	ch := make(chan *transport.BaseJsonRpcMessage, 1)
	t.mu.Lock()
	t.responseMap[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.responseMap, key)
		t.mu.Unlock()
	}()

	prevID := request.Id
	request.Id = transport.RequestId(key)
	handler(ctx, transport.NewBaseMessageRequest(&request))

	select {
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	case res := <-ch:
		switch {
		case res.JsonRpcResponse != nil:
			res.JsonRpcResponse.Id = prevID
		case res.JsonRpcError != nil:
			res.JsonRpcError.Id = prevID
		}
		return res, nil
	}
}

// Handler returns the gin handler of the MCP endpoint.
func (t *Transport) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			t.reportError(errors.Wrap(err, "failed to read request body"))
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		res, err := t.HandleMessage(ctx, body)
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "err", err.Error())
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.String(http.StatusServiceUnavailable, err.Error())
				return
			}
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		if res == nil {
			c.Status(http.StatusAccepted)
			return
		}

		js, err := json.Marshal(res)
		if err != nil {
			t.reportError(errors.Wrap(err, "failed to marshal response"))
			c.String(http.StatusInternalServerError, "failed to marshal response")
			return
		}
		c.Data(http.StatusOK, "application/json", js)
	}
}

func (t *Transport) reportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
