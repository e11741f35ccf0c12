package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Transport speaks JSON-RPC 2.0 over a byte stream using the LSP base
// protocol (Content-Length framed messages). One transport serves one
// server process.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[int64]chan *response
	handlers map[string]NotificationHandler

	nextID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

// NotificationHandler consumes a server-initiated notification.
type NotificationHandler func(method string, params json.RawMessage)

// request is an outgoing JSON-RPC request or notification.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is an incoming JSON-RPC response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewTransport wraps the given stream pair. The closer, if non-nil, is
// closed together with the transport.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		logger:   logger,
		pending:  make(map[int64]chan *response),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Start begins the read loop. It returns immediately.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// IsClosed reports whether the transport has shut down.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Close tears down the transport. In-flight callers are released via
// the done channel; pending response channels are abandoned rather
// than closed to avoid racing the read loop.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	t.mu.Lock()
	t.pending = make(map[int64]chan *response)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Call sends a request and blocks until the response arrives, the
// context expires, or the transport shuts down. A non-nil result is
// decoded from the response payload.
func (t *Transport) Call(ctx context.Context, method string, params, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.send(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
		}
		return nil
	}
}

// CallRaw is Call without decoding: the raw result payload is returned
// for the caller to interpret per command.
func (t *Transport) CallRaw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := t.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Notify sends a notification; no response is expected.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	return t.send(&request{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers the handler for a server notification
// method, replacing any previous handler for that method.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// send frames and writes one message.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readLoop consumes messages until the stream ends or the transport
// closes. Undecodable frames are logged and skipped; the loop only
// stops on stream errors.
func (t *Transport) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() || err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			t.logger.Debug("transport read error", "err", err)
			continue
		}
		t.dispatch(msg)
	}
}

// readMessage reads one Content-Length framed message.
func (t *Transport) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(name), "content-length") {
				n, err := strconv.Atoi(strings.TrimSpace(value))
				if err == nil {
					contentLength = n
				}
			}
			// Content-Type and unknown headers are skipped.
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch routes one incoming message by shape: a response if it
// carries an id with result or error, otherwise a notification.
func (t *Transport) dispatch(data json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Error  *RPCError       `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.logger.Debug("undecodable frame dropped", "err", err)
		return
	}

	if probe.ID != nil && probe.Method == "" {
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		t.deliver(&resp)
		return
	}

	if probe.Method != "" {
		t.mu.Lock()
		handler := t.handlers[probe.Method]
		t.mu.Unlock()
		if handler != nil {
			var notif struct {
				Params json.RawMessage `json:"params"`
			}
			_ = json.Unmarshal(data, &notif)
			handler(probe.Method, notif.Params)
		}
	}
}

// deliver hands a response to its waiting caller, if still pending.
func (t *Transport) deliver(resp *response) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}
