package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsonv2 "github.com/go-json-experiment/json"
)

var errConnectionClosed = errors.New("devtools connection closed")

// devtoolsClient sends DevTools protocol commands over a single browser
// connection and matches responses by message id. Commands for a flattened
// target session carry the session id in the envelope. Events are dropped.
type devtoolsClient struct {
	conn chromedp.Transport
	next atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message
	err     error
	done    chan struct{}
}

func newDevtoolsClient(conn chromedp.Transport) *devtoolsClient {
	c := &devtoolsClient{
		conn:    conn,
		pending: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Execute runs a browser-level command. It satisfies cdp.Executor.
func (c *devtoolsClient) Execute(ctx context.Context, method string, params, res any) error {
	return c.send(ctx, "", method, params, res)
}

// session returns an executor bound to a flattened target session.
func (c *devtoolsClient) session(id target.SessionID) sessionExecutor {
	return sessionExecutor{client: c, id: id}
}

// alive reports whether the connection is still readable.
func (c *devtoolsClient) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *devtoolsClient) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *devtoolsClient) send(ctx context.Context, sessionID target.SessionID, method string, params, res any) error {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = jsonv2.Marshal(params, chromedp.DefaultMarshalOptions); err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
	}

	id := c.next.Add(1)
	ch := make(chan *cdproto.Message, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	msg := &cdproto.Message{
		ID:        id,
		SessionID: sessionID,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	c.writeMu.Lock()
	err := c.conn.Write(ctx, msg)
	c.writeMu.Unlock()
	if err != nil {
		return ErrConnection{Err: err}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.err
	case reply := <-ch:
		if reply.Error != nil {
			return fmt.Errorf("%s: %w", method, reply.Error)
		}
		if res != nil && len(reply.Result) > 0 {
			return jsonv2.Unmarshal(reply.Result, res, chromedp.DefaultUnmarshalOptions)
		}
		return nil
	}
}

func (c *devtoolsClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *devtoolsClient) readLoop() {
	for {
		msg := new(cdproto.Message)
		if err := c.conn.Read(context.Background(), msg); err != nil {
			c.mu.Lock()
			c.err = ErrConnection{Err: fmt.Errorf("%w: %v", errConnectionClosed, err)}
			close(c.done)
			c.mu.Unlock()
			return
		}
		if msg.ID == 0 {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// sessionExecutor runs commands inside one attached target.
type sessionExecutor struct {
	client *devtoolsClient
	id     target.SessionID
}

func (s sessionExecutor) Execute(ctx context.Context, method string, params, res any) error {
	return s.client.send(ctx, s.id, method, params, res)
}

// browserWebSocketURL resolves the browser's DevTools websocket from a
// remote debugging address such as http://127.0.0.1:9222.
func browserWebSocketURL(ctx context.Context, remote string) (string, error) {
	if strings.Contains(remote, "/devtools/browser/") {
		return remote, nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/json/version"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", u, classifyError(err, 0))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query %s: %w", u, classifyError(nil, resp.StatusCode))
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode %s: %w", u, err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s reports no browser websocket", u)
	}

	ws, err := url.Parse(version.WebSocketDebuggerURL)
	if err != nil {
		return "", fmt.Errorf("parse browser websocket: %w", err)
	}
	ws.Host = u.Host
	return ws.String(), nil
}
