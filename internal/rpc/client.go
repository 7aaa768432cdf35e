package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/clawinfra/toolclaw/internal/registry"
)

// Client is the gateway's view of the registry daemon: one persistent
// connection, synchronous call/response round trips. Concurrent callers
// are serialized onto the single connection by an internal mutex.
type Client struct {
	addr        string
	readTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

// NewClient creates a client for the given registry address. The read
// timeout bounds each round trip so a hung tool cannot block a caller
// forever; zero means no deadline.
func NewClient(addr string, readTimeout time.Duration) *Client {
	return &Client{addr: addr, readTimeout: readTimeout}
}

// Connect dials the registry. Calling it again after a broken
// connection re-establishes it.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		c.conn = nil
		c.reader = nil
		return fmt.Errorf("connect registry %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, maxFrameBytes)
	return nil
}

func (c *Client) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// call performs one request/response round trip. A failed write on a
// stale connection is retried once on a fresh one; once the request
// has been written it is never replayed, because the registry may have
// executed the tool even when the response never arrived.
func (c *Client) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
	}

	resp, sent, err := c.roundTripLocked(method, params)
	if err == nil {
		return resp, nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return nil, err
	}
	if sent {
		// The connection is in an indeterminate state; the next call
		// reconnects.
		c.resetLocked()
		return nil, err
	}

	if rerr := c.connectLocked(); rerr != nil {
		return nil, err
	}
	resp, sent, err = c.roundTripLocked(method, params)
	if err != nil && sent && !errors.As(err, &rpcErr) {
		c.resetLocked()
	}
	return resp, err
}

// roundTripLocked writes one request and reads its response. sent
// reports whether the request reached the wire; callers must not
// retry a sent request.
func (c *Client) roundTripLocked(method string, params any) (raw json.RawMessage, sent bool, err error) {
	c.nextID++
	id := c.nextID

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      id,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	if c.readTimeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.readTimeout))
	}

	if _, err := c.conn.Write(data); err != nil {
		return nil, false, fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, true, fmt.Errorf("decode response: %w", err)
	}

	matched := resp.ID != nil && *resp.ID == id
	if resp.Error != nil {
		// A parse-error envelope carries a null id; with one request
		// in flight it still belongs to this call.
		if matched || resp.ID == nil {
			return nil, true, resp.Error
		}
		return nil, true, fmt.Errorf("response id mismatch: sent %d, got %d", id, *resp.ID)
	}
	if !matched {
		return nil, true, fmt.Errorf("response id mismatch: sent %d, got %v", id, resp.ID)
	}
	return resp.Result, true, nil
}

// ListTools fetches the registry's current descriptor set.
func (c *Client) ListTools() ([]registry.Descriptor, error) {
	raw, err := c.call(MethodListTools, map[string]any{})
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []registry.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}
	return result.Tools, nil
}

// ExecuteTool invokes a tool by name and returns its free-form output.
func (c *Client) ExecuteTool(name string, params map[string]any) (any, error) {
	raw, err := c.call(MethodExecuteTool, ExecuteToolParams{
		ToolName:   name,
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Output any `json:"output"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tool output: %w", err)
	}
	return result.Output, nil
}
