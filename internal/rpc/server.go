package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/clawinfra/toolclaw/internal/registry"
)

// maxFrameBytes bounds one request line. Tool arguments are model
// output and stay far below this in practice.
const maxFrameBytes = 1 << 20

// InvocationRecord captures one execute_tool call for the audit sink.
type InvocationRecord struct {
	Tool      string
	Pack      string
	Params    string
	Status    string
	Error     string
	ElapsedMs int64
}

// AuditSink receives one record per tool invocation. Implementations
// must tolerate concurrent calls.
type AuditSink interface {
	Record(ctx context.Context, rec InvocationRecord) error
}

// Server serves the registry over newline-delimited JSON-RPC. Each
// accepted connection gets its own goroutine; the only shared state is
// the read-mostly registry.
type Server struct {
	reg    *registry.Registry
	audit  AuditSink
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server for the given registry. audit may be nil.
func NewServer(reg *registry.Registry, audit AuditSink, logger *slog.Logger) *Server {
	return &Server{
		reg:    reg,
		audit:  audit,
		logger: logger.With("component", "rpc_server"),
	}
}

// Listen binds the listening socket. Addr is then available even when
// the configured port was 0.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or the listener
// fails. Each connection is handled on its own goroutine for its whole
// lifetime.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("rpc server: Serve before Listen")
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn reads one framed request at a time and writes exactly one
// framed response per request until the peer closes.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr().String()
	s.logger.Debug("client connected", "peer", peer)
	defer func() {
		_ = conn.Close()
		s.logger.Debug("client disconnected", "peer", peer)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleRequest(ctx, line)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("marshal response", "error", err)
			return
		}
		data = append(data, '\n')
		if _, err := writer.Write(data); err != nil {
			s.logger.Warn("write response", "peer", peer, "error", err)
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Warn("read request", "peer", peer, "error", err)
	}
}

// handleRequest dispatches one raw frame. Every failure path produces a
// well-formed error envelope so a bad request never drops the
// connection.
func (s *Server) handleRequest(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, CodeParseError, "parse error: invalid JSON frame")
	}

	switch req.Method {
	case MethodListTools:
		return resultResponse(req.ID, map[string]any{"tools": s.reg.List()})

	case MethodExecuteTool:
		return s.handleExecuteTool(ctx, req)

	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleExecuteTool(ctx context.Context, req Request) Response {
	var params ExecuteToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
		}
	}
	if params.ToolName == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool_name is required")
	}

	start := time.Now()
	result, err := s.reg.Invoke(ctx, params.ToolName, params.Parameters)
	elapsed := time.Since(start)

	rec := InvocationRecord{
		Tool:      params.ToolName,
		Status:    "success",
		ElapsedMs: elapsed.Milliseconds(),
	}
	if desc, ok := s.reg.Describe(params.ToolName); ok {
		rec.Pack = desc.Package
	}
	if data, merr := json.Marshal(params.Parameters); merr == nil {
		rec.Params = string(data)
	}

	var resp Response
	switch {
	case errors.Is(err, registry.ErrToolNotFound):
		rec.Status = "not_found"
		rec.Error = err.Error()
		resp = errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("tool %s not found", params.ToolName))
	case err != nil:
		rec.Status = "error"
		rec.Error = err.Error()
		resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("tool execution error: %v", err))
	default:
		resp = resultResponse(req.ID, map[string]any{"output": result})
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, rec); aerr != nil {
			s.logger.Warn("audit record failed", "tool", params.ToolName, "error", aerr)
		}
	}
	return resp
}
