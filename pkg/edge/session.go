package edge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/fleet-intake/pkg/kit"
)

// mcpConnHandler serves one MCP session per QUIC connection on the first
// bidirectional stream the client opens.
type mcpConnHandler struct {
	srv    *server.MCPServer
	logger *slog.Logger
}

func (h *mcpConnHandler) serve(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warn("mcp: accept stream", "remote", remote, "error", err)
		conn.CloseWithError(codeProtocol, "no stream")
		return
	}
	if err := readPreamble(stream); err != nil {
		h.logger.Warn("mcp: rejected stream", "remote", remote, "error", err)
		stream.CancelRead(streamCodeConfusion)
		stream.CancelWrite(streamCodeConfusion)
		conn.CloseWithError(codeProtocol, "bad preamble")
		return
	}

	sess := &quicSession{
		id:            "quic-" + uuid.NewString(),
		out:           stream,
		notifications: make(chan mcp.JSONRPCNotification, 64),
	}
	if err := h.srv.RegisterSession(ctx, sess); err != nil {
		h.logger.Error("mcp: register session", "remote", remote, "error", err)
		stream.Close()
		return
	}
	defer h.srv.UnregisterSession(ctx, sess.id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = kit.WithTransport(ctx, "mcp_quic")
	ctx = h.srv.WithContext(ctx, sess)
	go sess.forwardNotifications(ctx)

	h.logger.Info("mcp session started", "session", sess.id, "remote", remote)
	err = h.readLoop(ctx, sess, stream)
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		h.logger.Warn("mcp: message too large", "session", sess.id)
		stream.CancelRead(streamCodeTooLarge)
		conn.CloseWithError(codeProtocol, "message too large")
	case err != nil && ctx.Err() == nil:
		h.logger.Warn("mcp: read", "session", sess.id, "error", err)
	default:
		stream.Close()
	}
	h.logger.Info("mcp session ended", "session", sess.id)
}

func (h *mcpConnHandler) readLoop(ctx context.Context, sess *quicSession, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), MaxMessageSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := h.srv.HandleMessage(ctx, json.RawMessage(line))
		if resp == nil {
			continue
		}
		if err := sess.send(resp); err != nil {
			return err
		}
	}
	return sc.Err()
}

// quicSession implements server.ClientSession over one QUIC stream.
type quicSession struct {
	id            string
	initialized   atomic.Bool
	notifications chan mcp.JSONRPCNotification

	mu  sync.Mutex // serializes writes to out
	out io.Writer
}

func (s *quicSession) SessionID() string                                   { return s.id }
func (s *quicSession) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }
func (s *quicSession) Initialize()                                         { s.initialized.Store(true) }
func (s *quicSession) Initialized() bool                                   { return s.initialized.Load() }

// send writes v as one newline-terminated JSON line.
func (s *quicSession) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(data)
	return err
}

func (s *quicSession) forwardNotifications(ctx context.Context) {
	for {
		select {
		case n := <-s.notifications:
			if err := s.send(n); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
