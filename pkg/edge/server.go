// Package edge is the TLS front door of fleet-intake. One address serves
// two listeners:
//
//   - TCP: HTTP/1.1 and HTTP/2 over TLS.
//   - UDP: QUIC, demultiplexed by ALPN into HTTP/3 (same handler) or
//     MCP JSON-RPC over a QUIC stream (same tools as the stdio server).
//
// TCP responses advertise HTTP/3 with an Alt-Svc header.
package edge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Config configures a Server.
type Config struct {
	Addr      string            // e.g. ":8443"; TCP and UDP share the port
	TLS       *tls.Config       // from ServerTLSConfig
	Handler   http.Handler      // served over HTTP/1.1, HTTP/2 and HTTP/3
	MCPServer *server.MCPServer // nil disables MCP over QUIC
	Logger    *slog.Logger
}

// Server runs the TCP and QUIC listeners.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	tcp     *http.Server
	h3      *http3.Server
	quicLn  *quic.Listener
	udpAddr net.Addr
	ready   chan struct{}
}

// New validates cfg and returns a server that is not yet listening.
func New(cfg Config) (*Server, error) {
	if cfg.TLS == nil {
		return nil, errors.New("edge: TLS config required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("edge: handler required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger, ready: make(chan struct{})}, nil
}

// Ready is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound UDP address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// ListenAndServe binds UDP first, then TCP on the same port, and serves
// until ctx is cancelled or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := quic.ListenAddr(s.cfg.Addr, s.cfg.TLS, quicConfig())
	if err != nil {
		return fmt.Errorf("quic listen %s: %w", s.cfg.Addr, err)
	}
	port := ln.Addr().(*net.UDPAddr).Port
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("edge addr %s: %w", s.cfg.Addr, err)
	}

	tcpTLS := s.cfg.TLS.Clone()
	tcpTLS.NextProtos = []string{"h2", "http/1.1"}
	tcpLn, err := tls.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)), tcpTLS)
	if err != nil {
		ln.Close()
		return fmt.Errorf("tcp listen: %w", err)
	}

	handler := securityHeaders(altSvc(port, s.cfg.Handler))
	s.mu.Lock()
	s.quicLn = ln
	s.udpAddr = ln.Addr()
	s.h3 = &http3.Server{Handler: handler}
	s.tcp = &http.Server{Handler: handler, TLSConfig: tcpTLS, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("edge listening", "addr", ln.Addr().String(), "tcp", "h2,http/1.1", "udp", ALPNHTTP3+","+ALPNMCP)

	errCh := make(chan error, 2)
	go func() {
		if err := s.tcp.Serve(tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("tcp serve: %w", err)
		}
	}()
	go func() {
		errCh <- s.acceptQUIC(ctx, ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptQUIC(ctx context.Context, ln *quic.Listener) error {
	mcpHandler := &mcpConnHandler{srv: s.cfg.MCPServer, logger: s.logger}
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("quic accept: %w", err)
		}

		switch alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn {
		case ALPNHTTP3:
			go func() {
				if err := s.h3.ServeQUICConn(conn); err != nil {
					s.logger.Debug("http3 conn closed", "remote", conn.RemoteAddr(), "error", err)
				}
			}()
		case ALPNMCP:
			if s.cfg.MCPServer == nil {
				conn.CloseWithError(codeMCPDisabled, "mcp disabled")
				continue
			}
			go mcpHandler.serve(ctx, conn)
		default:
			s.logger.Warn("unsupported ALPN", "alpn", alpn, "remote", conn.RemoteAddr())
			conn.CloseWithError(codeWrongALPN, "unsupported ALPN")
		}
	}
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.tcp != nil {
		errs = append(errs, s.tcp.Shutdown(ctx))
	}
	if s.h3 != nil {
		errs = append(errs, s.h3.Close())
	}
	if s.quicLn != nil {
		errs = append(errs, s.quicLn.Close())
	}
	return errors.Join(errs...)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000")
		next.ServeHTTP(w, r)
	})
}

func altSvc(port int, next http.Handler) http.Handler {
	value := fmt.Sprintf(`h3=":%d"; ma=86400`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}
