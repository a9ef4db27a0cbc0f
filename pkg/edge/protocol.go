package edge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

// Wire constants for MCP over QUIC.
const (
	ALPNHTTP3 = "h3"
	ALPNMCP   = "fleetintake-mcp/1"

	// Preamble is sent by the client as the first bytes of the MCP stream.
	Preamble = "FIM1"

	MaxMessageSize   = 10 << 20 // 10 MiB per JSON-RPC line
	HandshakeTimeout = 10 * time.Second
	IdleTimeout      = 5 * time.Minute
	KeepAlive        = 30 * time.Second
)

// Application error codes used when closing connections and streams.
const (
	codeOK              quic.ApplicationErrorCode = 0x00
	codeWrongALPN       quic.ApplicationErrorCode = 0x01
	codeProtocol        quic.ApplicationErrorCode = 0x03
	codeMCPDisabled     quic.ApplicationErrorCode = 0x10
	streamCodeConfusion quic.StreamErrorCode      = 0x02
	streamCodeTooLarge  quic.StreamErrorCode      = 0x03
)

var (
	ErrBadPreamble = errors.New("bad MCP stream preamble")
	ErrWrongALPN   = errors.New("server did not negotiate " + ALPNMCP)
)

func quicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout:       HandshakeTimeout,
		MaxIdleTimeout:             IdleTimeout,
		KeepAlivePeriod:            KeepAlive,
		MaxStreamReceiveWindow:     MaxMessageSize,
		MaxConnectionReceiveWindow: 5 * MaxMessageSize,
	}
}

func writePreamble(w io.Writer) error {
	if _, err := io.WriteString(w, Preamble); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	return nil
}

func readPreamble(r io.Reader) error {
	buf := make([]byte, len(Preamble))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read preamble: %w", err)
	}
	if !bytes.Equal(buf, []byte(Preamble)) {
		return fmt.Errorf("%w: %q", ErrBadPreamble, buf)
	}
	return nil
}
