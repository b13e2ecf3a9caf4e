// Package transport carries KQML performatives between an agent and its
// facilitator, over stdio or a TCP connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// Transport defines the interface for KQML transport mechanisms
type Transport interface {
	// ReadMessage reads the next performative
	ReadMessage() (*kqml.List, error)

	// WriteMessage sends a performative
	WriteMessage(msg *kqml.List) error

	// Close closes the transport and cleans up resources
	Close() error

	// GetType returns the transport type identifier
	GetType() string
}

// Type represents the type of transport
type Type string

const (
	TypeStdio Type = "stdio"
	TypeTCP   Type = "tcp"
)

// DefaultFacilitatorAddr is where the facilitator listens by default.
const DefaultFacilitatorAddr = "localhost:6200"

// StreamTransport exchanges one performative per line over a byte stream.
// Writes are serialised; reads must come from a single goroutine.
type StreamTransport struct {
	kind   Type
	reader *kqml.Reader
	writer io.Writer
	closer io.Closer
	logger *logrus.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStreamTransport wraps a reader/writer pair. closer may be nil.
func NewStreamTransport(kind Type, r io.Reader, w io.Writer, closer io.Closer, logger *logrus.Logger) *StreamTransport {
	return &StreamTransport{
		kind:   kind,
		reader: kqml.NewReader(r),
		writer: w,
		closer: closer,
		logger: logger,
	}
}

// NewStdioTransport creates a transport on stdin/stdout
func NewStdioTransport(logger *logrus.Logger) *StreamTransport {
	return NewStreamTransport(TypeStdio, os.Stdin, os.Stdout, nil, logger)
}

// DialFacilitator connects to a facilitator over TCP.
func DialFacilitator(ctx context.Context, addr string, logger *logrus.Logger) (*StreamTransport, error) {
	if addr == "" {
		addr = DefaultFacilitatorAddr
	}
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to facilitator at %s: %w", addr, err)
	}
	logger.WithField("addr", addr).Info("Connected to facilitator")
	return NewStreamTransport(TypeTCP, conn, conn, conn, logger), nil
}

// New creates the transport selected by the agent configuration.
func New(ctx context.Context, cfg domain.AgentConfig, logger *logrus.Logger) (Transport, error) {
	switch Type(cfg.Transport) {
	case TypeStdio, "":
		return NewStdioTransport(logger), nil
	case TypeTCP:
		return DialFacilitator(ctx, cfg.FacilitatorAddr, logger)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}

// ReadMessage reads the next performative. It returns io.EOF when the peer
// closes the stream and an error wrapping kqml.ErrSyntax for a malformed
// message that can be skipped.
func (s *StreamTransport) ReadMessage() (*kqml.List, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	msg, err := s.reader.ReadList()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	s.logger.WithField("verb", msg.Head()).Debug("Received message")
	return msg, nil
}

// WriteMessage writes a performative followed by a newline
func (s *StreamTransport) WriteMessage(msg *kqml.List) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.writer, msg.String()+"\n"); err != nil {
		s.logger.WithError(err).Error("Failed to write message")
		return fmt.Errorf("failed to write message: %w", err)
	}

	s.logger.WithField("verb", msg.Head()).Debug("Sent message")
	return nil
}

// Close closes the underlying connection, if any
func (s *StreamTransport) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.WithField("transport", s.kind).Info("Transport closed")
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// GetType returns the transport type
func (s *StreamTransport) GetType() string {
	return string(s.kind)
}
