// Package network implements the two-channel transport shell around the
// match core: a reliable, ordered control channel over TCP and an
// unreliable, sequenced realtime channel over UDP. The core never sees a
// socket; it consumes decoded messages and hands back encoded bytes.
package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"golang.org/x/time/rate"
)

// maxFrameSize bounds a single control frame. Control messages are tiny;
// anything larger is a broken or hostile peer.
const maxFrameSize = 1 << 20

// Transport abstracts the control-channel connection
type Transport interface {
	// Connect establishes a connection to the server
	Connect(addr string) error

	// Accept waits for incoming connections (server only)
	Accept(ctx context.Context) (Connection, error)

	// Close closes the transport
	Close() error
}

// Connection represents a single client-server control connection
type Connection interface {
	// Send sends one length-framed message
	Send(data []byte) error

	// Recv receives one message (blocking)
	Recv() ([]byte, error)

	// Close closes the connection
	Close() error

	// RemoteAddr returns the remote address
	RemoteAddr() net.Addr
}

// TCPTransport implements Transport over TCP with a rate-limited accept
// loop.
type TCPTransport struct {
	listener net.Listener
	conn     net.Conn
	limiter  *rate.Limiter
}

// NewTCPTransport creates a TCP transport. acceptsPerSec bounds how fast
// new connections are admitted; bursts of one.
func NewTCPTransport(acceptsPerSec float64) *TCPTransport {
	return &TCPTransport{
		limiter: rate.NewLimiter(rate.Limit(acceptsPerSec), 1),
	}
}

// Listen starts listening on the given address (server)
func (t *TCPTransport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.listener = ln
	return nil
}

// Addr returns the bound listen address.
func (t *TCPTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Connect connects to a server (client)
func (t *TCPTransport) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// Accept admits a new connection (server), honoring the rate limit and the
// context deadline.
func (t *TCPTransport) Accept(ctx context.Context) (Connection, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if tl, ok := t.listener.(*net.TCPListener); ok {
		if deadline, ok := ctx.Deadline(); ok {
			if err := tl.SetDeadline(deadline); err != nil {
				return nil, err
			}
		}
	}
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, err
	}
	return &TCPConnection{conn: conn}, nil
}

// ClientConnection returns the dialed connection (client side).
func (t *TCPTransport) ClientConnection() Connection {
	if t.conn == nil {
		return nil
	}
	return &TCPConnection{conn: t.conn}
}

// Close closes the transport
func (t *TCPTransport) Close() error {
	if t.listener != nil {
		return t.listener.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// TCPConnection wraps a TCP connection with 4-byte big-endian length
// framing.
type TCPConnection struct {
	conn net.Conn
}

// NewFramedConnection wraps an established stream in the control framing.
func NewFramedConnection(conn net.Conn) *TCPConnection {
	return &TCPConnection{conn: conn}
}

func (c *TCPConnection) Send(data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("network: frame of %d bytes exceeds limit", len(data))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		// An empty frame is the header alone; Recv never reads a body for it.
		return nil
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *TCPConnection) Recv() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("network: frame of %d bytes exceeds limit", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *TCPConnection) Close() error {
	return c.conn.Close()
}

func (c *TCPConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
