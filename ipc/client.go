package ipc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// ErrDisconnected is returned when a request is written with no live
// connection. Send and Dial dial (and handshake) first when disconnected, so
// from them a missing driver surfaces as a dial error instead.
var ErrDisconnected = errors.New("ipc: not connected")

// ErrVersionMismatch is returned by Handshake when the driver reports a
// protocol version this client does not speak.
var ErrVersionMismatch = errors.New("ipc: protocol version mismatch")

// defaultSendTimeout bounds a single Send when the caller's context carries
// no deadline of its own.
const defaultSendTimeout = 2 * time.Second

// Client is a blocking request/response client over a Unix domain stream
// socket. It is not safe for concurrent use: the calibration engine issues
// at most one in-flight Send per tick from its single loop thread.
type Client struct {
	path   string
	logger golog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewClient constructs a Client that dials path on first use. The socket is
// not opened until the first Send or explicit Dial call.
func NewClient(path string, logger golog.Logger) *Client {
	return &Client{path: path, logger: logger}
}

// Dial opens the underlying connection and performs the handshake. Callers
// may also let Send dial lazily; Dial exists for callers that want to
// surface a connection failure before the first real request.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

func (c *Client) dialLocked(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return errors.Wrapf(err, "ipc: dial %s", c.path)
	}
	c.conn = conn
	if err := c.handshakeLocked(ctx); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	resp, err := c.sendLocked(ctx, HandshakeRequest())
	if err != nil {
		return errors.Wrap(err, "ipc: handshake")
	}
	if resp.Handshake.Version != CurrentProtocolVersion {
		return errors.Wrapf(ErrVersionMismatch, "driver reported version %d, want %d",
			resp.Handshake.Version, CurrentProtocolVersion)
	}
	return nil
}

// Send issues req and blocks for the matching response, reconnecting (and
// re-handshaking) first if the client is currently disconnected. On any
// transport error the connection is torn down so the next call reconnects
// from scratch.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return Response{}, err
		}
		if req.Type == RequestHandshake {
			// dialLocked already performed the handshake this request wanted.
			return Response{Type: ResponseHandshake, Ok: true, Handshake: Protocol{Version: CurrentProtocolVersion}}, nil
		}
	}

	resp, err := c.sendLocked(ctx, req)
	if err != nil {
		c.closeLocked()
		return Response{}, err
	}
	return resp, nil
}

func (c *Client) sendLocked(ctx context.Context, req Request) (Response, error) {
	if c.conn == nil {
		return Response{}, ErrDisconnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Response{}, errors.Wrap(err, "ipc: set deadline")
	}

	if err := EncodeRequest(c.conn, req); err != nil {
		return Response{}, errors.Wrap(err, "ipc: send request")
	}
	resp, err := DecodeResponse(c.conn)
	if err != nil {
		return Response{}, errors.Wrap(err, "ipc: read response")
	}
	return resp, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return errors.Wrap(err, "ipc: close connection")
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
