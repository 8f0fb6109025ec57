package attnet

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"X1Bridge/internal/bridge"
)

// defaultRequestTimeout bounds a single request/response exchange.
const defaultRequestTimeout = 30 * time.Second

// Client dials validator attestation servers by address and keeps
// connections cached per validator. It satisfies the collector's
// Requester interface.
type Client struct {
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	addrs map[bridge.PubKey]string

	conns   map[bridge.PubKey]quic.Connection
	connsMu sync.Mutex
}

// NewClient creates a client identified by the given ed25519 key.
// addrs maps each validator identity to its listen address.
func NewClient(privateKey ed25519.PrivateKey, addrs map[bridge.PubKey]string) (*Client, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	cert, err := generateCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // identity is checked against the embedded ed25519 key
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	return &Client{
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		addrs:      addrs,
		conns:      make(map[bridge.PubKey]quic.Connection),
	}, nil
}

// Request sends one payload to a validator and returns its response.
func (c *Client) Request(ctx context.Context, validator bridge.PubKey, payload []byte) ([]byte, error) {
	conn, err := c.connect(ctx, validator)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		// The cached connection may have died; drop it so the next
		// request redials.
		c.drop(validator)
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeMessage(stream, payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	response, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return decodeResponse(response)
}

// connect returns a cached connection or dials a new one, verifying
// that the remote's certificate key matches the expected validator.
func (c *Client) connect(ctx context.Context, validator bridge.PubKey) (quic.Connection, error) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	if conn, ok := c.conns[validator]; ok {
		return conn, nil
	}

	addr, ok := c.addrs[validator]
	if !ok {
		return nil, fmt.Errorf("no address for validator %x", validator[:8])
	}

	conn, err := quic.DialAddr(ctx, addr, c.tlsConfig, c.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	remote, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "unauthenticated")
		return nil, err
	}

	var remoteKey bridge.PubKey
	copy(remoteKey[:], remote)
	if remoteKey != validator {
		conn.CloseWithError(2, "identity mismatch")
		return nil, fmt.Errorf("peer identity %x, want %x", remote[:8], validator[:8])
	}

	c.conns[validator] = conn

	return conn, nil
}

// drop removes a cached connection.
func (c *Client) drop(validator bridge.PubKey) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	if conn, ok := c.conns[validator]; ok {
		conn.CloseWithError(0, "")
		delete(c.conns, validator)
	}
}

// Close closes all cached connections.
func (c *Client) Close() error {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	for validator, conn := range c.conns {
		conn.CloseWithError(0, "")
		delete(c.conns, validator)
	}

	return nil
}
