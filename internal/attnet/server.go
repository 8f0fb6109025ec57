package attnet

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"X1Bridge/internal/logger"
)

// Handler processes one request payload and returns the response.
type Handler func(payload []byte) ([]byte, error)

// Server accepts QUIC connections and serves request/response streams
// with a single handler. Validators run one to expose their signer.
type Server struct {
	listenAddr string
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	handler    Handler

	listener *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server identified by the given ed25519 key.
func NewServer(privateKey ed25519.PrivateKey, listenAddr string, handler Handler) (*Server, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	cert, err := generateCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // identity is checked against the embedded ed25519 key
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		listenAddr: listenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		handler:    handler,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.listenAddr, s.tlsConfig, s.quicConfig)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("attestation server listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the listener's address, empty if not started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Close stops the server and waits for in-flight streams.
func (s *Server) Close() error {
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.wg.Wait()

	return err
}

// acceptLoop accepts connections until the server closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves request streams on one connection.
func (s *Server) handleConn(conn quic.Connection) {
	defer s.wg.Done()

	if _, err := extractPublicKey(conn.ConnectionState().TLS); err != nil {
		logger.Debug("rejecting unauthenticated connection", "error", err)
		conn.CloseWithError(1, "unauthenticated")
		return
	}

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.handleStream(stream)
	}
}

// handleStream runs one request/response exchange.
func (s *Server) handleStream(stream quic.Stream) {
	defer s.wg.Done()
	defer stream.Close()

	request, err := readMessage(stream)
	if err != nil {
		logger.Debug("read request failed", "error", err)
		return
	}

	response, handlerErr := s.handler(request)

	if err := writeMessage(stream, encodeResponse(response, handlerErr)); err != nil {
		logger.Debug("write response failed", "error", err)
	}
}
