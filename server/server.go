// Package server exposes a db.Access over a TCP JSON-lines protocol.
package server

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/protocol"
)

// Server is a TCP SQL server in front of one Access. Statements from all
// connections run one at a time on the Access connection. While a session
// has a transaction open, other sessions are refused.
type Server struct {
	listener   net.Listener
	access     *db.Access
	identity   core.Identity
	authConfig *AuthConfig
	tlsEnabled bool
	done       chan struct{}
	wg         sync.WaitGroup

	mu       sync.Mutex
	txn      *db.Transaction
	txnOwner string
}

// NewServer creates a server for access. Journal entries are authored by
// the identity of the Access.
func NewServer(access *db.Access) *Server {
	return &Server{
		access:   access,
		identity: access.Options().Identity,
		done:     make(chan struct{}),
	}
}

// NewServerWithAuth creates a server that requires AUTH before any
// statement when authConfig is enabled. Journal entries are authored by
// the authenticated identity.
func NewServerWithAuth(access *db.Access, authConfig *AuthConfig) *Server {
	server := NewServer(access)
	server.authConfig = authConfig
	return server
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	glog.Infof("SQL Server listening on %s", listener.Addr())

	go s.acceptLoop()
	return nil
}

// StartTLS begins listening for TLS connections with the given
// certificate and key files.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	listener, err := tls.Listen("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	s.listener = listener
	s.tlsEnabled = true

	glog.Infof("SQL Server listening on %s (TLS)", listener.Addr())

	go s.acceptLoop()
	return nil
}

// TLSEnabled reports whether the server was started with StartTLS.
func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

// Stop gracefully shuts down the server. The Access stays open.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				glog.Warningf("Accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sess := &session{id: uuid.NewString()}
	glog.Infof("[%s] Client connected: %s", sess.id, conn.RemoteAddr())
	defer s.endSession(sess)

	// Unblock reads on shutdown.
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-s.done:
			conn.Close()
		case <-closed:
		}
	}()

	reader := bufio.NewReader(conn)

	for {
		// Read until newline (one request per line)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				glog.Warningf("[%s] Read error from %s: %v", sess.id, conn.RemoteAddr(), err)
			}
			return
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		lower := strings.ToLower(text)
		if lower == "quit" || lower == "exit" {
			glog.Infof("[%s] Client disconnected: %s", sess.id, conn.RemoteAddr())
			return
		}

		var response protocol.Response
		if strings.HasPrefix(strings.ToUpper(text), "AUTH ") {
			response = s.authenticate(text, sess)
			if response.Success {
				glog.Infof("[%s] Authenticated as %s", sess.id, sess.identity)
			}
		} else {
			response = s.handleRequest(sess, text)
		}

		data, err := protocol.EncodeResponse(response)
		if err != nil {
			glog.Errorf("[%s] Failed to encode response: %v", sess.id, err)
			continue
		}

		if _, err := conn.Write(data); err != nil {
			glog.Warningf("[%s] Write error to %s: %v", sess.id, conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) handleRequest(sess *session, line string) protocol.Response {
	req, err := protocol.DecodeRequest([]byte(line))
	if err != nil {
		return protocol.Failure("", fmt.Errorf("invalid request: %w", err))
	}
	if strings.TrimSpace(req.Query) == "" {
		return protocol.Failure("", errors.New("empty query"))
	}

	if s.authRequired() {
		if err := sess.checkAuth(); err != nil {
			return protocol.Failure("", err)
		}
	}

	if glog.V(1) {
		glog.Infof("[%s] %s", sess.id, req.Query)
	}
	return s.executeQuery(req.Query, sess)
}

func (s *Server) executeQuery(query string, sess *session) protocol.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txn != nil && s.txnOwner != sess.id {
		return protocol.Failure("", errTransactionBusy)
	}

	identity := s.identity
	if sess.identity != nil {
		identity = *sess.identity
	}
	s.access.SetIdentity(identity)

	if control := transactionControl(query); control != txnNone {
		return s.controlTransaction(sess, control)
	}

	output, result := s.access.Run(query)
	if !result.IsOk() {
		return protocol.Failure("", result.Err())
	}
	if result.HaveWarning() {
		glog.Warning(result.Message())
	}

	switch r := output.(type) {
	case db.QueryResult:
		return protocol.Success(protocol.TypeQuery, protocol.NewQueryResponse(r))

	case db.ExecResult:
		return protocol.Success(protocol.TypeExec, protocol.ExecResponse{TimeMs: r.ExecutionTimeSec * 1000})

	default:
		return protocol.Response{
			Success: true,
			Type:    "unknown",
		}
	}
}
