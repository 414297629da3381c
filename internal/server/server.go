// Package server implements the bank's TCP listener and the
// per-connection session driver. Every accepted connection is
// authenticated against the client id allow-list and then served by one
// session goroutine; all sessions share a single ledger instance.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wlfb/bankline/internal/bank"
	"github.com/wlfb/bankline/internal/config"
	"github.com/wlfb/bankline/internal/consts"
	"github.com/wlfb/bankline/internal/logger"
	"github.com/wlfb/bankline/internal/wire"
)

// RefusalMessage is sent to a connecting party whose client id is not on
// the allow-list, before the connection is closed.
const RefusalMessage = "Connection refused: Invalid client ID."

// Server accepts client connections and spawns one session per
// authenticated client.
type Server struct {
	cfg      *config.Config
	ledger   *bank.Ledger
	listener net.Listener

	// Session tracking
	connMu   sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a server with a fresh ledger built from the configuration.
func New(cfg *config.Config) (*Server, error) {
	ledger, err := bank.NewLedger(cfg.InitialBalance, cfg.ClientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	return &Server{
		cfg:      cfg,
		ledger:   ledger,
		sessions: make(map[string]*Session),
		stopChan: make(chan struct{}),
	}, nil
}

// Ledger returns the shared ledger instance.
func (s *Server) Ledger() *bank.Ledger {
	return s.ledger
}

// Start begins listening and accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener

	go s.acceptLoop(ctx)

	logger.Info("Bank server started on %s (accounts: %v, max connections: %d)",
		listener.Addr(), s.cfg.ClientIDs, s.cfg.MaxConnections)

	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, disconnects every session, and waits for the
// session goroutines to exit.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		logger.Info("Stopping bank server...")
		close(s.stopChan)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Error("Error closing listener: %v", err)
			}
		}

		s.connMu.Lock()
		for _, sess := range s.sessions {
			sess.Close()
		}
		s.connMu.Unlock()

		s.wg.Wait()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		logger.Info("Bank server stopped")
	})

	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.sessions)
}

// acceptLoop accepts incoming connections until stopped.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Accept loop stopped via context cancellation")
			return
		case <-s.stopChan:
			logger.Debug("Accept loop stopped via stop signal")
			return
		default:
			// Bound each Accept so shutdown is observed periodically
			if tcp, ok := s.listener.(*net.TCPListener); ok {
				_ = tcp.SetDeadline(time.Now().Add(consts.AcceptDeadline))
			}

			conn, err := s.listener.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if errors.Is(err, net.ErrClosed) {
					logger.Debug("Listener closed, exiting accept loop")
					return
				}
				logger.Error("Error accepting connection: %v", err)
				continue
			}

			go s.handshake(conn)
		}
	}
}

// handshake authenticates a fresh connection and, on success, starts its
// session. The first message must be CLIENT_ID with an allow-listed id.
func (s *Server) handshake(conn net.Conn) {
	ch := wire.NewChannel(conn)

	msg, err := ch.ReadMessage()
	if err != nil {
		logger.Warn("Connection from %s closed before handshake", conn.RemoteAddr())
		_ = ch.Close()
		return
	}

	if msg.Type != wire.TypeClientID || !s.cfg.AllowsClient(msg.Content) {
		logger.Warn("Rejected client with invalid id %q from %s", msg.Content, conn.RemoteAddr())
		_ = ch.Send(wire.TypeMessage, RefusalMessage)
		_ = ch.Close()
		return
	}

	sess := newSession(uuid.NewString(), msg.Content, s.ledger, ch, s.cfg.LockPollInterval())
	if !s.track(sess) {
		logger.Warn("Connection limit reached, rejecting client %q from %s", msg.Content, conn.RemoteAddr())
		_ = ch.Send(wire.TypeMessage, RefusalMessage)
		_ = ch.Close()
		return
	}

	logger.Info("Client[id:%s] connected from %s (session %s)", msg.Content, conn.RemoteAddr(), sess.id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(sess)
		sess.Run()
	}()
}

// track registers a session, refusing when the max-connections limit is
// already reached.
func (s *Server) track(sess *Session) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if len(s.sessions) >= s.cfg.MaxConnections {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) untrack(sess *Session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.sessions, sess.id)
}
