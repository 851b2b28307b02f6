// Package server serves the record editor over SSH.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/history"
)

// Server is the SSH server for tableedit.
type Server struct {
	config        *config.Config
	dbManager     *database.Manager
	historyStore  *history.Store
	logger        *log.Logger
	sessionMgr    *SessionManager
	authenticator *Authenticator
	tuiHandler    bubbletea.Handler
	cliHandler    func(ssh.Session)

	sshServer *ssh.Server
	mu        sync.Mutex
}

// NewServer creates a new SSH server.
func NewServer(cfg *config.Config, dbManager *database.Manager, historyStore *history.Store, logger *log.Logger) *Server {
	return &Server{
		config:        cfg,
		dbManager:     dbManager,
		historyStore:  historyStore,
		logger:        logger,
		sessionMgr:    NewSessionManager(historyStore, logger),
		authenticator: NewAuthenticator(cfg, historyStore, logger),
	}
}

// SetTUIHandler sets the Bubble Tea handler for interactive sessions.
func (s *Server) SetTUIHandler(handler bubbletea.Handler) {
	s.tuiHandler = handler
}

// SetCLIHandler sets the handler for CLI commands.
func (s *Server) SetCLIHandler(handler func(ssh.Session)) {
	s.cliHandler = handler
}

// Start runs the server until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	server, err := s.build()
	if err != nil {
		return err
	}

	s.logger.Infof("Starting SSH server on %s", s.config.Server.Listen)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			s.logger.Errorf("SSH server error: %v", err)
		}
	}()

	<-done
	s.logger.Info("Shutting down SSH server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}

// ListenAndServe starts the server without signal handling (for embedding).
func (s *Server) ListenAndServe() error {
	server, err := s.build()
	if err != nil {
		return err
	}
	return server.ListenAndServe()
}

// build creates the wish server with the middleware chain.
func (s *Server) build() (*ssh.Server, error) {
	// Ensure host key directory exists
	hostKeyPath := s.config.GetHostKeyPath()
	if err := os.MkdirAll(filepath.Dir(hostKeyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create host key directory: %w", err)
	}

	// Order matters: the last middleware runs first, so the editor is built
	// after the session exists and routing sees both.
	middleware := []wish.Middleware{
		s.routingMiddleware(),
		EditorMiddleware(s.dbManager, s.historyStore, s.config, s.logger),
		SessionMiddleware(s.sessionMgr),
		DatabaseMiddleware(s.dbManager),
		HistoryMiddleware(s.historyStore),
		LoggingMiddleware(s.sessionMgr, s.logger),
	}

	opts := []ssh.Option{
		wish.WithAddress(s.config.Server.Listen),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithPublicKeyAuth(s.authenticator.PublicKeyHandler()),
		wish.WithMiddleware(middleware...),
	}

	// Add keyboard-interactive auth if keyless is allowed
	if s.config.KeylessAllowed() {
		opts = append(opts, wish.WithKeyboardInteractiveAuth(s.authenticator.KeyboardInteractiveHandler()))
	}

	if d := s.config.GetIdleTimeout(); d > 0 {
		opts = append(opts, wish.WithIdleTimeout(d))
	}
	if d := s.config.GetMaxTimeout(); d > 0 {
		opts = append(opts, wish.WithMaxTimeout(d))
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH server: %w", err)
	}
	s.mu.Lock()
	s.sshServer = server
	s.mu.Unlock()
	return server, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.sshServer
	s.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// GetAddr returns the server's listen address string.
func (s *Server) GetAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sshServer != nil {
		return s.sshServer.Addr
	}
	return ""
}

// routingMiddleware routes requests to either TUI or CLI handler.
func (s *Server) routingMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			// If command is provided, use CLI handler
			if len(sess.Command()) > 0 {
				if s.cliHandler != nil {
					s.cliHandler(sess)
				} else {
					wish.Fatalln(sess, "CLI commands are not available")
				}
				return
			}

			_, _, hasPty := sess.Pty()
			if !hasPty {
				wish.Fatalln(sess, "PTY required for interactive mode. Use -t flag or provide a command.")
				return
			}

			if s.tuiHandler == nil {
				wish.Fatalln(sess, "Interactive mode is not available")
				return
			}
			bubbletea.Middleware(s.tuiHandler)(next)(sess)
		}
	}
}

// GetSessionManager returns the session manager.
func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionMgr
}
