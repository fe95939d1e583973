package chat

import (
	"errors"
	"log/slog"
	"net"

	"github.com/gookit/color"
)

type Server struct {
	addr     string
	logger   *slog.Logger
	reg      *Registry
	listener net.Listener

	// colorIndex is the round-robin palette cursor; only the accept
	// loop touches it.
	colorIndex int
}

func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		logger: logger,
		reg:    NewRegistry(128, logger),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.reg.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr reports the bound listen address, which differs from the
// configured one when listening on ":0".
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		s.listener.Close()
	}

	s.reg.Stop()
	s.reg.Wait()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Listener closed by Stop — normal shutdown.
				return
			}
			// A single bad accept never stops the server.
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		sess := NewSession(conn, s.nextColor())
		go HandleSession(sess, s.reg.Events())
	}
}

func (s *Server) nextColor() color.Color {
	c := namePalette[s.colorIndex%len(namePalette)]
	s.colorIndex++
	return c
}
