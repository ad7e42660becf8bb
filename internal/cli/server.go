package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/metrics"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

// Server speaks the line protocol over TCP, one session per connection.
type Server struct {
	svc *scheduler.Service
	log *slog.Logger
}

func NewServer(svc *scheduler.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, log: logger}
}

// Serve accepts connections until ctx is cancelled, then waits for open
// connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.LineSessionOpened()
	defer metrics.LineSessionClosed()

	// unblock the reader on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.log.With(slog.String("remote", conn.RemoteAddr().String()))
	log.Info("line session opened")

	if err := New(s.svc, conn, log).Run(ctx, conn); err != nil && ctx.Err() == nil {
		log.Warn("line session ended with error", slog.String("error", err.Error()))
	}
	log.Info("line session closed")
}
