package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/protocol"
)

// Handler reacts to inbound messages on a connection. OnConnect is invoked
// once per accepted socket (before any reads), and is responsible for
// emitting server_hello and wiring a handle func via conn.Send from its own
// goroutines as server-originated events occur.
type Handler interface {
	OnConnect(ctx context.Context, conn *Connection)
	OnMessage(ctx context.Context, conn *Connection, msg protocol.Message)
	OnDisconnect(conn *Connection)
}

// Server exposes one websocket upgrade endpoint, one control connection per
// accepted socket. It reuses chi the way the teacher's HTTP surfaces do,
// even though the bulk request/response API the teacher built chi for is
// gone — the router here only carries the upgrade route and whatever static
// HTTP surfaces (workspace file listing, OAuth loopback callback) are
// mounted alongside it.
type Server struct {
	router  chi.Router
	handler Handler
	http    *http.Server
}

// Config controls the listen address and CORS policy for the upgrade route.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// New builds a Server. Additional routes (OAuth callback, file listing) can
// be mounted on Router() before Start is called.
func New(cfg Config, handler Handler) *Server {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	s := &Server{router: r, handler: handler}
	r.Get("/session", s.handleUpgrade)
	s.http = &http.Server{Addr: cfg.Addr, Handler: r}
	return s
}

// Router exposes the underlying chi router so callers can mount additional
// HTTP routes (OAuth callback, directory listing) before Start.
func (s *Server) Router() chi.Router { return s.router }

// Addr returns the address the HTTP server is configured to bind.
func (s *Server) Addr() string { return s.http.Addr }

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(ws)
	ctx := r.Context()

	go conn.writePump(ctx)
	s.handler.OnConnect(ctx, conn)
	defer s.handler.OnDisconnect(conn)

	conn.readLoop(ctx, func(msg protocol.Message) {
		s.handler.OnMessage(ctx, conn, msg)
	})
}

// Start binds the listener and serves until the context is cancelled or
// Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.http.Addr).Msg("transport listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ListenEphemeral binds the configured address (":0" picks an ephemeral
// port), starts serving in the background, and returns the actually bound
// address. Used by the workspace supervisor, which needs the resolved
// port before it can hand a URL back to the conductor.
func (s *Server) ListenEphemeral() (string, error) {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return "", err
	}
	s.http.Addr = l.Addr().String()
	go func() {
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("transport server error")
		}
	}()
	return s.http.Addr, nil
}
