package livestats

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"finiex/internal/core"
)

const clientWriteTimeout = 10 * time.Second

// Server exposes the hub over a websocket endpoint for external display
// frontends.
type Server struct {
	hub      *Hub
	srv      *http.Server
	logger   core.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the display server listening on addr.
func NewServer(hub *Hub, addr string, logger core.Logger) *Server {
	s := &Server{
		hub:    hub,
		logger: logger.WithField("component", "livestats_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local display tooling only; the listener binds loopback in
			// the default config.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting live stats server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Live stats server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	msgs, cancel := s.hub.Subscribe(uuid.NewString())

	go s.writePump(conn, msgs, cancel)
	go s.readPump(conn, cancel)
}

// writePump forwards hub messages to the socket until the subscription
// channel closes.
func (s *Server) writePump(conn *websocket.Conn, msgs <-chan Message, cancel func()) {
	defer conn.Close()
	for msg := range msgs {
		conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump drains inbound frames so pings and close frames are handled;
// display clients never send payloads the server acts on.
func (s *Server) readPump(conn *websocket.Conn, cancel func()) {
	defer func() {
		cancel()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
