package transport

import (
	"net/http"

	"github.com/gorilla/websocket"

	"supportcore/internal/monitoring"
)

// Server upgrades incoming HTTP requests to WebSocket connections and runs
// the frame protocol over each one.
type Server struct {
	handler  Handler
	logger   *monitoring.Logger
	upgrader websocket.Upgrader
}

// NewServer builds a Server. handler is typically a *pipeline.Pipeline.
func NewServer(handler Handler, logger *monitoring.Logger) *Server {
	return &Server{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newConnection(r.Context(), conn, s.handler, s.logger)
	c.run()
}
