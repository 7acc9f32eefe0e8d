package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/seantiz/argus/internal/ws"
)

const maxMessageSize = 4 << 10 // 4 KB inbound frames

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement is left to the ingress layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades the connection and runs the read loop. Outbound
// traffic is pushed by the registry; this goroutine only consumes client
// control messages.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	sock.SetReadLimit(maxMessageSize)

	transport := ws.NewGorillaTransport(sock)
	connID := s.registry.Admit(transport, projectID)
	s.logger.Info("websocket connected", "conn_id", connID, "project_id", projectID)

	defer func() {
		s.registry.Remove(connID)
		transport.Close(websocket.CloseNormalClosure)
		s.logger.Info("websocket disconnected", "conn_id", connID)
	}()

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read", "conn_id", connID, "error", err)
			}
			return
		}
		s.registry.Dispatch(connID, raw)
	}
}
