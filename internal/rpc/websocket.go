package rpc

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/pkg/logging"
)

// WebSocketServer upgrades incoming HTTP connections to websockets and runs
// one Session per connection, generalizing the teacher's GodotServer
// (internal/godot_ws/godot_ws.go: upgrader, clients map, per-connection read
// loop) from its single hardcoded Godot client to the many-client JSON-RPC
// surface.
type WebSocketServer struct {
	fab      *fabric.Fabric
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*Session
}

// NewWebSocketServer constructs a server wired to fab. CheckOrigin always
// accepts, mirroring the teacher's local-network assumption.
func NewWebSocketServer(fab *fabric.Fabric) *WebSocketServer {
	return &WebSocketServer{
		fab: fab,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*Session),
	}
}

// ServeHTTP implements http.Handler, upgrading the connection and running
// its read loop until it closes.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("rpc: websocket upgrade: %v", err)
		return
	}
	s.serve(conn)
}

func (s *WebSocketServer) serve(conn *websocket.Conn) {
	var writeMu sync.Mutex
	sess := NewSession(s.fab, func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	})

	s.mu.Lock()
	s.clients[conn] = sess
	s.mu.Unlock()

	defer func() {
		sess.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := sess.HandleMessage(data); err != nil {
			logging.Error("rpc: handling message: %v", err)
		}
	}
}

// ClientCount returns the number of currently connected websocket clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
