// Package diagnostic exposes an optional local websocket endpoint that
// broadcasts the same window-state snapshot the shell-integration
// socket's query_windows answers, for live introspection (a debug
// overlay, a test harness, a browser tab) without having to script the
// Unix-socket protocol.
package diagnostic

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// upgrader allows any origin: this endpoint is meant to be bound to
// loopback only, the same trust boundary as the shell-integration
// socket.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// client wraps one connected websocket with its own write lock, since
// gorilla/websocket forbids concurrent writers on a single connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server accepts websocket connections on one HTTP endpoint and
// rebroadcasts every snapshot passed to Broadcast to all of them.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewServer creates a diagnostic server bound to addr (e.g.
// "127.0.0.1:0" to let the OS pick a port).
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on diagnostic address: %w", err)
	}

	s := &Server{listener: ln, clients: make(map[*client]bool)}
	mux := http.NewServeMux()
	mux.HandleFunc("/windows", s.handleWebsocket)
	s.httpServer = &http.Server{Handler: mux}
	return s, nil
}

// Addr returns the address the server is actually listening on, which
// matters when the port was chosen by the OS.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks, accepting connections until Close is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts down the HTTP listener and drops every connected client.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = nil
	s.mu.Unlock()
	return s.httpServer.Close()
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	// Discard anything the client sends; this endpoint is read-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends snapshot to every connected client, dropping the
// connection on a write failure rather than blocking the caller's
// frame loop on a slow reader.
func (s *Server) Broadcast(snapshot json.RawMessage) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(snapshot); err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			c.conn.Close()
		}
	}
}
