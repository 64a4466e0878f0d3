// Package preview serves the rendered output directory over HTTP and
// pushes a reload event to connected browsers after every render.
//
// Browsers connect to /ws; pages generated with live reload enabled open
// the socket and reload themselves when a {"type":"reload"} event arrives.
// Everything else is plain static file serving of the output directory.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/treykane/mdwatch/internal/logging"
)

// writeTimeout bounds each websocket write so one stalled browser cannot
// block the broadcast.
const writeTimeout = 10 * time.Second

// event is the JSON payload pushed to clients.
type event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves a directory of rendered HTML and fans reload events out to
// websocket subscribers.
type Server struct {
	log  *slog.Logger
	addr string
	dir  string

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New returns a preview server for dir listening on addr.
func New(addr, dir string) *Server {
	s := &Server{
		log:  logging.New("preview"),
		addr: addr,
		dir:  dir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", http.FileServer(http.Dir(dir)))
	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Start begins serving in the background and returns the bound address
// (useful with a ":0" listen address). The server shuts down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("preview server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	addr := ln.Addr().String()
	s.log.Info("preview server listening", "addr", addr, "dir", s.dir)
	return addr, nil
}

// Broadcast pushes a reload event to every connected client. Clients whose
// write fails are dropped.
func (s *Server) Broadcast() {
	payload, err := json.Marshal(event{Type: "reload", Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			s.dropLocked(conn)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.dropLocked(conn)
		}
	}
}

// ClientCount reports how many browsers are currently connected.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("reload client connected", "remote", conn.RemoteAddr())

	// Drain incoming frames until the client goes away; we never expect
	// meaningful messages from the browser.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	s.dropLocked(conn)
	s.mu.Unlock()
}

// dropLocked removes and closes a connection. Callers hold s.mu.
func (s *Server) dropLocked(conn *websocket.Conn) {
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		_ = conn.Close()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
}
