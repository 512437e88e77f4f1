// Package listener implements the Listener: it binds a TCP port,
// upgrades accepted connections to a duplex WebSocket channel via
// gorilla/websocket, and spawns a Session per connection. Health,
// readiness, and metrics endpoints are hosted on the same mux as the
// WebSocket upgrade endpoint.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/care/screenshare/internal/capture"
	"github.com/care/screenshare/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Authentication and origin checks are left to a layer in front of
	// this process (a reverse proxy or the host application); allow any
	// origin here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionFactory builds a Session over an upgraded connection. Kept as
// a function so the listener does not need to know about Session's
// port wiring.
type SessionFactory func(conn session.Conn) *session.Session

// Listener accepts duplex connections on a configured address and
// spawns a Session per connection. Idempotent start/stop.
type Listener struct {
	engine  *capture.Engine
	factory SessionFactory

	mu       sync.Mutex
	running  bool
	server   *http.Server
	addr     string
	sessions map[*session.Session]struct{}
}

// New creates a Listener. factory is invoked once per accepted
// connection to construct its Session.
func New(engine *capture.Engine, factory SessionFactory) *Listener {
	return &Listener{
		engine:   engine,
		factory:  factory,
		sessions: make(map[*session.Session]struct{}),
	}
}

// Start binds a TCP listener on address:port, serving the WebSocket
// upgrade at /ws and health endpoints at /health, /readiness,
// /metrics. If already running, it logs a notification and returns
// nil without opening a second listener.
func (l *Listener) Start(address string, port int) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		slog.Info("listener: server is already running")
		return nil
	}
	l.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", address, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listener: bind %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handleUpgrade)
	mux.HandleFunc("/health", l.handleHealth)
	mux.HandleFunc("/readiness", l.handleReadiness)
	mux.HandleFunc("/metrics", l.handleMetrics)

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections
		IdleTimeout:  60 * time.Second,
	}

	l.mu.Lock()
	l.running = true
	l.server = server
	l.addr = ln.Addr().String()
	l.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("listener: serve failed", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("server started at http://%s", ln.Addr().String()))
	return nil
}

// Addr returns the actual bound address (useful when port 0 was
// requested), or "" if the listener is not running.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Stop closes the listener, which closes all active connections and
// triggers each Session's cleanup. Every cleanup step is best-effort:
// an error in one step never skips the rest, and Stop never returns an
// error it cannot recover from on its own.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	server := l.server
	sessions := make([]*session.Session, 0, len(l.sessions))
	for s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.running = false
	l.server = nil
	l.addr = ""
	l.sessions = make(map[*session.Session]struct{})
	l.mu.Unlock()

	for _, s := range sessions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("listener: panic disposing session during stop", "recovered", r)
				}
			}()
			s.Dispose()
		}()
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("listener: error during http server shutdown", "error", err)
		}
	}

	slog.Info("WebSocket server closed.")
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("listener: upgrade failed", "error", err)
		return
	}

	s := l.factory(conn)

	l.mu.Lock()
	l.sessions[s] = struct{}{}
	l.mu.Unlock()

	go func() {
		s.Run()
		l.mu.Lock()
		delete(l.sessions, s)
		l.mu.Unlock()
	}()
}

func (l *Listener) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"status": "alive"})
}

func (l *Listener) handleReadiness(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	running := l.running
	sessionCount := len(l.sessions)
	l.mu.Unlock()

	status := "ready"
	code := http.StatusOK
	if !running {
		status = "not-running"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   status,
		"sessions": sessionCount,
	})
}

func (l *Listener) handleMetrics(w http.ResponseWriter, r *http.Request) {
	cfg := l.engine.Config()
	dims := l.engine.ScaledDims()

	l.mu.Lock()
	sessionCount := len(l.sessions)
	l.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "screenshare_sessions %d\n", sessionCount)
	fmt.Fprintf(w, "screenshare_quality_width %d\n", cfg.Width)
	fmt.Fprintf(w, "screenshare_quality_jpeg %d\n", cfg.JPEGQuality)
	fmt.Fprintf(w, "screenshare_quality_fps %d\n", cfg.FPS)
	fmt.Fprintf(w, "screenshare_scaled_width %d\n", dims.Width)
	fmt.Fprintf(w, "screenshare_scaled_height %d\n", dims.Height)
}
