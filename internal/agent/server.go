// Package agent is the local execution agent: a loopback-only websocket
// listener that runs confirmed commands in a shell and streams their output
// back over the same connection.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultAddr      = "127.0.0.1:5111"
	DefaultWaitDelay = 2 * time.Second
)

// Origins are checked after the upgrade so that a refused browser still
// gets the policy close frame.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Config struct {
	Addr     string
	Launcher Launcher

	// WaitDelay bounds how long an exited command may keep its output
	// pipes open through a stray child.
	WaitDelay time.Duration
}

// Server accepts relay connections. Each connection gets its own session;
// commands started on a session are killed when it ends.
type Server struct {
	cfg Config

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup

	running atomic.Int64
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Launcher == nil {
		cfg.Launcher = Shell()
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Server{
		cfg:      cfg,
		sessions: make(map[*session]struct{}),
	}
}

// Handler routes the relay endpoint and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", loopbackOnly(promhttp.Handler()))
	mux.Handle("/", s)
	return mux
}

// ServeHTTP upgrades the connection and serves one relay session. Remote
// peers and pages from a non-local origin are upgraded and immediately
// closed with a policy violation.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	if !isLoopback(r.RemoteAddr) || !localOrigin(r.Header.Get("Origin")) {
		Connections.WithLabelValues("rejected").Inc()
		slog.Warn("rejecting connection", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Forbidden")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	sess := newSession(conn, s.cfg.Launcher, &s.running, s.cfg.WaitDelay)
	if !s.track(sess) {
		_ = conn.Close()
		return
	}
	defer s.untrack(sess)

	Connections.WithLabelValues("accepted").Inc()
	slog.Info("client connected", "remote", r.RemoteAddr)
	sess.serve()
	slog.Info("client disconnected", "remote", r.RemoteAddr)
}

// ListenAndServe binds cfg.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("agent listening", "addr", "ws://"+ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := hs.Shutdown(shutdownCtx)
	s.Close()
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// Close drops every session, which kills their commands, and waits for them.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Running returns how many commands are in flight across all sessions.
func (s *Server) Running() int {
	return int(s.running.Load())
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.wg.Done()
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// localOrigin accepts requests without an Origin header (non-browser
// clients) and pages served from localhost or a loopback address.
func localOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
