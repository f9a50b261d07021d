package server

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"fbdevops/internal/monitor"
	"fbdevops/view"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	rscors "github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Snapshotter interface {
	Snapshot(ctx context.Context) monitor.Snapshot
}

func New(addr string, snap Snapshotter, log zerolog.Logger, push time.Duration) *Server {
	if push <= 0 {
		push = 2 * time.Second
	}
	s := &Server{snap: snap, log: log, push: push, done: make(chan struct{})}

	cors := rscors.New(rscors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		Debug:          false,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler)
	r.Get("/", s.DashboardHandler)
	r.With(WrapResponseWriter).Get("/status", s.StatusHandler)
	r.Get("/ws", s.WebSocketHandler)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown does not track hijacked connections
	s.RegisterOnShutdown(func() { s.closeOnce.Do(func() { close(s.done) }) })
	return s
}

type Server struct {
	*http.Server
	snap Snapshotter
	log  zerolog.Logger
	push time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := view.Dashboard.Execute(&buf, s.snap.Snapshot(r.Context())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// StatusHandler serves the snapshot without its timestamp so the ETag only
// changes with the content.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write(s.status(r.Context()))
}

func (s *Server) status(ctx context.Context) []byte {
	snap := s.snap.Snapshot(ctx)
	snap.Time = time.Time{}
	return monitor.Encode(snap)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is meant to be opened through tunnels on any host
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocketHandler pushes the status JSON whenever it changes.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// reads only detect the client going away
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	tick := time.NewTicker(s.push)
	defer tick.Stop()

	var last []byte
	for {
		body := s.status(ctx)
		if last != nil && !bytes.Equal(body, last) {
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
		last = body

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case <-tick.C:
		}
	}
}
