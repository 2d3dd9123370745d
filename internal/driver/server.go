// Server is the optional static dev server spec §6's `serve` config block
// names: a plain net/http file server plus a Server-Sent Events endpoint
// that notifies connected browsers when a watch build finishes, modeled
// directly on please_js/esmdev/hmr.go's handleSSE/broadcast pair (the
// static file serving itself stays out of scope per spec §1 — only the
// config shape and a minimal server exist here, per SPEC_FULL §12).
package driver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/remotex-labs/xBuild-sub001/internal/config"
)

type sseEvent struct {
	Type string `json:"type"`
}

// Server serves cfg.Dir as static files and exposes /__xbuild/events for
// SSE-driven reload notifications.
type Server struct {
	cfg config.ServeConfig

	sseMu   sync.Mutex
	clients map[chan sseEvent]struct{}

	httpServer *http.Server
}

// NewServer builds a Server from cfg. Dir defaults to ".", Port to 8080,
// Host to "127.0.0.1".
func NewServer(cfg config.ServeConfig) *Server {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}

	s := &Server{cfg: cfg, clients: make(map[chan sseEvent]struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/__xbuild/events", s.handleSSE)
	mux.Handle("/", http.FileServer(http.Dir(dir)))

	s.httpServer = &http.Server{Addr: fmt.Sprintf("%s:%d", host, port), Handler: mux}
	return s
}

// Start begins serving in the background, logging unexpected shutdown
// errors to stderr the way please_js/dev.go's own httpServer goroutine
// does, and never blocking the caller.
func (s *Server) Start() {
	go func() {
		var err error
		if s.cfg.Https {
			err = s.httpServer.ListenAndServeTLS(s.cfg.Cert, s.cfg.Key)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		}
	}()
}

// Reload broadcasts a reload event to every connected SSE client.
func (s *Server) Reload() {
	s.broadcast(sseEvent{Type: "reload"})
}

func (s *Server) broadcast(evt sseEvent) {
	s.sseMu.Lock()
	for ch := range s.clients {
		select {
		case ch <- evt:
		default:
		}
	}
	s.sseMu.Unlock()
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch := make(chan sseEvent, 1)
	s.sseMu.Lock()
	s.clients[ch] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.clients, ch)
		s.sseMu.Unlock()
	}()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// Close shuts down the underlying http.Server.
func (s *Server) Close() error {
	return s.httpServer.Close()
}
