package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/clovis-agent/clovis/pkg/logger"
)

const (
	requestIDDedupWindow = 10 * time.Second
	textDedupWindow      = 1200 * time.Millisecond

	// The overlay is a single-renderer surface; the only other expected
	// traffic is an occasional /healthz or /procs poll.
	maxConns = 4
)

// OverlayInputHandler receives a deduplicated text request from the
// overlay renderer.
type OverlayInputHandler func(text, requestID string)

// ClickHandler receives a per-entity click event from the overlay.
type ClickHandler func(entityID string)

// ProcessInfo is the JSON shape the /procs endpoint reports, decoupled
// from procmgr.Process so this package does not import procmgr.
type ProcessInfo struct {
	ID      string `json:"id"`
	PID     int    `json:"pid"`
	Command string `json:"command"`
	Uptime  string `json:"uptime"`
	Port    int    `json:"active_port,omitempty"`
}

// ViewportHandler receives the renderer's reported viewport size.
type ViewportHandler func(width, height float64)

// Server is the HTTP/WebSocket front door for the overlay renderer
// (component A). It owns the Hub, deduplicates overlay_input frames, and
// dispatches control events to registered callbacks.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub

	onOverlayInput      OverlayInputHandler
	onCaptureScreenshot func()
	onStopAll           func()
	onViewport          ViewportHandler
	onClick             ClickHandler

	onProcsList    func() []ProcessInfo
	onProcsStop    func(id string) error
	onProcsStopAll func() int

	dedupMu       sync.Mutex
	seenRequestID map[string]time.Time
	lastText      string
	lastTextAt    time.Time

	addr string
}

// NewServer builds a Server bound to hub. Host/port are resolved at Start.
func NewServer(hub *Hub) *Server {
	router := mux.NewRouter()
	s := &Server{
		router:        router,
		hub:           hub,
		seenRequestID: make(map[string]time.Time),
	}

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := ServeWs(s.hub, s.dispatch, w, r); err != nil {
			logger.Error().Err(err).Msg("overlay websocket upgrade failed")
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/procs", s.handleProcsList).Methods(http.MethodGet)
	router.HandleFunc("/procs/{id}/stop", s.handleProcsStop).Methods(http.MethodPost)
	router.HandleFunc("/procs/stopall", s.handleProcsStopAll).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the WS connection is long-lived
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// OnOverlayInput registers the handler for deduplicated overlay_input events.
func (s *Server) OnOverlayInput(h OverlayInputHandler) { s.onOverlayInput = h }

// OnCaptureScreenshot registers the handler for capture_screenshot events.
func (s *Server) OnCaptureScreenshot(h func()) { s.onCaptureScreenshot = h }

// OnStopAll registers the handler for stop_all events.
func (s *Server) OnStopAll(h func()) { s.onStopAll = h }

// OnViewport registers the handler for viewport events.
func (s *Server) OnViewport(h ViewportHandler) { s.onViewport = h }

// OnClick registers the handler for per-entity click events.
func (s *Server) OnClick(h ClickHandler) { s.onClick = h }

// OnProcsList registers the handler backing GET /procs, used by
// `clovisd background list` to observe this daemon's ProcMgr table over
// HTTP (there is no cross-process IPC, so a separate CLI invocation can
// only see a running daemon's background processes this way).
func (s *Server) OnProcsList(h func() []ProcessInfo) { s.onProcsList = h }

// OnProcsStop registers the handler backing POST /procs/{id}/stop.
func (s *Server) OnProcsStop(h func(id string) error) { s.onProcsStop = h }

// OnProcsStopAll registers the handler backing POST /procs/stopall.
func (s *Server) OnProcsStopAll(h func() int) { s.onProcsStopAll = h }

// Hub returns the underlying broadcast hub.
func (s *Server) Hub() *Hub { return s.hub }

// Addr returns the address the server ended up bound to, valid after Start.
func (s *Server) Addr() string { return s.addr }

// Start binds host:port, falling back to an ephemeral port if it is taken.
// The actually-bound port is returned so the caller can persist it back to
// settings.
func (s *Server) Start(host string, port int) (int, error) {
	ln, boundPort, err := listen(host, port)
	if err != nil {
		return 0, err
	}
	ln = netutil.LimitListener(ln, maxConns)
	s.addr = net.JoinHostPort(host, strconv.Itoa(boundPort))

	go s.hub.Run()

	go func() {
		logger.Info().Str("addr", s.addr).Msg("overlay transport listening")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("overlay transport server error")
		}
	}()

	return boundPort, nil
}

// Shutdown gracefully stops the HTTP server and the hub loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func listen(host string, port int) (net.Listener, int, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, port, nil
	}

	logger.Warn().Int("port", port).Err(err).Msg("configured port unavailable, selecting ephemeral port")
	ln, err = net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, 0, fmt.Errorf("bind ephemeral port: %w", err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}

// dispatch routes one parsed Inbound frame to the relevant callback, applying
// overlay_input deduplication.
func (s *Server) dispatch(in Inbound) {
	switch in.Event {
	case EventOverlayInput:
		if s.shouldDrop(in.Text, in.RequestID) {
			return
		}
		if s.onOverlayInput != nil {
			s.onOverlayInput(in.Text, in.RequestID)
		}
	case EventCaptureScreenshot:
		if s.onCaptureScreenshot != nil {
			s.onCaptureScreenshot()
		}
	case EventStopAll:
		if s.onStopAll != nil {
			s.onStopAll()
		}
	case EventViewport:
		if s.onViewport != nil {
			s.onViewport(in.Width, in.Height)
		}
	case EventClick:
		if s.onClick != nil {
			s.onClick(in.ID)
		}
	default:
		logger.Warn().Str("event", in.Event).Msg("unrecognized overlay inbound event")
	}
}

// shouldDrop implements the overlay_input de-duplication rule: a requestId
// seen within the last 10s is dropped; otherwise normalized text equal to
// the previous text within 1.2s is dropped. When both requestId and text are
// present, requestId dedup alone decides (the reference behavior when the
// spec leaves precedence unstated).
func (s *Server) shouldDrop(text, requestID string) bool {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	now := time.Now()
	for id, seenAt := range s.seenRequestID {
		if now.Sub(seenAt) > requestIDDedupWindow {
			delete(s.seenRequestID, id)
		}
	}

	if requestID != "" {
		if seenAt, ok := s.seenRequestID[requestID]; ok && now.Sub(seenAt) <= requestIDDedupWindow {
			return true
		}
		s.seenRequestID[requestID] = now
		return false
	}

	normalized := normalizeText(text)
	if normalized == s.lastText && now.Sub(s.lastTextAt) <= textDedupWindow {
		return true
	}
	s.lastText = normalized
	s.lastTextAt = now
	return false
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (s *Server) handleProcsList(w http.ResponseWriter, r *http.Request) {
	var procs []ProcessInfo
	if s.onProcsList != nil {
		procs = s.onProcsList()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(procs)
}

func (s *Server) handleProcsStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.onProcsStop == nil {
		http.Error(w, "background process management unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.onProcsStop(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProcsStopAll(w http.ResponseWriter, r *http.Request) {
	stopped := 0
	if s.onProcsStopAll != nil {
		stopped = s.onProcsStopAll()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"stopped": stopped})
}
