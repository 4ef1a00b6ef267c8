package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/dualtrack/internal/calibration"
	"github.com/shaunagostinho/dualtrack/internal/export"
	"github.com/shaunagostinho/dualtrack/internal/logger"
	"github.com/shaunagostinho/dualtrack/internal/orientation"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

// compassGrace is how long the compass may stay silent before it is
// reported unavailable.
const compassGrace = 5 * time.Second

// Deps are the components the server drives.
type Deps struct {
	Tracker    *tracker.Tracker
	Calibrator *calibration.Calibrator
	Heading    *orientation.Cell
	Quality    *orientation.QualityMonitor
	Compass    orientation.Source // nil when disabled
	Status     *SensorStatus
	GPSName    string
	WebFS      fs.FS
}

// Server exposes tracking over HTTP and streams points to WebSocket clients.
type Server struct {
	cfg      *Config
	deps     Deps
	recorder *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	ctxMu sync.Mutex
	ctx   context.Context // bounds tracking sessions
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Point   *tracker.Point       `json:"point,omitempty"`
	Points  []tracker.Point      `json:"points,omitempty"` // history on connect
	Metrics *tracker.Metrics     `json:"metrics,omitempty"`
	Quality *orientation.Quality `json:"quality,omitempty"`
	Notice  string               `json:"notice,omitempty"`
	Stamp   int64                `json:"stamp"` // Unix ms
}

// New creates a new Server and subscribes it (and the recorder) to the tracker.
func New(cfg *Config, deps Deps) *Server {
	if deps.Status == nil {
		deps.Status = NewSensorStatus()
	}
	if deps.Quality == nil {
		deps.Quality = orientation.NewQualityMonitor(cfg.Compass.QualityWindow)
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		recorder: logger.New(logger.Config{
			Enabled: cfg.Recording.Enabled,
			Path:    cfg.Recording.Path,
			MaxRows: cfg.Recording.MaxRows,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx: context.Background(),
	}
	deps.Tracker.Subscribe(s)
	deps.Tracker.Subscribe(s.recorder)
	deps.Status.setNotify(func(msg string) {
		s.broadcast(Frame{Notice: msg, Stamp: time.Now().UnixMilli()})
	})
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tracking/start", s.handleStart)
		r.Post("/tracking/stop", s.handleStop)
		r.Get("/tracking/points", s.handlePoints)
		r.Get("/tracking/metrics", s.handleMetrics)

		r.Get("/calibration", s.handleGetOffset)
		r.Post("/calibration", s.handleCalibrate)
		r.Get("/compass/quality", s.handleQuality)

		r.Get("/export/{format}", s.handleExport)

		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handleUpdateConfig)
		r.Get("/status", s.handleStatus)
	})

	if s.deps.WebFS != nil {
		r.Handle("/*", http.FileServer(http.FS(s.deps.WebFS)))
	}
	return r
}

// Run starts the orientation listener, the metrics broadcaster and the
// HTTP server. It returns when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	if s.deps.Compass != nil {
		go orientation.Feed(ctx, s.deps.Compass.Subscribe(ctx), s.deps.Heading, s.deps.Quality, func() {
			s.deps.Status.Available("compass")
		})
		go s.watchCompass(ctx)
	} else {
		s.deps.Status.Unavailable("compass", errors.New("disabled"))
	}

	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.deps.Tracker.Stop()
		s.recorder.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sessionCtx() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return s.ctx
}

// watchCompass reports the compass once if no heading arrives in time.
func (s *Server) watchCompass(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(compassGrace):
	}
	if _, ok := s.deps.Heading.Heading(); !ok {
		s.deps.Status.Unavailable("compass", fmt.Errorf("no heading from %s after %v", s.deps.Compass.Name(), compassGrace))
	}
}

// broadcastLoop pushes metrics and compass quality between fixes, since the
// heading changes independently of GPS.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.clientsMu.RLock()
			n := len(s.clients)
			s.clientsMu.RUnlock()
			if n == 0 {
				continue
			}
			m := s.deps.Tracker.Metrics()
			q := s.deps.Quality.Quality()
			s.broadcast(Frame{Metrics: &m, Quality: &q, Stamp: time.Now().UnixMilli()})
		}
	}
}

// OnPoint implements tracker.Sink. A point means the GPS is delivering again.
func (s *Server) OnPoint(_ string, p tracker.Point, m tracker.Metrics) {
	s.deps.Status.Available("gps")
	s.broadcast(Frame{Point: &p, Metrics: &m, Stamp: time.Now().UnixMilli()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Send history first so the overlay can draw both paths
	m := s.deps.Tracker.Metrics()
	hello := Frame{
		Points:  s.deps.Tracker.Points(),
		Metrics: &m,
		Stamp:   time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := s.deps.Tracker.Start(s.sessionCtx())
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Tracker.Stop()
	writeJSON(w, http.StatusOK, s.deps.Tracker.Metrics())
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Tracker.Points())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Tracker.Metrics())
}

func (s *Server) handleGetOffset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"offset": s.deps.Calibrator.Offset()})
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	_, hasSample := s.deps.Heading.Heading()
	offset, err := s.deps.Calibrator.Calibrate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m := s.deps.Tracker.Metrics()
	s.broadcast(Frame{Metrics: &m, Stamp: time.Now().UnixMilli()})
	writeJSON(w, http.StatusOK, map[string]any{"offset": offset, "headingSampled": hasSample})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Quality.Quality())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	err = export.Write(&buf, format, s.deps.Tracker.Points())
	if errors.Is(err, export.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(s.deps.Tracker.Session())))
	w.Write(buf.Bytes())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	data, err := s.cfg.ToJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if err := s.cfg.UpdateFromJSON(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Save(); err != nil {
		log.Printf("[config] save failed: %v", err)
	}
	s.cfg.mu.RLock()
	s.recorder.SetEnabled(s.cfg.Recording.Enabled)
	s.cfg.mu.RUnlock()
	s.deps.Tracker.SetOptions(s.cfg.TrackerOptions())

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	compass := "disabled"
	if s.deps.Compass != nil {
		compass = s.deps.Compass.Name()
	}
	_, hasHeading := s.deps.Heading.Heading()
	writeJSON(w, http.StatusOK, map[string]any{
		"gps":         s.deps.GPSName,
		"compass":     compass,
		"hasHeading":  hasHeading,
		"unavailable": s.deps.Status.Snapshot(),
		"recording":   s.recorder.IsEnabled(),
		"tracking":    s.deps.Tracker.Metrics(),
	})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
