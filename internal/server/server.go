// Package server streams generation runs to browsers over WebSocket and
// serves stored runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lawnchairsociety/roadgen/internal/config"
	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/telemetry"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

const (
	writeWait       = 10 * time.Second
	persistTimeout  = 5 * time.Second
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// Server hosts the frame stream and the run routes.
type Server struct {
	cfg          *config.Config
	db           *database.Database
	connLimiter  *ConnLimiter
	rejects      *RejectLimiter
	httpServer   *http.Server
	mux          *http.ServeMux
	ctx          context.Context
	cancel       context.CancelFunc
	streams      sync.WaitGroup
	mu           sync.Mutex
	closed       bool
	shutdownOnce sync.Once
	StartTime    time.Time
}

// NewServer builds a server. db may be nil, in which case runs are neither
// persisted nor served.
func NewServer(cfg *config.Config, db *database.Database) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		db:          db,
		connLimiter: NewConnLimiter(cfg.Server.Connections),
		rejects:     NewRejectLimiter(cfg.Server.RateLimit),
		mux:         http.NewServeMux(),
		ctx:         ctx,
		cancel:      cancel,
		StartTime:   time.Now(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocketUpgrade)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	return s
}

// Handler returns the HTTP handler for all routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on the configured address until Shutdown, which
// makes it return nil.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	logger.Info("Frame server listening", "address", s.cfg.Server.Address)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels open streams and waits for
// them to finish or for ctx to end. Later calls return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		srv := s.httpServer
		s.mu.Unlock()

		s.cancel()
		s.rejects.Stop()
		if srv != nil {
			err = srv.Shutdown(ctx)
		}

		// hijacked WebSocket connections are not tracked by http.Server
		done := make(chan struct{})
		go func() {
			s.streams.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}

		total, _ := s.connLimiter.Stats()
		logger.Info("Frame server shutdown complete", "open_streams", total)
	})
	return err
}

// beginStream registers a stream unless shutdown has started
func (s *Server) beginStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.streams.Add(1)
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, clients := s.connLimiter.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"streams":        total,
		"clients":        clients,
		"storage":        s.db != nil,
		"uptime_seconds": int(time.Since(s.StartTime).Seconds()),
	})
}

// handleWebSocketUpgrade validates the requested run, then upgrades and
// streams it.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if locked, remaining := s.rejects.IsLocked(ip); locked {
		w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())+1))
		http.Error(w, "Too many rejected requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	opts, err := s.parseOptions(r.URL.Query())
	if err != nil {
		if locked, d := s.rejects.Reject(ip); locked {
			logger.Warning("Client locked out after rejected requests", "client_ip", ip, "lockout", d)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.connLimiter.TryAcquire(ip) {
		logger.Warning("Stream rejected - limit exceeded", "remote_addr", r.RemoteAddr, "client_ip", ip)
		http.Error(w, "Too many streams. Please try again later.", http.StatusTooManyRequests)
		return
	}
	if !s.beginStream() {
		s.connLimiter.Release(ip)
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.Server.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("Stream rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade failed", "client_ip", ip, "error", err)
		s.connLimiter.Release(ip)
		s.streams.Done()
		return
	}
	s.rejects.Accept(ip)

	go func() {
		defer s.streams.Done()
		defer s.connLimiter.Release(ip)
		defer conn.Close()

		if err := s.stream(conn, opts); err != nil {
			logger.Debug("Stream ended early", "client_ip", ip, "error", err)
		}
	}()
}

// parseOptions overlays the seed, edges, cells and policy query parameters
// on the configured generator defaults. A missing seed picks a fresh one.
func (s *Server) parseOptions(q url.Values) (wfc.Options, error) {
	gc := s.cfg.Generator
	gc.Seed = time.Now().UnixNano()

	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return wfc.Options{}, fmt.Errorf("invalid seed %q", v)
		}
		gc.Seed = seed
	}
	for name, dst := range map[string]*int{"edges": &gc.UniqueEdgeCount, "cells": &gc.TotalCells} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return wfc.Options{}, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = n
	}
	if v := q.Get("policy"); v != "" {
		gc.Policy = v
	}

	opts, err := gc.Options()
	if err != nil {
		return wfc.Options{}, err
	}
	if opts.TotalCells > s.cfg.Server.MaxCells {
		return wfc.Options{}, fmt.Errorf("cells %d exceeds the limit of %d", opts.TotalCells, s.cfg.Server.MaxCells)
	}
	return opts, nil
}

// stream sends a start message, one frame per step and a closing summary.
// A client ends the stream early by sending ControlStop or disconnecting.
func (s *Server) stream(conn *websocket.Conn, opts wfc.Options) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	ctx, span := telemetry.Tracer("server").Start(ctx, "server.stream")
	defer span.End()

	conn.SetReadLimit(s.cfg.Server.WebSocket.MaxMessageSize)
	go readControl(conn, cancel)

	gen, err := wfc.NewGenerator(opts)
	if err != nil {
		return err
	}
	start, err := newStart(gen)
	if err != nil {
		return err
	}
	if err := send(conn, Message{Type: MessageStart, Start: start}); err != nil {
		return err
	}
	logger.Debug("Stream started", "seed", opts.Seed, "width", start.Width, "prototypes", len(start.Prototypes))

	var delay *time.Ticker
	if s.cfg.Server.StepDelay > 0 {
		delay = time.NewTicker(s.cfg.Server.StepDelay)
		defer delay.Stop()
	}

steps:
	for ctx.Err() == nil && gen.Step() {
		frame := gen.Frame()
		msg := Message{Type: MessageFrame, Frame: &frame}
		if step, ok := gen.LastStep(); ok {
			msg.Outcome = step.Result.Outcome.String()
		}
		if err := send(conn, msg); err != nil {
			return err
		}
		if delay != nil {
			select {
			case <-ctx.Done():
				break steps
			case <-delay.C:
			}
		}
	}

	status := database.StatusOf(gen)
	summary := newSummary(gen, status)
	if s.db != nil && s.cfg.Server.Persist {
		id, err := s.persist(gen, status)
		if err != nil {
			logger.Error("Failed to persist streamed run", "seed", opts.Seed, "error", err)
		} else {
			summary.RunID = id
		}
	}

	span.SetAttributes(
		attribute.Int64("wfc.seed", opts.Seed),
		attribute.Int("wfc.steps", summary.Steps),
		attribute.String("roadgen.status", status),
	)
	logger.Info("Stream finished",
		"seed", opts.Seed,
		"status", status,
		"steps", summary.Steps,
		"masked_contradictions", summary.MaskedContradictions)

	if err := send(conn, Message{Type: MessageSummary, Summary: summary}); err != nil {
		return err
	}
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, status),
		time.Now().Add(writeWait))
}

func (s *Server) persist(gen *wfc.Generator, status string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	run, cells := database.NewRun(gen, status)
	if err := s.db.SaveRun(ctx, run, cells); err != nil {
		return "", err
	}
	return run.ID, nil
}

// readControl drains client messages until the connection fails or the
// client asks to stop, then cancels the stream.
func readControl(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && string(data) == ControlStop {
			return
		}
	}
}

func send(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Run storage is disabled.", http.StatusServiceUnavailable)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list runs", "error", err)
		http.Error(w, "Failed to list runs.", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun serves a stored run as the YAML export document
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Run storage is disabled.", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	run, err := s.db.GetRun(r.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		http.Error(w, "Run not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Failed to load run", "run_id", id, "error", err)
		http.Error(w, "Failed to load run.", http.StatusInternalServerError)
		return
	}

	doc, err := s.exportRun(r.Context(), run)
	if err != nil {
		logger.Error("Failed to export run", "run_id", id, "error", err)
		http.Error(w, "Failed to export run.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	if err := export.WriteRunYAML(w, doc); err != nil {
		logger.Warning("Failed to write run", "run_id", id, "error", err)
	}
}

func (s *Server) exportRun(ctx context.Context, run *database.Run) (*export.RunYAML, error) {
	cells, err := s.db.GetRunCells(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	cat, err := wfc.BuildCatalog(run.UniqueEdgeCount)
	if err != nil {
		return nil, err
	}
	return export.FromRun(run, cells, cat)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warning("Failed to encode response", "error", err)
	}
}
