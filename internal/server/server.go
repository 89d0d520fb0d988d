// Package server is the reference persistence collaborator: it serves the
// initial load and on-demand fragments, applies picker actions and fans
// every applied transition out to the list's websocket viewers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/pickboard/internal/ir"
	"github.com/roach88/pickboard/internal/push"
	"github.com/roach88/pickboard/internal/store"
)

// Store is the slice of *store.Store the server needs.
type Store interface {
	ListItems(ctx context.Context, listID string) ([]ir.Item, error)
	Fragment(ctx context.Context, listID, itemID string) (ir.Fragment, error)
	ApplyAction(ctx context.Context, eventID, listID, itemID string, a store.Action, substitute string) (ir.Item, bool, error)
}

// TransitionRequest is the body of POST /lists/{list}/items/{item}/transition.
type TransitionRequest struct {
	Action         string `json:"action"`
	SubstituteName string `json:"substitute_name,omitempty"`

	// EventID makes retries idempotent; the server generates one if empty.
	EventID string `json:"event_id,omitempty"`
}

// Server routes HTTP requests to the store and the push broker.
type Server struct {
	store  Store
	broker *push.Broker

	fragmentsInPush bool
	writeTimeout    time.Duration
	upgrader        websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithFragmentsInPush ships the rendered fragment inside every push
// message, so viewers never need the on-demand endpoint.
func WithFragmentsInPush(on bool) Option {
	return func(s *Server) {
		s.fragmentsInPush = on
	}
}

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// New creates a server.
func New(st Store, broker *push.Broker, opts ...Option) *Server {
	s := &Server{
		store:        st,
		broker:       broker,
		writeTimeout: 10 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, access-logged handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, w, req)
			slog.Info("handled",
				"method", req.Method,
				"url", req.URL.String(),
				"duration", m.Duration,
				"status", m.Code,
				"bytes", m.Written,
			)
		})
	})

	r.Methods(http.MethodGet).Path("/lists/{list}/items").HandlerFunc(s.listItems)
	r.Methods(http.MethodGet).Path("/lists/{list}/items/{item}/fragment").HandlerFunc(s.fragment)
	r.Methods(http.MethodPost).Path("/lists/{list}/items/{item}/transition").HandlerFunc(s.transition)
	r.Methods(http.MethodGet).Path("/lists/{list}/events").HandlerFunc(s.events)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// ends every push subscription.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	s.broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["list"]

	items, err := s.store.ListItems(r.Context(), listID)
	if err != nil {
		s.fail(w, err)
		return
	}

	frags := make([]ir.Fragment, 0, len(items))
	for _, it := range items {
		f, err := store.Render(it)
		if err != nil {
			s.fail(w, err)
			return
		}
		frags = append(frags, f)
	}
	writeJSON(w, http.StatusOK, frags)
}

func (s *Server) fragment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	f, err := s.store.Fragment(r.Context(), vars["list"], vars["item"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	listID, itemID := vars["list"], vars["item"]

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	action, err := store.ParseAction(req.Action)
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.EventID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			s.fail(w, fmt.Errorf("generate event id: %w", err))
			return
		}
		req.EventID = id.String()
	}

	it, applied, err := s.store.ApplyAction(r.Context(), req.EventID, listID, itemID, action, req.SubstituteName)
	if err != nil {
		s.fail(w, err)
		return
	}

	frag, err := store.Render(it)
	if err != nil {
		s.fail(w, err)
		return
	}

	if applied {
		s.publish(frag)
	}

	slog.Debug("transition applied",
		"event_id", req.EventID,
		"list_id", listID,
		"item_id", itemID,
		"action", action,
		"applied", applied,
	)
	writeJSON(w, http.StatusOK, ir.TransitionResult{ItemID: itemID, ListID: listID, Fragment: &frag})
}

// publish announces a persisted transition to every viewer of the list,
// including the one that made it; that viewer suppresses the echo.
func (s *Server) publish(frag ir.Fragment) {
	it := frag.Item()
	ev := ir.TransitionEvent{
		ItemID:         it.ID,
		ListID:         it.ListID,
		Flags:          it.Flags,
		HasFlags:       true,
		DisplayKey:     it.DisplayKey,
		SubstituteName: it.SubstituteName,
	}
	ev.State = stateOf(it)
	if s.fragmentsInPush {
		ev.Fragment = &frag
	}

	raw, err := push.Encode(ev)
	if err != nil {
		slog.Error("failed to encode push message", "error", err, "item_id", it.ID)
		return
	}
	n := s.broker.Publish(it.ListID, raw)
	slog.Debug("push published", "list_id", it.ListID, "item_id", it.ID, "subscribers", n)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["list"]

	sub, err := s.broker.Subscribe(r.Context(), listID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade", "error", err, "list_id", listID)
		return
	}
	defer conn.Close()

	slog.Info("viewer subscribed", "list_id", listID, "remote", r.RemoteAddr)
	if err := pump(r.Context(), conn, sub, s.writeTimeout); err != nil {
		slog.Warn("push stream ended", "error", err, "list_id", listID)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write out", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
