// Package server implements the HTTP/JSON management API of the RSTP daemon.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dantte-lp/gorstp/internal/rstp"
	appversion "github.com/dantte-lp/gorstp/internal/version"
)

var (
	// ErrInvalidPortParam indicates a port path segment that is not a
	// port number.
	ErrInvalidPortParam = errors.New("port must be a number in 1..4095")

	// ErrInvalidBody indicates a request body that is not valid JSON for
	// the endpoint.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrEventsUnavailable indicates the event stream was requested from
	// a server built without an EventHub.
	ErrEventsUnavailable = errors.New("event stream not available")
)

// maxBodyBytes bounds PATCH bodies.
const maxBodyBytes = 64 << 10

// Backend is the part of rstp.Manager the API uses.
type Backend interface {
	Bridges() []rstp.BridgeStatus
	Bridge(name string) (rstp.BridgeStatus, error)
	Port(name string, number uint16) (rstp.PortStatus, error)
	Update(name string, fn func(*rstp.Bridge) error) error
}

var _ Backend = (*rstp.Manager)(nil)

// Server serves the management API.
//
// Each handler delegates to the Backend. The server is a thin adapter
// between the JSON API and the rstp domain.
type Server struct {
	backend Backend
	events  *EventHub
	origins []string
	logger  *slog.Logger
}

// Option configures optional Server parameters.
type Option func(*Server)

// WithEventHub enables GET /v1/events.
func WithEventHub(h *EventHub) Option {
	return func(s *Server) {
		s.events = h
	}
}

// WithCORSOrigins allows cross-origin requests from the given origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates the API router.
func New(backend Backend, logger *slog.Logger, opts ...Option) http.Handler {
	s := &Server{
		backend: backend,
		logger:  logger.With(slog.String("component", "server")),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		}))
	}

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.version)
		r.Get("/events", s.watchEvents)
		r.Get("/bridges", s.listBridges)
		r.Route("/bridges/{bridge}", func(r chi.Router) {
			r.Get("/", s.getBridge)
			r.Patch("/", s.patchBridge)
			r.Get("/ports/{port}", s.getPort)
			r.Patch("/ports/{port}", s.patchPort)
			r.Post("/ports/{port}/mcheck", s.mcheck)
		})
	})
	return r
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, appversion.Get())
}

// listBridges returns every bridge with its ports.
func (s *Server) listBridges(w http.ResponseWriter, _ *http.Request) {
	statuses := s.backend.Bridges()
	out := make([]Bridge, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, BridgeView(st))
	}
	writeJSON(w, http.StatusOK, out)
}

// getBridge returns a single bridge.
func (s *Server) getBridge(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.Bridge(chi.URLParam(r, "bridge"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, BridgeView(st))
}

// getPort returns a single port of a bridge.
func (s *Server) getPort(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")
	number, err := portParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	st, err := s.backend.Port(name, number)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, PortView(st))
}

// patchBridge applies bridge-level administrative changes and returns the
// resulting bridge.
func (s *Server) patchBridge(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")

	var patch BridgePatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.backend.Update(name, func(b *rstp.Bridge) error {
		return applyBridgePatch(b, patch)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.logger.InfoContext(r.Context(), "bridge updated", slog.String("bridge", name))
	s.getBridge(w, r)
}

// patchPort applies port-level administrative changes and returns the
// resulting port.
func (s *Server) patchPort(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")
	number, err := portParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var patch PortPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.backend.Update(name, func(b *rstp.Bridge) error {
		return applyPortPatch(b, number, patch)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.logger.InfoContext(r.Context(), "port updated",
		slog.String("bridge", name),
		slog.Int("port", int(number)),
	)
	s.getPort(w, r)
}

// mcheck forces a protocol migration check on a port.
func (s *Server) mcheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")
	number, err := portParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.backend.Update(name, func(b *rstp.Bridge) error {
		return b.MCheck(number)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// watchEvents streams bridge events as server-sent events. With
// ?include_current=true every bridge is sent first as a "bridge" event.
func (s *Server) watchEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, ErrEventsUnavailable)
		return
	}

	events, cancel := s.events.Subscribe()
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if r.URL.Query().Get("include_current") == "true" {
		for _, st := range s.backend.Bridges() {
			if err := writeSSE(w, "bridge", BridgeView(st)); err != nil {
				return
			}
		}
	}
	if err := rc.Flush(); err != nil {
		s.logger.WarnContext(r.Context(), "event stream flush failed", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev.Kind.String(), EventView(ev)); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// -------------------------------------------------------------------------
// Patch application
// -------------------------------------------------------------------------

func applyBridgePatch(b *rstp.Bridge, p BridgePatch) error {
	st := b.Status()

	if p.Priority != nil {
		if err := b.SetBridgePriority(*p.Priority); err != nil {
			return err
		}
	}
	if p.MaxAge != nil || p.HelloTime != nil || p.ForwardDelay != nil {
		t := st.BridgeTimes
		if p.MaxAge != nil {
			t.MaxAge = *p.MaxAge
		}
		if p.HelloTime != nil {
			t.HelloTime = *p.HelloTime
		}
		if p.ForwardDelay != nil {
			t.ForwardDelay = *p.ForwardDelay
		}
		if err := b.SetBridgeTimes(t.MaxAge, t.HelloTime, t.ForwardDelay); err != nil {
			return err
		}
	}
	if p.TxHoldCount != nil {
		if err := b.SetTxHoldCount(*p.TxHoldCount); err != nil {
			return err
		}
	}
	if p.FlushStrategy != nil {
		scope, err := rstp.ParseFlushScope(*p.FlushStrategy)
		if err != nil {
			return err
		}
		if err := b.SetFlushScope(scope); err != nil {
			return err
		}
	}
	if p.ForceVersion != nil {
		v, err := rstp.ParseForceVersion(*p.ForceVersion)
		if err != nil {
			return err
		}
		if err := b.SetForceVersion(v); err != nil {
			return err
		}
	}
	return nil
}

func applyPortPatch(b *rstp.Bridge, number uint16, p PortPatch) error {
	if _, err := b.PortStatus(number); err != nil {
		return err
	}

	if p.Priority != nil {
		if err := b.SetPortPriority(number, *p.Priority); err != nil {
			return err
		}
	}
	if p.AdminEdge != nil {
		if err := b.SetAdminEdge(number, *p.AdminEdge); err != nil {
			return err
		}
	}
	if p.AutoEdge != nil {
		if err := b.SetAutoEdge(number, *p.AutoEdge); err != nil {
			return err
		}
	}
	if p.PointToPoint != nil {
		v, err := rstp.ParsePointToPoint(*p.PointToPoint)
		if err != nil {
			return err
		}
		if err := b.SetAdminPointToPoint(number, v); err != nil {
			return err
		}
	}
	if p.NonStp != nil {
		if err := b.SetAdminNonStp(number, *p.NonStp); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rstp.ErrBridgeNotFound), errors.Is(err, rstp.ErrPortNotFound):
		return http.StatusNotFound
	case errors.Is(err, rstp.ErrInvalidBridgePriority),
		errors.Is(err, rstp.ErrInvalidPortPriority),
		errors.Is(err, rstp.ErrInvalidTimes),
		errors.Is(err, rstp.ErrInvalidTxHoldCount),
		errors.Is(err, rstp.ErrInvalidForceVersion),
		errors.Is(err, rstp.ErrInvalidPointToPoint),
		errors.Is(err, rstp.ErrInvalidFlushScope),
		errors.Is(err, rstp.ErrInvalidPortNumber):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func portParam(r *http.Request) (uint16, error) {
	raw := chi.URLParam(r, "port")
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || n == 0 || n > rstp.MaxPortNumber {
		return 0, fmt.Errorf("port %q: %w", raw, ErrInvalidPortParam)
	}
	return uint16(n), nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	return nil
}
