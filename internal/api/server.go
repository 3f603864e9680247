package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"shadowrealms/internal/config"
	"shadowrealms/internal/ledger"
)

const adminSecretHeader = "X-Admin-Secret"

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	ledger  *ledger.Service
	feed    *Feed
	schemas map[string]*jsonschema.Schema
	mux     *chi.Mux
}

// New wires the router. feed may be nil, in which case /v1/events is not
// served.
func New(cfg config.APIConfig, logger *slog.Logger, svc *ledger.Service, feed *Feed) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		ledger:  svc,
		feed:    feed,
		schemas: schemas,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Long-lived; kept outside the request timeout.
	if s.feed != nil {
		r.Get("/v1/events", s.feed.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", s.handleHealth)
		r.Get("/health", s.handleHealth)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/catalog", s.handleCatalog)

			r.Post("/players", s.handleRegister)
			r.Route("/players/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPlayer)
				r.Patch("/", s.handleUpdatePlayer)
				r.Post("/adjust", s.handleAdjust)
				r.Post("/purchases", s.handlePurchase)
				r.Get("/purchases", s.handleListSales)
				r.Post("/wagers", s.handleWager)
				r.Get("/claims", s.handleListClaims)
				r.Get("/bonds", s.handleListBonds)
				r.Get("/bonds/{kind}/partner", s.handlePartner)
				r.Get("/links", s.handleListLinks)
			})

			r.Post("/claims/{resource}", s.handleClaim)
			r.Get("/claims/{resource}", s.handleGetClaim)

			r.Post("/bonds", s.handleCreateBond)
			r.Delete("/bonds", s.handleBreakBond)
			r.Post("/links", s.handleRecordLink)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminMiddleware)
				r.Delete("/players/{id}", s.handlePurgePlayer)
				r.Delete("/players", s.handleResetPlayers)
				r.Delete("/claims/{resource}", s.handlePurgeClaim)
			})
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get(adminSecretHeader))
		if got == "" {
			writeError(w, http.StatusUnauthorized, "missing admin secret")
			return
		}
		if s.cfg.AdminSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
			s.log.Warn("admin secret rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid admin secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Catalog())
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	msg := le.Error()
	switch le.Code {
	case ledger.CodeNotFound:
		status = http.StatusNotFound
	case ledger.CodeConflict:
		status = http.StatusConflict
	case ledger.CodeInsufficientFunds, ledger.CodeInvalidArgument:
		status = http.StatusBadRequest
	case ledger.CodeUnavailable:
		status = http.StatusServiceUnavailable
		msg = "service temporarily unavailable"
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: msg, Code: string(le.Code), Reason: le.Reason})
}

func decodeJSON(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: strings.TrimSpace(message)})
}

// idempotencyKey returns the client's Idempotency-Key, or "" when absent.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

// pathParam returns a URL parameter, unescaped when the router matched on the
// raw path.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ledger.Errorf(ledger.CodeInvalidArgument, "", "limit must be a non-negative integer")
	}
	return n, nil
}

func listBody[T any](key string, items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{key: items, "count": len(items)}
}
