// Package httpapi exposes the public HTTP surface: the challenge endpoint,
// the device websocket, and the small operator REST API over devices and
// their projected state.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openvelo/openvelo/internal/cryptox"
	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/auth"
	"github.com/openvelo/openvelo/internal/server/challenge"
	"github.com/openvelo/openvelo/internal/server/config"
	"github.com/openvelo/openvelo/internal/server/metrics"
	"github.com/openvelo/openvelo/internal/server/projector"
	"github.com/openvelo/openvelo/internal/server/registry"
	"github.com/openvelo/openvelo/internal/server/repositories/devices"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
)

type Server struct {
	cfg        *config.Config
	logger     logging.Logger
	devices    devices.Repository
	events     events.Repository
	challenges *challenge.Service
	registry   *registry.Registry
	projector  *projector.Projector
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	masterSalt     []byte
	masterVerifier []byte
}

func NewServer(
	cfg *config.Config,
	logger logging.Logger,
	deviceRepo devices.Repository,
	eventRepo events.Repository,
	challenges *challenge.Service,
	reg *registry.Registry,
	proj *projector.Projector,
	m *metrics.Metrics,
) *Server {
	salt := []byte(cfg.MasterKeySalt)
	return &Server{
		cfg:        cfg,
		logger:     logger.With("module", "httpapi"),
		devices:    deviceRepo,
		events:     eventRepo,
		challenges: challenges,
		registry:   reg,
		projector:  proj,
		metrics:    m,
		upgrader: websocket.Upgrader{
			// devices are not browsers; no origin policy applies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		masterSalt:     salt,
		masterVerifier: cryptox.MakeVerifier([]byte(cfg.MasterKey), salt),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/token", s.issueToken)

	r.Route("/devices", func(r chi.Router) {
		r.Post("/", s.registerDevice)
		r.Get("/", s.listDevices)
		r.Get("/connect", s.deviceSocket)
		r.Post("/{id}/connect", s.issueChallenge)
		r.Get("/{id}", s.getDevice)
		r.Get("/{id}/history", s.deviceHistory)
		r.Patch("/{id}", s.patchDevice)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// operatorSubject extracts and validates the bearer token, returning the
// operator subject or an empty string for anonymous requests.
func (s *Server) operatorSubject(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	subject, err := auth.SubjectFromToken(token, []byte(s.cfg.SecretKey))
	if err != nil {
		return ""
	}
	return subject
}
