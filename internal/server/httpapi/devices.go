package httpapi

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/cryptox"
	"github.com/openvelo/openvelo/internal/server/models"
	"github.com/openvelo/openvelo/internal/server/session"
)

type deviceView struct {
	ID          string        `json:"id"`
	Connected   bool          `json:"connected"`
	Locked      bool          `json:"locked"`
	Location    *models.Point `json:"location,omitempty"`
	LastEventAt *time.Time    `json:"last_event_at,omitempty"`
}

func (s *Server) deviceView(device *models.Device, includeLocation bool) deviceView {
	state := s.projector.CurrentState(device.ID)
	view := deviceView{
		ID:        device.ID,
		Connected: state.Connected,
		Locked:    state.Locked,
	}
	if includeLocation {
		view.Location = state.Location
	}
	if !state.LastEventAt.IsZero() {
		at := state.LastEventAt
		view.LastEventAt = &at
	}
	return view
}

type registerDeviceRequest struct {
	PublicKey string `json:"public_key"`
	MasterKey string `json:"master_key"`
}

// registerDevice adds a new device identity. The fleet master key guards
// the endpoint; registering an already-known public key returns the
// existing device.
func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if !cryptox.VerifyKey([]byte(req.MasterKey), s.masterSalt, s.masterVerifier) {
		writeError(w, http.StatusBadRequest, "bad_master_key")
		return
	}

	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		writeError(w, http.StatusBadRequest, "bad_public_key")
		return
	}

	device := &models.Device{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		CreatedAt: time.Now(),
	}
	if err := s.devices.Create(r.Context(), device); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			existing, lookupErr := s.devices.GetByPublicKey(r.Context(), publicKey)
			if lookupErr == nil {
				writeJSON(w, http.StatusOK, map[string]any{"device": s.deviceView(existing, false)})
				return
			}
		}
		s.logger.Error(r.Context(), "device registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	s.logger.Info(r.Context(), "device registered", "device_id", device.ID)
	writeJSON(w, http.StatusOK, map[string]any{"device": s.deviceView(device, false)})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	all, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "device list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	// location is operator-only
	operator := s.operatorSubject(r) != ""
	views := make([]deviceView, 0, len(all))
	for _, device := range all {
		views = append(views, s.deviceView(device, operator))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_device")
		return
	}
	operator := s.operatorSubject(r) != ""
	writeJSON(w, http.StatusOK, map[string]any{"device": s.deviceView(device, operator)})
}

type patchDeviceRequest struct {
	Locked *bool `json:"locked"`
}

// patchDevice relays a lock or unlock call to the device and reports the
// outcome. Offline and unresponsive devices surface as typed failures.
func (s *Server) patchDevice(w http.ResponseWriter, r *http.Request) {
	if s.operatorSubject(r) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	device, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_device")
		return
	}

	var req patchDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Locked == nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	method := session.MethodUnlock
	if *req.Locked {
		method = session.MethodLock
	}

	_, err = s.registry.Send(r.Context(), device.ID, method, nil)
	switch {
	case errors.Is(err, common.ErrNotConnected):
		writeError(w, http.StatusConflict, "not_connected")
		return
	case errors.Is(err, common.ErrCallTimeout):
		writeError(w, http.StatusGatewayTimeout, "command_failed")
		return
	case err != nil:
		s.logger.Warn(r.Context(), "device command failed", "device_id", device.ID, "method", method, "error", err)
		writeError(w, http.StatusBadGateway, "command_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device": s.deviceView(device, true)})
}

type eventView struct {
	Kind     string        `json:"kind"`
	At       time.Time     `json:"at"`
	Location *models.Point `json:"location,omitempty"`
	Locked   *bool         `json:"locked,omitempty"`
}

// deviceHistory returns the device's full event log in timestamp order.
// It includes location rows, so the endpoint is operator-only.
func (s *Server) deviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.operatorSubject(r) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	device, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_device")
		return
	}

	history, err := s.events.ByDevice(r.Context(), device.ID)
	if err != nil {
		s.logger.Error(r.Context(), "event history read failed", "device_id", device.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	views := make([]eventView, 0, len(history))
	for _, event := range history {
		views = append(views, eventView{
			Kind:     string(event.Kind),
			At:       event.At,
			Location: event.Location,
			Locked:   event.Locked,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

type issueChallengeRequest struct {
	PublicKey string `json:"public_key"`
}

// issueChallenge starts the authentication handshake. Unknown devices and
// key mismatches are both a plain 401.
func (s *Server) issueChallenge(w http.ResponseWriter, r *http.Request) {
	var req issueChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_public_key")
		return
	}

	ch, err := s.challenges.Issue(r.Context(), chi.URLParam(r, "id"), publicKey, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, common.ErrUnknownDevice) {
			writeError(w, http.StatusUnauthorized, "identity_not_recognized")
			return
		}
		s.logger.Error(r.Context(), "challenge issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"challenge":  base64.StdEncoding.EncodeToString(ch.Nonce),
		"expires_at": ch.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
