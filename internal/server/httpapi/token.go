package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openvelo/openvelo/internal/cryptox"
	"github.com/openvelo/openvelo/internal/server/auth"
)

type issueTokenRequest struct {
	MasterKey string `json:"master_key"`
	Subject   string `json:"subject"`
}

// issueToken exchanges the fleet master key for an operator bearer token.
// There is no user database behind the operator surface; field tooling
// holds the master key and mints short-lived tokens from it.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if !cryptox.VerifyKey([]byte(req.MasterKey), s.masterSalt, s.masterVerifier) {
		s.logger.Warn(r.Context(), "token mint rejected", "subject", req.Subject, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "bad_master_key")
		return
	}

	token, err := auth.GenerateToken(req.Subject, []byte(s.cfg.SecretKey), s.cfg.TokenValidityDuration)
	if err != nil {
		s.logger.Error(r.Context(), "token mint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	s.logger.Info(r.Context(), "operator token issued", "subject", req.Subject)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      token,
		"expires_at": time.Now().Add(s.cfg.TokenValidityDuration).UTC().Format(time.RFC3339),
	})
}
