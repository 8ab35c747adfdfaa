package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/server/session"
)

func (s *Server) newSession(deviceID string, conn session.Conn) *session.Session {
	return session.New(deviceID, conn, s.cfg.CallTimeout, s.logger)
}

// wsConn adapts a gorilla websocket connection to the session.Conn
// interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

type socketHello struct {
	DeviceID  string `json:"device_id"`
	Signature string `json:"signature"`
}

// deviceSocket upgrades the connection and runs the full device session:
// signature verification against the pending challenge, "verified"/"fail"
// reply, registration, then the protocol loop until the channel dies.
func (s *Server) deviceSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	// the unauthenticated peer gets one challenge window to present its
	// hello; without a deadline an idle client pins this goroutine forever
	helloWindow := s.cfg.ChallengeTTL
	if helloWindow <= 0 {
		helloWindow = 10 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(helloWindow))

	_, hello, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var msg socketHello
	if err := json.Unmarshal(hello, &msg); err != nil {
		s.rejectSocket(r, conn, "bad_hello")
		return
	}
	signature, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		s.rejectSocket(r, conn, "bad_hello")
		return
	}

	if err := s.challenges.Verify(r.Context(), msg.DeviceID, signature); err != nil {
		reason := "invalid_signature"
		if errors.Is(err, common.ErrChallengeExpiredOrUnknown) {
			reason = "no_challenge"
		} else if errors.Is(err, common.ErrUnknownDevice) {
			reason = "unknown_device"
		}
		// potential replay or intrusion attempt; log and drop
		s.logger.Warn(r.Context(), "device authentication failed",
			"device_id", msg.DeviceID, "remote", r.RemoteAddr, "reason", reason)
		s.rejectSocket(r, conn, reason)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("verified")); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess := s.newSession(msg.DeviceID, &wsConn{conn})
	s.registry.Register(sess)
	defer s.registry.Unregister(sess)

	s.logger.Info(r.Context(), "device connected", "device_id", msg.DeviceID, "remote", r.RemoteAddr)

	handler := newDeviceHandler(s.events, s.projector, s.metrics, s.logger)
	if err := sess.Run(r.Context(), handler); err != nil {
		s.logger.Warn(r.Context(), "session ended with error", "device_id", msg.DeviceID, "error", err)
	}
	s.logger.Info(r.Context(), "device disconnected", "device_id", msg.DeviceID)
}

func (s *Server) rejectSocket(r *http.Request, conn *websocket.Conn, reason string) {
	if s.metrics != nil {
		s.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte("fail"))
}
