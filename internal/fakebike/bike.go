// Package fakebike is a software stand-in for a physical bike. It runs
// the full device side of the protocol: challenge request, signature,
// websocket session, current-status, lock/unlock handling and periodic
// location updates. Used for development and end-to-end testing against a
// running server.
package fakebike

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/session"
)

type Bike struct {
	serverURL string
	deviceID  string
	key       ed25519.PrivateKey
	interval  time.Duration
	logger    logging.Logger
	http      *http.Client

	mu     sync.Mutex
	locked bool
	lat    float64
	lng    float64
}

// New builds a bike whose identity is derived deterministically from the
// 32-byte seed, the same way the firmware does it.
func New(serverURL, deviceID string, seed []byte, interval time.Duration, logger logging.Logger) (*Bike, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Bike{
		serverURL: strings.TrimRight(serverURL, "/"),
		deviceID:  deviceID,
		key:       ed25519.NewKeyFromSeed(seed),
		interval:  interval,
		logger:    logger.With("module", "fakebike"),
		http:      &http.Client{Timeout: 10 * time.Second},
		locked:    true,
		lat:       57.166, // Aberdeen
		lng:       -2.101,
	}, nil
}

func (b *Bike) PublicKey() ed25519.PublicKey {
	return b.key.Public().(ed25519.PublicKey)
}

func (b *Bike) DeviceID() string { return b.deviceID }

// Register enrolls the bike with the fleet master key and remembers the
// assigned device id.
func (b *Bike) Register(ctx context.Context, masterKey string) error {
	payload, _ := json.Marshal(map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(b.PublicKey()),
		"master_key": masterKey,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/devices", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registration failed: %s: %s", resp.Status, body)
	}

	var out struct {
		Device struct {
			ID string `json:"id"`
		} `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	b.deviceID = out.Device.ID
	b.logger.Info(ctx, "registered", "device_id", b.deviceID)
	return nil
}

// Run connects, authenticates and serves the session until ctx is
// cancelled or the channel drops.
func (b *Bike) Run(ctx context.Context) error {
	nonce, err := b.requestChallenge(ctx)
	if err != nil {
		return err
	}

	conn, err := b.openSocket(ctx, nonce)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := b.sendCurrentStatus(conn); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go b.locationLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := b.handleMessage(ctx, conn, data); err != nil {
			return err
		}
	}
}

func (b *Bike) requestChallenge(ctx context.Context) ([]byte, error) {
	payload, _ := json.Marshal(map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(b.PublicKey()),
	})
	url := fmt.Sprintf("%s/devices/%s/connect", b.serverURL, b.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("challenge request failed: %s: %s", resp.Status, body)
	}

	var out struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Challenge)
}

func (b *Bike) openSocket(ctx context.Context, nonce []byte) (*websocket.Conn, error) {
	wsURL := strings.Replace(b.serverURL, "http", "ws", 1) + "/devices/connect"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	signature := ed25519.Sign(b.key, nonce)
	hello, _ := json.Marshal(map[string]string{
		"device_id": b.deviceID,
		"signature": base64.StdEncoding.EncodeToString(signature),
	})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		conn.Close()
		return nil, err
	}

	_, reply, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if string(reply) != "verified" {
		conn.Close()
		return nil, fmt.Errorf("authentication rejected: %s", reply)
	}

	b.logger.Info(ctx, "connected", "device_id", b.deviceID)
	return conn, nil
}

func (b *Bike) sendCurrentStatus(conn *websocket.Conn) error {
	b.mu.Lock()
	lat, lng := b.lat, b.lng
	st := session.CurrentStatus{Locked: b.locked, Lat: &lat, Lng: &lng, Time: time.Now().UnixMilli()}
	b.mu.Unlock()
	return b.notify(conn, session.MethodCurrentStatus, st)
}

func (b *Bike) handleMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var msg session.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Warn(ctx, "ignoring unparseable message", "error", err)
		return nil
	}
	if msg.ID == nil || msg.Method == "" {
		return nil
	}

	switch msg.Method {
	case session.MethodLock, session.MethodUnlock:
		locked := msg.Method == session.MethodLock
		b.mu.Lock()
		b.locked = locked
		b.mu.Unlock()
		b.logger.Info(ctx, "lock state changed", "locked", locked)

		if err := b.respond(conn, *msg.ID, map[string]bool{"locked": locked}); err != nil {
			return err
		}
		return b.notify(conn, session.MethodLockStateUpdate, session.LockStateUpdate{
			Locked: locked,
			Time:   time.Now().UnixMilli(),
		})
	default:
		b.logger.Warn(ctx, "unsupported command", "method", msg.Method)
		return b.respondError(conn, *msg.ID, "method not found")
	}
}

func (b *Bike) locationLoop(ctx context.Context, conn *websocket.Conn) {
	if b.interval <= 0 {
		return
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			// aimless drift around the starting point
			b.lat += 0.0001
			u := session.LocationUpdate{Lat: b.lat, Lng: b.lng, Time: time.Now().UnixMilli()}
			b.mu.Unlock()
			if err := b.notify(conn, session.MethodLocationUpdate, u); err != nil {
				return
			}
		}
	}
}

func (b *Bike) notify(conn *websocket.Conn, method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(session.Message{JSONRPC: session.Version, Method: method, Params: raw})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bike) respond(conn *websocket.Conn, id uint64, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	data, err := json.Marshal(session.Message{JSONRPC: session.Version, ID: &id, Result: raw})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bike) respondError(conn *websocket.Conn, id uint64, message string) error {
	data, err := json.Marshal(session.Message{
		JSONRPC: session.Version,
		ID:      &id,
		Error:   &session.ErrorObject{Code: -32601, Message: message},
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
