// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the OpenVelo server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the public HTTP/websocket endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects in-memory storage.
//   - RedisAddr / RedisPassword: challenge store backend. Empty addr selects
//     the in-process store.
//   - SecretKey: HMAC secret for signing operator JWTs (HS256). Do not use
//     test defaults in prod.
//   - MasterKey / MasterKeySalt: fleet registration master key; only an
//     argon2id verifier derived from these is kept at runtime.
//   - ChallengeTTL: validity window of an issued handshake challenge.
//   - CallTimeout: how long a server-initiated call waits for its response.
//   - TokenValidityDuration: operator token lifetime.
type Config struct {
	EndpointAddrHTTP      string
	DatabaseDSN           string
	RedisAddr             string
	RedisPassword         string
	SecretKey             string
	MasterKey             string
	MasterKeySalt         string
	ChallengeTTL          time.Duration
	CallTimeout           time.Duration
	TokenValidityDuration time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseDSN = ""
	c.RedisAddr = ""
	c.RedisPassword = ""
	c.SecretKey = "secretKey"
	c.MasterKey = "master"
	c.MasterKeySalt = "openvelo-master-salt"
	c.ChallengeTTL = 10 * time.Second
	c.CallTimeout = 5 * time.Second
	c.TokenValidityDuration = 1 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
