package config

import (
	"encoding/json"
	"os"

	"github.com/openvelo/openvelo/internal/flagx"
	"github.com/openvelo/openvelo/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Interval fields use
// timex.Duration, which accepts both strings such as "10s" and integer
// nanoseconds. After unmarshalling, set fields are copied into the runtime
// Config.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	DatabaseDSN           string         `json:"database_dsn"`
	RedisAddr             string         `json:"redis_addr"`
	RedisPassword         string         `json:"redis_password"`
	SecretKey             string         `json:"secret_key"`
	MasterKey             string         `json:"master_key"`
	MasterKeySalt         string         `json:"master_key_salt"`
	ChallengeTTL          timex.Duration `json:"challenge_ttl"`
	CallTimeout           timex.Duration `json:"call_timeout"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set, no JSON file is loaded. Only non-zero JSON values
// override the current Config contents.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointAddrHTTP != "" {
		cfg.EndpointAddrHTTP = jc.EndpointAddrHTTP
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.RedisAddr != "" {
		cfg.RedisAddr = jc.RedisAddr
	}
	if jc.RedisPassword != "" {
		cfg.RedisPassword = jc.RedisPassword
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.MasterKey != "" {
		cfg.MasterKey = jc.MasterKey
	}
	if jc.MasterKeySalt != "" {
		cfg.MasterKeySalt = jc.MasterKeySalt
	}
	if jc.ChallengeTTL != 0 {
		cfg.ChallengeTTL = jc.ChallengeTTL.Std()
	}
	if jc.CallTimeout != 0 {
		cfg.CallTimeout = jc.CallTimeout.Std()
	}
	if jc.TokenValidityDuration != 0 {
		cfg.TokenValidityDuration = jc.TokenValidityDuration.Std()
	}
}
