package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays environment variables onto cfg. The Redis and identity
// variables keep the names operators already use (REDIS_HOST, API_KEY, ...);
// connector-specific knobs use the QUEUEKIT_ prefix.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("CONNECTOR_NAME", &cfg.ConnectorName)
	str("API_KEY", &cfg.APIKey)
	str("BACKEND", &cfg.Backend)

	str("REDIS_HOST", &cfg.Redis.Host)
	num("REDIS_PORT", &cfg.Redis.Port)
	num("REDIS_DB", &cfg.Redis.DB)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("REDIS_URI", &cfg.Redis.URI)
	str("REDIS_MASTER", &cfg.Redis.Master)
	if v := os.Getenv("REDIS_SENTINELS"); v != "" {
		cfg.Redis.Sentinels = SplitList(v)
	}
	if v := os.Getenv("REDIS_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.TLS = b
		}
	}

	dur("QUEUEKIT_INTERVAL", &cfg.Interval)
	dur("QUEUEKIT_ACK_TIMEOUT", &cfg.AckTimeout)
	str("QUEUEKIT_QUEUE_FILTER", &cfg.QueueFilter)
	str("QUEUEKIT_DATA_DIR", &cfg.DataDir)
	str("QUEUEKIT_SYNC", &cfg.Sync)
	num("QUEUEKIT_JOURNAL_RETAIN", &cfg.JournalRetain)
	str("QUEUEKIT_HTTP_ADDR", &cfg.HTTPAddr)
	str("QUEUEKIT_GRPC_ADDR", &cfg.GRPCAddr)
	str("QUEUEKIT_LOG_LEVEL", &cfg.Log.Level)
	str("QUEUEKIT_LOG_FORMAT", &cfg.Log.Format)
	str("QUEUEKIT_TRACING", &cfg.Tracing.Exporter)
	str("QUEUEKIT_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
