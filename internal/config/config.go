package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// DefaultBackend is the control-plane address used when none is configured.
const DefaultBackend = "wss://api.queuekit.com"

// Config is the connector configuration assembled from file, env and flags.
type Config struct {
	ConnectorName string `json:"connectorName" mapstructure:"connectorName"`
	APIKey        string `json:"apiKey" mapstructure:"apiKey"`
	Backend       string `json:"backend" mapstructure:"backend"`

	Redis RedisConfig `json:"redis" mapstructure:"redis"`

	// Interval between reconciliation cycles.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	// AckTimeout bounds the wait for the handshake acknowledgement.
	AckTimeout time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
	// QueueFilter is a CEL expression over prefix, name and key.
	QueueFilter string `json:"queueFilter" mapstructure:"queueFilter"`
	ScanCount   int64  `json:"scanCount" mapstructure:"scanCount"`

	// DataDir holds the local journal; "-" disables it.
	DataDir       string `json:"dataDir" mapstructure:"dataDir"`
	Sync          string `json:"sync" mapstructure:"sync"`
	JournalRetain int    `json:"journalRetain" mapstructure:"journalRetain"`

	// HTTPAddr and GRPCAddr enable the admin API and health service when set.
	HTTPAddr string `json:"httpAddr" mapstructure:"httpAddr"`
	GRPCAddr string `json:"grpcAddr" mapstructure:"grpcAddr"`

	Log     log.Config    `json:"log" mapstructure:"log"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// RedisConfig locates the Redis server holding the Bull queues.
type RedisConfig struct {
	Host      string   `json:"host" mapstructure:"host"`
	Port      int      `json:"port" mapstructure:"port"`
	DB        int      `json:"db" mapstructure:"db"`
	Password  string   `json:"password" mapstructure:"password"`
	TLS       bool     `json:"tls" mapstructure:"tls"`
	URI       string   `json:"uri" mapstructure:"uri"`
	Sentinels []string `json:"sentinels" mapstructure:"sentinels"`
	Master    string   `json:"master" mapstructure:"master"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	// Exporter is "" or "none" (disabled), "stdout" or "otlp".
	Exporter string `json:"exporter" mapstructure:"exporter"`
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		ConnectorName: "Default connector",
		Backend:       DefaultBackend,
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Interval:      time.Second,
		AckTimeout:    10 * time.Second,
		ScanCount:     1000,
		DataDir:       "-",
		Sync:          "interval",
		JournalRetain: 10000,
		Log:           log.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("config: api key is required (--api-key or API_KEY)")
	}
	if c.Backend == "" {
		return errors.New("config: backend is required")
	}
	if c.Interval <= 0 {
		return errors.New("config: interval must be positive")
	}
	if c.Redis.URI == "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		return fmt.Errorf("config: invalid redis port %d", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: invalid redis database %d", c.Redis.DB)
	}
	if len(c.Redis.Sentinels) > 0 && c.Redis.Master == "" {
		return errors.New("config: sentinels require a master name")
	}
	return nil
}

// JournalEnabled reports whether a data directory is configured.
func (c Config) JournalEnabled() bool {
	return c.DataDir != "" && c.DataDir != "-"
}

// RedisOptions translates the Redis settings into client options. A URI wins
// over host/port/db/password; rediss:// implies TLS. Sentinels with a master
// name yield a failover client.
func (c Config) RedisOptions() (*redis.UniversalOptions, error) {
	r := c.Redis
	opts := &redis.UniversalOptions{
		Addrs:    []string{net.JoinHostPort(r.Host, strconv.Itoa(r.Port))},
		DB:       r.DB,
		Password: r.Password,
	}
	if r.URI != "" {
		u, err := redis.ParseURL(r.URI)
		if err != nil {
			return nil, fmt.Errorf("config: parse redis uri: %w", err)
		}
		opts.Addrs = []string{u.Addr}
		opts.DB = u.DB
		opts.Username = u.Username
		if u.Password != "" {
			opts.Password = u.Password
		}
		if u.TLSConfig != nil {
			opts.TLSConfig = u.TLSConfig
		}
	}
	if r.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{}
	}
	if opts.TLSConfig != nil {
		// Matches the connector's historical rejectUnauthorized:false.
		opts.TLSConfig.InsecureSkipVerify = true
	}
	if len(r.Sentinels) > 0 {
		opts.Addrs = r.Sentinels
		opts.MasterName = r.Master
	}
	return opts, nil
}
