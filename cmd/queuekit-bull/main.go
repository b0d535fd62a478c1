package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	bridgerun "github.com/queuekit/queuekit-connector-bull/internal/cmd/bridge"
	cfgpkg "github.com/queuekit/queuekit-connector-bull/internal/config"
	logpkg "github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "queuekit-bull",
		Short:         "QueueKit connector for Bull queues",
		Long:          "Discovers Bull queues in Redis and bridges them to the QueueKit control plane.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runConnector,
	}
	rootCmd.Version = version
	addFlags(rootCmd.PersistentFlags())

	// The bare command runs the connector too, as older deployments invoke it.
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the connector until interrupted",
		RunE:  runConnector,
	})

	queuesCmd := &cobra.Command{
		Use:   "queues",
		Short: "Scan Redis once and print the discovered queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ids, err := bridgerun.ListQueues(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "no queues found")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintf(out, "%s\t%s\n", id.Prefix, id.Name)
			}
			return nil
		},
	}
	rootCmd.AddCommand(queuesCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the connector version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func runConnector(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return bridgerun.Run(ctx, bridgerun.Options{Config: cfg, Version: version})
}

func addFlags(fs *pflag.FlagSet) {
	d := cfgpkg.Default()
	fs.String("config", "", "config file (JSON or YAML)")

	fs.StringP("connector-name", "n", d.ConnectorName, "connector name shown in QueueKit")
	fs.StringP("api-key", "a", "", "QueueKit API key (required)")
	fs.StringP("backend", "b", d.Backend, "control plane URL")

	fs.StringP("host", "h", d.Redis.Host, "Redis host")
	fs.IntP("port", "p", d.Redis.Port, "Redis port")
	fs.IntP("database", "d", d.Redis.DB, "Redis database")
	fs.StringP("password", "w", "", "Redis password")
	fs.Bool("tls", false, "connect to Redis over TLS")
	fs.StringP("uri", "u", "", "Redis URI (overrides host, port, database and password)")
	fs.StringSliceP("sentinels", "s", nil, "Redis sentinel addresses host:port, comma separated")
	fs.StringP("master", "m", "", "Redis sentinel master name")

	fs.Duration("interval", d.Interval, "queue discovery interval")
	fs.String("queue-filter", "", "CEL expression over prefix, name and key selecting queues")
	fs.String("data-dir", d.DataDir, `journal directory ("-" disables, "" uses the platform default)`)
	fs.String("sync", d.Sync, "journal sync policy: always|interval|never")
	fs.String("http", "", "admin HTTP listen address (disabled when empty)")
	fs.String("grpc", "", "gRPC health listen address (disabled when empty)")
	fs.String("log-level", d.Log.Level, "log level: debug|info|warn|error")
	fs.String("log-format", d.Log.Format, "log format: text|json")
	fs.String("tracing", "", "trace exporter: stdout|otlp")
	fs.String("otlp-endpoint", "", "OTLP gRPC collector address")
}

// loadConfig layers defaults, file, environment and explicitly set flags.
func loadConfig(fs *pflag.FlagSet) (cfgpkg.Config, error) {
	path, _ := fs.GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)

	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}
	str("connector-name", &cfg.ConnectorName)
	str("api-key", &cfg.APIKey)
	str("backend", &cfg.Backend)
	str("host", &cfg.Redis.Host)
	num("port", &cfg.Redis.Port)
	num("database", &cfg.Redis.DB)
	str("password", &cfg.Redis.Password)
	str("uri", &cfg.Redis.URI)
	str("master", &cfg.Redis.Master)
	if fs.Changed("tls") {
		cfg.Redis.TLS, _ = fs.GetBool("tls")
	}
	if fs.Changed("sentinels") {
		cfg.Redis.Sentinels, _ = fs.GetStringSlice("sentinels")
	}
	if fs.Changed("interval") {
		cfg.Interval, _ = fs.GetDuration("interval")
	}
	str("queue-filter", &cfg.QueueFilter)
	str("data-dir", &cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	str("sync", &cfg.Sync)
	str("http", &cfg.HTTPAddr)
	str("grpc", &cfg.GRPCAddr)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("tracing", &cfg.Tracing.Exporter)
	str("otlp-endpoint", &cfg.Tracing.Endpoint)

	if _, err := logpkg.ParseLevel(cfg.Log.Level); err != nil {
		return cfg, fmt.Errorf("invalid --log-level: %w", err)
	}
	return cfg, nil
}
