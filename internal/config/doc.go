// Package config loads connector configuration. Default() is the baseline,
// Load overlays a JSON or YAML file, FromEnv overlays environment variables
// and the CLI applies flags last.
//
// Example:
//
//	cfg, err := config.Load("/etc/queuekit/bull.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	opts, _ := cfg.RedisOptions()
//	rdb := redis.NewUniversalClient(opts)
package config
