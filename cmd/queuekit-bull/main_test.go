package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "from-env")
	t.Setenv("API_KEY", "env-key")
	cmd := newRootCmd()
	if err := cmd.PersistentFlags().Parse([]string{"-h", "from-flag", "-p", "7001", "-s", "a:1,b:2", "-m", "mymaster", "--interval", "2s"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := loadConfig(cmd.PersistentFlags())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Host != "from-flag" || cfg.Redis.Port != 7001 {
		t.Fatalf("flags not applied: %+v", cfg.Redis)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("env not applied: %q", cfg.APIKey)
	}
	if len(cfg.Redis.Sentinels) != 2 || cfg.Redis.Master != "mymaster" {
		t.Fatalf("sentinels not applied: %+v", cfg.Redis)
	}
	if cfg.Interval != 2*time.Second {
		t.Fatalf("interval not applied: %v", cfg.Interval)
	}
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.PersistentFlags().Parse([]string{"--log-level", "loud"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := loadConfig(cmd.PersistentFlags()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestQueuesCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	if err := mr.Set("bull:emails:id", "1"); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"queues", "-h", mr.Host(), "-p", mr.Port()})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := out.String(); got != "bull\temails\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
