package runtime

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"

	cfgpkg "github.com/queuekit/queuekit-connector-bull/internal/config"
	"github.com/queuekit/queuekit-connector-bull/internal/journal"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.APIKey = "k"
	cfg.Redis.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	cfg.Redis.Port = port
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := Open(Options{Config: testConfig(t, mr)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Journal() != nil {
		t.Fatalf("journal should be disabled")
	}
	if _, ok := rt.Recorder().(journal.Nop); !ok {
		t.Fatalf("expected nop recorder")
	}
}

func TestHealthFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := Open(Options{Config: testConfig(t, mr)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	mr.Close()
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("expected health error")
	}
}

func TestOpenWithJournal(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	cfg.DataDir = t.TempDir()
	cfg.Sync = "always"
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	ctx := context.Background()
	if err := rt.CheckHealth(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Recorder().Record(ctx, journal.Entry{Kind: journal.KindConnection, Detail: "connected"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := rt.Journal().List(ctx, journal.ListOptions{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v %v", entries, err)
	}
}

func TestOpenRejectsBadSync(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	cfg.DataDir = t.TempDir()
	cfg.Sync = "sometimes"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected error")
	}
}
