package daemon

import (
	"context"
	"strings"
	"testing"

	"stillcast/internal/logging"
	"stillcast/internal/supervisor"
	"stillcast/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	sup := supervisor.New(cfg, store, logging.NewNop())
	d, err := New(cfg, store, sup, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("expected bound api address after start")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected error starting a running daemon")
	}

	d.Stop()
	d.Stop()
}

func TestDaemonSingleInstance(t *testing.T) {
	first := newTestDaemon(t)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}

	sup := supervisor.New(first.cfg, first.store, logging.NewNop())
	second, err := New(first.cfg, first.store, sup, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	t.Cleanup(second.Stop)

	err = second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected single-instance rejection, got %v", err)
	}
}
