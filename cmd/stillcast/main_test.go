package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"stillcast/internal/daemon"
	"stillcast/internal/logging"
	"stillcast/internal/supervisor"
	"stillcast/internal/testsupport"
)

type cliTestEnv struct {
	daemon *daemon.Daemon
	addr   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	sup := supervisor.New(cfg, store, logging.NewNop())
	d, err := daemon.New(cfg, store, sup, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return &cliTestEnv{daemon: d, addr: d.Addr()}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--api", env.addr))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLITaskLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "create", "cam1", "rtsp://localhost:8554/cam1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "Created task cam1") {
		t.Fatalf("unexpected create output: %q", out)
	}

	imgPath := t.TempDir() + "/a.png"
	testsupport.WritePNG(t, imgPath, 64, 48)
	if _, err := runCLI(t, env, "upload", "cam1", imgPath); err != nil {
		t.Fatalf("upload: %v", err)
	}

	out, err = runCLI(t, env, "start", "cam1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(out, "Started cam1") {
		t.Fatalf("unexpected start output: %q", out)
	}

	out, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "cam1") || !strings.Contains(out, "running") {
		t.Fatalf("unexpected list output: %q", out)
	}

	out, err = runCLI(t, env, "images", "cam1")
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	if !strings.Contains(out, "a.png") {
		t.Fatalf("unexpected images output: %q", out)
	}

	if _, err := runCLI(t, env, "stop", "cam1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := runCLI(t, env, "rm", "cam1"); err != nil {
		t.Fatalf("rm: %v", err)
	}

	if _, err := runCLI(t, env, "start", "cam1"); err == nil {
		t.Fatal("expected error starting deleted task")
	}
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Daemon running") {
		t.Fatalf("unexpected status output: %q", out)
	}
}
