package server

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/remiblancher/evpki/internal/audit"
)

func TestF_Server_ServeAndShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.AuditLog = filepath.Join(dir, "audit.jsonl")
	cfg.ShutdownTimeout = 2 * time.Second

	srv := New(cfg, "test", nil)
	if err := srv.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("GET /health error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	events, err := audit.ReadEvents(cfg.AuditLog)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("audit events = %d, want at least 2", len(events))
	}
	if events[0].EventType != audit.EventServerStarted {
		t.Errorf("first event = %s, want %s", events[0].EventType, audit.EventServerStarted)
	}
	if last := events[len(events)-1]; last.EventType != audit.EventServerStopped {
		t.Errorf("last event = %s, want %s", last.EventType, audit.EventServerStopped)
	}
	if n, err := audit.VerifyChain(cfg.AuditLog); err != nil || n != len(events) {
		t.Errorf("VerifyChain() = %d, %v", n, err)
	}
	if audit.Enabled() {
		t.Error("audit still enabled after shutdown")
	}
}

func TestU_Server_Setup_BadAnchors(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.AnchorsFile = filepath.Join(dir, "missing.yaml")

	srv := New(cfg, "test", nil)
	t.Cleanup(func() { _ = audit.Close() })
	if err := srv.Setup(); err == nil {
		t.Error("Setup() error = nil for a missing anchors file")
	}
}
