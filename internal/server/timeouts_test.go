package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/concierge/internal/config"
)

func testHTTP() config.HTTP {
	return config.HTTP{
		ListenAddr:      "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    2 * time.Second,
		IdleTimeout:     3 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestNew_AppliesTimeouts(t *testing.T) {
	srv := New(testHTTP(), http.NotFoundHandler())
	if srv.ReadTimeout != time.Second || srv.WriteTimeout != 2*time.Second || srv.IdleTimeout != 3*time.Second {
		t.Fatalf("timeouts not applied: %+v", srv)
	}
	if srv.Addr != "127.0.0.1:0" {
		t.Fatalf("Addr = %q", srv.Addr)
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testHTTP()
	srv := New(cfg, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, cfg, zap.NewNop().Sugar()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := testHTTP()
	cfg.ListenAddr = "256.0.0.1:99999"
	err := Run(context.Background(), New(cfg, http.NotFoundHandler()), cfg, zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected listen error")
	}
}
