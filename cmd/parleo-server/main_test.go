package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/parleo-app/parleo/pkg/gateway/config"
	gatewayserver "github.com/parleo-app/parleo/pkg/gateway/server"
	"github.com/parleo-app/parleo/pkg/gateway/upstream"
)

func testDeps(sigCh chan chan<- os.Signal) serverDeps {
	return serverDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:                 "127.0.0.1:0",
				GeminiAPIKey:         "test-key",
				Languages:            map[string]bool{"spanish": true},
				MaxSessionDuration:   time.Minute,
				MaxConcurrentPerIP:   2,
				MaxSessionsPerIPHour: 10,
				ReadHeaderTimeout:    5 * time.Second,
				ShutdownGracePeriod:  2 * time.Second,
			}, nil
		},
		newProvider: func(context.Context, config.Config, *slog.Logger) (upstream.Provider, error) {
			return nil, nil
		},
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, _ ...os.Signal) {
			if sigCh != nil {
				sigCh <- c
			}
		},
		signalStop: func(chan<- os.Signal) {},
	}
}

func TestRunServerConfigError(t *testing.T) {
	deps := testDeps(nil)
	deps.loadConfig = func() (config.Config, error) {
		return config.Config{}, fmt.Errorf("bad config")
	}
	deps.signalNotify = func(chan<- os.Signal, ...os.Signal) {}

	if err := runServer(context.Background(), nil, deps); err == nil {
		t.Fatal("expected config error")
	}
}

func TestRunServerMissingDeps(t *testing.T) {
	if err := runServer(context.Background(), nil, serverDeps{}); err == nil {
		t.Fatal("expected missing dependency error")
	}
}

func TestRunServerGracefulShutdown(t *testing.T) {
	sigCh := make(chan chan<- os.Signal, 1)
	deps := testDeps(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(context.Background(), slog.New(slog.NewTextHandler(os.Stderr, nil)), deps)
	}()

	select {
	case c := <-sigCh:
		c <- os.Interrupt
	case <-time.After(5 * time.Second):
		t.Fatal("signal channel never registered")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServer did not stop after signal")
	}
}

func TestRunServerContextCanceled(t *testing.T) {
	deps := testDeps(make(chan chan<- os.Signal, 1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(ctx, nil, deps)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not stop after cancel")
	}
}
