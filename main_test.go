package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunListenerReturnsSubscribeError(t *testing.T) {
	subscribeErr := errors.New("subscribe expired events: NOPERM")
	listen := func(context.Context, chan<- struct{}) error { return subscribeErr }

	done := make(chan error, 1)
	go func() { done <- runListener(context.Background(), listen, quietLogger()) }()
	select {
	case err := <-done:
		if !errors.Is(err, subscribeErr) {
			t.Fatalf("expect subscribe error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runListener blocked after the listener failed")
	}
}

func TestRunListenerWaitsForReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listen := func(ctx context.Context, ready chan<- struct{}) error {
		close(ready)
		<-ctx.Done()
		return nil
	}
	if err := runListener(ctx, listen, quietLogger()); err != nil {
		t.Fatalf("expect nil once ready, got %v", err)
	}
}

func TestRunListenerEarlyExitWithoutError(t *testing.T) {
	listen := func(context.Context, chan<- struct{}) error { return nil }
	if err := runListener(context.Background(), listen, quietLogger()); err == nil {
		t.Fatal("expect error when the listener exits before subscribing")
	}
}
