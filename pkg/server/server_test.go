package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDialableAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{
			name:    "unspecified ipv4",
			address: "0.0.0.0:3030",
			want:    "127.0.0.1:3030",
		},
		{
			name:    "unspecified ipv6",
			address: "[::]:3030",
			want:    "127.0.0.1:3030",
		},
		{
			name:    "empty host",
			address: ":3030",
			want:    "127.0.0.1:3030",
		},
		{
			name:    "loopback",
			address: "127.0.0.1:3030",
			want:    "127.0.0.1:3030",
		},
		{
			name:    "concrete host",
			address: "10.0.0.5:3030",
			want:    "10.0.0.5:3030",
		},
		{
			name:    "hostname",
			address: "proxy.internal:3030",
			want:    "proxy.internal:3030",
		},
		{
			name:    "unparseable",
			address: "garbage",
			want:    "garbage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dialableAddress(tt.address); got != tt.want {
				t.Errorf("dialableAddress(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv := New(Config{
		Address:         "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}, http.NewServeMux(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	// Give the listener a moment to come up, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServer_ListenerFailure(t *testing.T) {
	srv := New(Config{
		Address:         "256.256.256.256:999999",
		ShutdownTimeout: time.Second,
	}, http.NewServeMux(), zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil for an unlistenable address")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return on listener failure")
	}
}
