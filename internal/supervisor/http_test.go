// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HTTPService)(nil)

// mockHTTPServer is a test double for the HTTPServer interface.
type mockHTTPServer struct {
	listenErr     error
	listenBlock   bool
	shutdownErr   error
	listenCount   atomic.Int32
	shutdownCount atomic.Int32
	listenCalled  chan struct{}
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		listenCalled: make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.listenCount.Add(1)

	select {
	case m.listenCalled <- struct{}{}:
	default:
	}

	if m.listenErr != nil {
		return m.listenErr
	}

	if m.listenBlock {
		<-m.stopCh
		return http.ErrServerClosed
	}

	return nil
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	m.shutdownCount.Add(1)

	// Unblock ListenAndServe if it's blocking
	close(m.stopCh)

	return m.shutdownErr
}

func TestNewHTTPService(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPService(server, 10*time.Second)

	if svc.server != server {
		t.Error("server not assigned correctly")
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("expected shutdown timeout 10s, got %v", svc.shutdownTimeout)
	}
	if got := svc.String(); got != "ops-http" {
		t.Errorf("String() = %q, want %q", got, "ops-http")
	}
}

func TestNewHTTPServiceDefaultTimeout(t *testing.T) {
	if svc := NewHTTPService(newMockHTTPServer(), 0); svc.shutdownTimeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", svc.shutdownTimeout)
	}
	if svc := NewHTTPService(newMockHTTPServer(), -5*time.Second); svc.shutdownTimeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", svc.shutdownTimeout)
	}
}

func TestHTTPServiceServe(t *testing.T) {
	t.Run("shuts down gracefully on context cancellation", func(t *testing.T) {
		server := newMockHTTPServer()
		server.listenBlock = true
		svc := NewHTTPService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		select {
		case <-server.listenCalled:
		case <-time.After(time.Second):
			t.Fatal("server did not start")
		}

		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after context cancellation")
		}

		if got := server.listenCount.Load(); got != 1 {
			t.Errorf("expected 1 ListenAndServe call, got %d", got)
		}
		if got := server.shutdownCount.Load(); got != 1 {
			t.Errorf("expected 1 Shutdown call, got %d", got)
		}
	})

	t.Run("returns error on startup failure", func(t *testing.T) {
		wantErr := errors.New("bind: address already in use")
		server := newMockHTTPServer()
		server.listenErr = wantErr
		svc := NewHTTPService(server, time.Second)

		err := svc.Serve(context.Background())
		if !errors.Is(err, wantErr) {
			t.Errorf("expected error containing %v, got %v", wantErr, err)
		}
	})

	t.Run("returns shutdown error if shutdown fails", func(t *testing.T) {
		shutdownErr := errors.New("shutdown timeout")
		server := newMockHTTPServer()
		server.listenBlock = true
		server.shutdownErr = shutdownErr
		svc := NewHTTPService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		<-server.listenCalled
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, shutdownErr) {
				t.Errorf("expected shutdown error, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return")
		}
	})
}

func TestHTTPServiceWithSupervisor(t *testing.T) {
	server := newMockHTTPServer()
	server.listenBlock = true
	svc := NewHTTPService(server, time.Second)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          2 * time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := sup.ServeBackground(ctx)

	select {
	case <-server.listenCalled:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}

	cancel()
	<-errCh

	if got := server.shutdownCount.Load(); got < 1 {
		t.Error("server Shutdown was not called")
	}
}
