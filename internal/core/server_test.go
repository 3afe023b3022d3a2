package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"preheat/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(&config.Config{}, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(nil, testLogger())
	if err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewServer_NilLogger(t *testing.T) {
	_, err := NewServer(&config.Config{}, nil)
	if err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestNewServer_Initialized(t *testing.T) {
	s := newTestServer(t)
	if s.Handler() == nil {
		t.Error("expected non-nil handler")
	}
	if s.Router() == nil {
		t.Error("expected non-nil router")
	}
	if s.Validator == nil {
		t.Error("expected validator to be initialized")
	}
}

func TestShutdown_ClosersRunInReverseOrder(t *testing.T) {
	s := newTestServer(t)

	var order []string
	s.RegisterCloser("first", func() error {
		order = append(order, "first")
		return nil
	})
	s.RegisterCloser("second", func() error {
		order = append(order, "second")
		return nil
	})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("expected reverse registration order, got %v", order)
	}
}

func TestShutdown_FirstErrorReturnedAllClosersRun(t *testing.T) {
	s := newTestServer(t)

	boom := errors.New("pool close failed")
	var dbClosed, brokerClosed bool
	s.RegisterCloser("database", func() error {
		dbClosed = true
		return boom
	})
	s.RegisterCloser("broker", func() error {
		brokerClosed = true
		return nil
	})

	err := s.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped close error, got: %v", err)
	}
	if !dbClosed || !brokerClosed {
		t.Error("all closers must run even when one fails")
	}
}
