package mcstatus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchOnline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mc.example.com" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"online": true,
			"players": {"online": 5, "max": 20},
			"motd": {"clean": ["Welcome", "to the server"]}
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	snap, err := c.Fetch(context.Background(), "mc.example.com")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !snap.Online || snap.Players != 5 || snap.MaxPlayers != 20 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.MOTD != "Welcome\nto the server" {
		t.Fatalf("unexpected motd: %q", snap.MOTD)
	}
}

func TestFetchOffline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"online": false}`))
	}))
	defer srv.Close()

	snap, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), "down.example.com")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Online || snap.Players != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), "mc.example.com")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestFetchMalformedBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Fetch(context.Background(), "mc.example.com")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Fetch(context.Background(), "mc.example.com")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable on timeout, got %v", err)
	}
}

func TestFetchEmptyAddress(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}).Fetch(context.Background(), "  ")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
