package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unkn0wn-root/opscache"
)

func TestHTTPConfirmerValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization: %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true}`))
	}))
	defer srv.Close()

	ok, err := NewHTTPConfirmer(srv.URL, time.Second).Confirm(context.Background(), "tok-1")
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestHTTPConfirmerInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"valid":false}`))
	}))
	defer srv.Close()

	ok, err := NewHTTPConfirmer(srv.URL, time.Second).Confirm(context.Background(), "tok-1")
	if ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestHTTPConfirmerNonSuccessIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPConfirmer(srv.URL, time.Second).Confirm(context.Background(), "tok-1")
	if !errors.Is(err, opscache.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPError 502, got %v", err)
	}
}

func TestHTTPConfirmerMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>login</html>`))
	}))
	defer srv.Close()

	_, err := NewHTTPConfirmer(srv.URL, time.Second).Confirm(context.Background(), "tok-1")
	if opscache.KindOf(err) != opscache.KindTransport {
		t.Fatalf("expected transport kind, got %v", err)
	}
}

func TestHTTPConfirmerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPConfirmer(url, time.Second).Confirm(context.Background(), "tok-1")
	if !errors.Is(err, opscache.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
