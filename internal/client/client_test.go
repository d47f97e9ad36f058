package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var posted []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Windows"))
	})
	mux.HandleFunc("POST /results", func(w http.ResponseWriter, r *http.Request) {
		data := r.URL.Query().Get("data")
		if !json.Valid([]byte(data)) {
			http.Error(w, "invalid data", http.StatusBadRequest)
			return
		}
		posted = append(posted, data)
		w.Write([]byte("200"))
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)
	return srv, &posted
}

func TestPing_InsecureSkipVerify(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := New(srv.URL, Options{InsecureSkipVerify: true})

	name, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if name != "Windows" {
		t.Errorf("expected Windows, got %q", name)
	}
}

func TestPing_VerificationFailsWithoutTrust(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := New(srv.URL, Options{})

	if _, err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected certificate verification error")
	}
}

func TestPing_TrustedRootCAs(t *testing.T) {
	srv, _ := newFakeServer(t)
	pool := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	c := New(srv.URL+"/", Options{RootCAs: pool})

	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping with trusted pool failed: %v", err)
	}
}

func TestPostResults(t *testing.T) {
	srv, posted := newFakeServer(t)
	c := NewWithHTTPClient(srv.URL, srv.Client())

	if err := c.PostResults(context.Background(), map[string]any{"x": 5}); err != nil {
		t.Fatalf("PostResults failed: %v", err)
	}
	if len(*posted) != 1 || (*posted)[0] != `{"x":5}` {
		t.Errorf("unexpected posted data: %v", *posted)
	}
}

func TestPostRawResults_BadRequest(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewWithHTTPClient(srv.URL, srv.Client())

	err := c.PostRawResults(context.Background(), "{not json")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusBadRequest || se.Body != "invalid data" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestPostResults_EncodeError(t *testing.T) {
	c := New("https://localhost:1", Options{})
	if err := c.PostResults(context.Background(), map[string]any{"ch": make(chan int)}); err == nil {
		t.Error("expected encode error")
	}
}
