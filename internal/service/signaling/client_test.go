package signaling_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/mathta/backend/internal/service/session"
	"github.com/zhouzirui/mathta/backend/internal/service/signaling"
)

func TestClientNegotiateSendsRawSDP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/sdp" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "v=0\r\noffer\r\n" {
			t.Errorf("offer not sent verbatim: %q", body)
		}
		w.Header().Set("Content-Type", "application/sdp")
		_, _ = io.WriteString(w, "v=0\r\nanswer\r\n")
	}))
	defer server.Close()

	client := signaling.NewClient(server.URL+"/functions/v1/session", "anon", server.Client())
	answer, err := client.Negotiate(context.Background(), "v=0\r\noffer\r\n")
	if err != nil {
		t.Fatalf("Negotiate err: %v", err)
	}
	if answer != "v=0\r\nanswer\r\n" {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestClientNegotiateNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":"WebRTC negotiation failed"}`)
	}))
	defer server.Close()

	client := signaling.NewClient(server.URL, "", server.Client())
	_, err := client.Negotiate(context.Background(), "v=0\r\n")

	var transportErr *session.NegotiationTransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected NegotiationTransportError, got %v", err)
	}
	if transportErr.Status != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", transportErr.Status)
	}
	if err.Error() != `{"error":"WebRTC negotiation failed"}` {
		t.Fatalf("error should carry the relay body, got %q", err.Error())
	}
}

func TestClientNegotiateUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := signaling.NewClient(url, "", nil).Negotiate(context.Background(), "v=0\r\n")
	var transportErr *session.NegotiationTransportError
	if !errors.As(err, &transportErr) || transportErr.Err == nil {
		t.Fatalf("expected transport error with cause, got %v", err)
	}
}
