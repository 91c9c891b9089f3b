package scm

import (
	"context"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestClientAppliesHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{Headers: map[string]string{
		"Authorization": "Bearer sekrit",
		"Accept":        "application/vnd.github+json",
	}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Get(context.Background(), srv.URL, NopLimiter{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Get(context.Background(), srv.URL+"/missing", NopLimiter{})
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Errorf("IsStatus(err, 404) = false for %v", err)
	}
	if IsStatus(err, http.StatusConflict) {
		t.Error("IsStatus matched the wrong code")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error is not a StatusError: %v", err)
	}
	if !strings.Contains(se.Body, "Not Found") {
		t.Errorf("Body = %q, want the server's payload", se.Body)
	}
}

// A TLS server signed by an unknown CA must produce the single actionable
// message pointing at --ca-cert, not a raw x509 chain.
func TestClientCertErrorMessage(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Get(context.Background(), srv.URL, NopLimiter{})
	if err == nil {
		t.Fatal("expected a TLS verification failure")
	}
	if !strings.Contains(err.Error(), "--ca-cert") {
		t.Errorf("error %q does not suggest --ca-cert", err)
	}
}

func TestClientCustomCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	certFile := t.TempDir() + "/ca.pem"
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(certFile, block, 0o600); err != nil {
		t.Fatalf("writing cert: %v", err)
	}

	client, err := NewClient(ClientOptions{CACert: certFile})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	page, err := client.Get(context.Background(), srv.URL, NopLimiter{})
	if err != nil {
		t.Fatalf("Get with custom CA: %v", err)
	}
	if page.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", page.Status)
	}
}

func TestNewClientRejectsBadCAFile(t *testing.T) {
	if _, err := NewClient(ClientOptions{CACert: "/does/not/exist.pem"}); err == nil {
		t.Error("expected an error for a missing CA file")
	}

	empty := t.TempDir() + "/empty.pem"
	if err := os.WriteFile(empty, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := NewClient(ClientOptions{CACert: empty}); err == nil {
		t.Error("expected an error for a PEM file without certificates")
	}
}
