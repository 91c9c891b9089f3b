// Package scm is the paginated, throttled request engine the platform
// adapters are built on. It knows nothing about any particular platform's
// JSON; adapters describe response shapes through a Pager and a Limiter and
// get back raw items.
package scm

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 30 * time.Second

	// EnvHTTPDebug enables logging of every raw response body.
	EnvHTTPDebug = "GITCENSUS_HTTP_DEBUG"
)

// Page is one HTTP response, fully read.
type Page struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError reports a non-2xx response that the engine did not resolve by
// throttling. Adapters inspect the code for platform quirks (GitHub's 409 on
// an empty repository, 404 on an org that is really a user).
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout for each request. Zero means the default of 30s.
	Timeout time.Duration
	// CACert is a path to a PEM bundle used instead of the system roots,
	// for self-hosted instances behind a private CA.
	CACert string
	// Headers are applied to every outgoing request (auth, Accept, ...).
	Headers map[string]string
}

// Client is the engine's HTTP primitive. It applies per-platform headers,
// supports a custom CA bundle, and rewrites TLS handshake failures into one
// actionable diagnostic instead of a raw chain of wrapped errors.
type Client struct {
	http    *http.Client
	headers map[string]string
	debug   bool
}

// NewClient builds a Client from opts. Raw-response debug logging is switched
// on by the GITCENSUS_HTTP_DEBUG environment variable.
func NewClient(opts ClientOptions) (*Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.CACert != "" {
		pem, err := os.ReadFile(opts.CACert)
		if err != nil {
			return nil, errors.Wrapf(err, "reading CA certificate %s", opts.CACert)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates found in %s", opts.CACert)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		headers: opts.Headers,
		debug:   os.Getenv(EnvHTTPDebug) == "true",
	}, nil
}

// Do executes one request and reads the whole body. Transport errors caused
// by certificate verification come back as a single message suggesting the
// --ca-cert option.
func (c *Client) Do(req *http.Request) (*Page, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isCertError(err) {
			return nil, errors.Errorf(
				"TLS verification failed for %s; if the server uses a private CA, pass its certificate with --ca-cert",
				req.URL.Host)
		}
		return nil, errors.Wrapf(err, "request to %s failed", req.URL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response from %s", req.URL)
	}

	if c.debug {
		log.Debug().
			Str("url", req.URL.String()).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("raw response")
	}

	return &Page{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func isCertError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &verification)
}
