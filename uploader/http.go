package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/testpulse/testpulse/config"
)

// HTTPUploader is the reference Uploader: it POSTs JSON batch envelopes to a
// configured ingestion endpoint. The batch ID travels both in the body and
// the X-Batch-Id header so the receiver can deduplicate before decoding.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
}

// NewHTTP builds an HTTPUploader for cfg.UploadEndpoint with the configured
// auth mode and TLS options.
func NewHTTP(cfg config.EngineConfig) (*HTTPUploader, error) {
	if cfg.UploadEndpoint == "" {
		return nil, fmt.Errorf("uploader: upload_endpoint is empty")
	}
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("uploader: build http client: %w", err)
	}
	return &HTTPUploader{
		endpoint: cfg.UploadEndpoint,
		client:   client,
		now:      time.Now,
	}, nil
}

// UploadBatch implements Uploader. Responses map onto the retry taxonomy:
// 2xx delivered, 408/429/5xx and transport errors transient, remaining 4xx
// permanent.
func (u *HTTPUploader) UploadBatch(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(toWire(batch, u.now().UTC()))
	if err != nil {
		return Permanentf("uploader: encode batch %s: %w", batch.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return Permanentf("uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Batch-Id", batch.ID)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploader: post batch %s: %w", batch.ID, err)
	}
	defer resp.Body.Close()
	// Drain so the connection is reusable.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("uploader: batch %s: endpoint returned HTTP %d", batch.ID, resp.StatusCode)
	default:
		return Permanentf("uploader: batch %s: endpoint rejected with HTTP %d", batch.ID, resp.StatusCode)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = "x-api-key"
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the endpoint's auth and TLS
// settings. Per-attempt deadlines come from the Retrier's context, so the
// client itself carries no timeout.
func buildHTTPClient(cfg config.EngineConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
	}, nil
}
