// Package tlsutil provides one hardened TLS posture shared by every outbound
// connection the router makes (vendor adapters, Redis) and by its own public
// HTTPS listener, so the two never drift out of sync.
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// hardenedCipherSuites lists the AEAD-only suites acceptable for both the
// outbound vendor transport and the router's own TLS listener.
var hardenedCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig returns a hardened TLS configuration: TLS 1.2 minimum,
// AEAD-only cipher suites. Used both as the base for outbound vendor/Redis
// connections and for the router's own HTTPS listener (server.Manager.StartTLS).
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: hardenedCipherSuites,
	}
}

// SecureTransport returns an http.Transport with TLS hardening applied,
// tuned for sustained calls against vendor LLM APIs: keep-alives on, HTTP/2
// attempted, and a bounded idle pool so a burst of requests doesn't exhaust
// file descriptors.
func SecureTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening: a drop-in
// replacement for &http.Client{Timeout: timeout} used by every vendor adapter.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}
