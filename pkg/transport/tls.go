package transport

import (
	"crypto/tls"
	"crypto/x509"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// RecommendedTLS12CipherSuites is used when TLS 1.2 is negotiated
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// TLSOptions describes the client TLS context
type TLSOptions struct {
	MinTLSVersion uint16
	MaxTLSVersion uint16
	CipherSuites  []uint16
	// Certificates are presented for mutual TLS
	Certificates []tls.Certificate
	// RootCAs replaces the system pool when set
	RootCAs *x509.CertPool
}

// DefaultTLSOptions returns TLS 1.2 to 1.3 with the recommended suites
func DefaultTLSOptions() *TLSOptions {
	return &TLSOptions{
		MinTLSVersion: TLS12,
		MaxTLSVersion: TLS13,
		CipherSuites:  RecommendedTLS12CipherSuites,
	}
}

// Config builds the tls.Config. The result is meant to be shared read-only
// by every exchange.
func (o *TLSOptions) Config() *tls.Config {
	if o == nil {
		o = DefaultTLSOptions()
	}
	return &tls.Config{
		MinVersion:   o.MinTLSVersion,
		MaxVersion:   o.MaxTLSVersion,
		CipherSuites: o.CipherSuites,
		Certificates: o.Certificates,
		RootCAs:      o.RootCAs,
	}
}
