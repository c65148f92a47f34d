// Package keystore loads signing and TLS client credentials.
//
// SIFEN issues each taxpayer one certificate that is used both to sign
// documents and, on most gateways, to authenticate the TLS connection. The
// credential can come from:
//
//   - a PKCS#12 file (.p12/.pfx), the form the authority's certificate
//     providers deliver
//   - PEM certificate and key files
//   - a PKCS#11 token (HSM or smart card), when built with -tags pkcs11
//
// A loaded Bundle yields both a security.Credential for the signer and a
// tls.Config for the transport.
package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	"github.com/sirosfoundation/go-sifen/pkg/security"
	"github.com/sirosfoundation/go-sifen/pkg/transport"
)

// Common errors
var (
	ErrKeyNotFound       = errors.New("credential not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrPINRequired       = errors.New("PIN required to unlock key")

	// ErrPKCS11NotSupported is returned when a token is requested but the
	// binary was not compiled with PKCS#11 support
	ErrPKCS11NotSupported = errors.New("PKCS#11 support not compiled in (build with -tags pkcs11)")
)

// Bundle is a private key with its certificate and issuing chain
type Bundle struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
	// Chain holds the issuer certificates, issuer first
	Chain []*x509.Certificate

	closer func() error
}

// KeyInfo describes a loaded credential
type KeyInfo struct {
	// Algorithm is the key algorithm (e.g., "RSA", "EC")
	Algorithm          string
	KeySize            int
	NotBefore          time.Time
	NotAfter           time.Time
	CertificateSubject string
}

// Info describes the bundle for logging
func (b *Bundle) Info() KeyInfo {
	return KeyInfo{
		Algorithm:          keyAlgorithmName(b.Certificate.PublicKey),
		KeySize:            keySize(b.Certificate.PublicKey),
		NotBefore:          b.Certificate.NotBefore,
		NotAfter:           b.Certificate.NotAfter,
		CertificateSubject: b.Certificate.Subject.String(),
	}
}

// Credential returns the signing credential
func (b *Bundle) Credential() security.Credential {
	return security.Credential{Key: b.Key, Certificate: b.Certificate, Chain: b.Chain}
}

// TLSCertificate returns the bundle as a TLS client certificate
func (b *Bundle) TLSCertificate() tls.Certificate {
	chain := [][]byte{b.Certificate.Raw}
	for _, c := range b.Chain {
		chain = append(chain, c.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  b.Key,
		Leaf:        b.Certificate,
	}
}

// TLSConfig builds the shared client TLS context. The bundle may be nil
// when the gateway does not require client authentication; roots may be nil
// to use the system pool.
func TLSConfig(b *Bundle, roots *x509.CertPool) *tls.Config {
	opts := transport.DefaultTLSOptions()
	if b != nil {
		opts.Certificates = []tls.Certificate{b.TLSCertificate()}
	}
	opts.RootCAs = roots
	return opts.Config()
}

// Close releases token sessions held by the bundle
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// newBundle picks the certificate matching key as leaf and keeps the rest
// as chain, ordered so that each certificate is followed by its issuer
func newBundle(key crypto.Signer, certs []*x509.Certificate) (*Bundle, error) {
	if key == nil {
		return nil, ErrKeyNotFound
	}
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return nil, ErrInvalidCredential
	}

	var leaf *x509.Certificate
	var rest []*x509.Certificate
	for _, c := range certs {
		if leaf == nil && pub.Equal(c.PublicKey) {
			leaf = c
			continue
		}
		rest = append(rest, c)
	}
	if leaf == nil {
		return nil, errors.Join(ErrInvalidCredential, errors.New("no certificate matches the private key"))
	}
	return &Bundle{Key: key, Certificate: leaf, Chain: orderChain(leaf, rest)}, nil
}

func orderChain(leaf *x509.Certificate, certs []*x509.Certificate) []*x509.Certificate {
	var chain []*x509.Certificate
	used := make([]bool, len(certs))
	current := leaf
	for {
		next := -1
		for i, c := range certs {
			if !used[i] && current.CheckSignatureFrom(c) == nil {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		chain = append(chain, certs[next])
		current = certs[next]
	}
	for i, c := range certs {
		if !used[i] {
			chain = append(chain, c)
		}
	}
	return chain
}

func keyAlgorithmName(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *ecdsa.PublicKey:
		return "EC"
	case *rsa.PublicKey:
		return "RSA"
	default:
		return "Unknown"
	}
}

func keySize(pub crypto.PublicKey) int {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case *rsa.PublicKey:
		return k.N.BitLen()
	default:
		return 0
	}
}
