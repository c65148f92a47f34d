package security

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCertificateExpired is returned when a certificate has expired
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateNotYetValid is returned when a certificate is not yet valid
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrCertificateUntrusted is returned when a certificate does not chain to a trusted root
	ErrCertificateUntrusted = errors.New("certificate is not trusted")
	// ErrInvalidCertificate is returned for other certificate validation failures
	ErrInvalidCertificate = errors.New("certificate validation failed")
)

// Certificate purposes understood by the validators
const (
	PurposeSigning   = "signing"
	PurposeTLSClient = "tls-client"
)

// CertificateValidator decides whether a certificate may be used for a
// purpose. The intermediates are optional.
type CertificateValidator interface {
	ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, purpose string) error
}

// ValidityPeriodValidator only checks NotBefore and NotAfter. SIFEN issues
// signing certificates from several national CAs, so chain building is left
// to ChainValidator when the caller has the roots at hand.
type ValidityPeriodValidator struct {
	Now func() time.Time
}

// ValidateCertificate implements CertificateValidator
func (v *ValidityPeriodValidator) ValidateCertificate(cert *x509.Certificate, _ []*x509.Certificate, _ string) error {
	if cert == nil {
		return fmt.Errorf("%w: nil certificate", ErrInvalidCertificate)
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	return checkValidity(cert, now)
}

func checkValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("%w: valid from %s", ErrCertificateNotYetValid, cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("%w: expired at %s", ErrCertificateExpired, cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// ChainValidator checks the validity period and verifies the chain against
// a root pool
type ChainValidator struct {
	roots *x509.CertPool
	now   func() time.Time
}

// NewChainValidator creates a validator using the given roots. A nil pool
// means the system roots.
func NewChainValidator(roots *x509.CertPool) *ChainValidator {
	return &ChainValidator{roots: roots, now: time.Now}
}

// ValidateCertificate implements CertificateValidator
func (v *ChainValidator) ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, purpose string) error {
	if cert == nil {
		return fmt.Errorf("%w: nil certificate", ErrInvalidCertificate)
	}
	now := v.now()
	if err := checkValidity(cert, now); err != nil {
		return err
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		CurrentTime:   now,
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	for _, intermediate := range intermediates {
		opts.Intermediates.AddCert(intermediate)
	}
	if purpose == PurposeTLSClient {
		opts.KeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateUntrusted, err)
	}
	return nil
}
