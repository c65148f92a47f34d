package security

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// ErrCertificateRevoked is returned when a certificate has been revoked
var ErrCertificateRevoked = errors.New("certificate has been revoked")

// RevocationChecker checks whether cert, issued by issuer, was revoked
type RevocationChecker interface {
	CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error
}

// OCSPConfig configures OCSPRevocationChecker
type OCSPConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// CRLFallback consults the CRL distribution points when OCSP fails
	CRLFallback bool
	CacheTTL    time.Duration
	// Strict fails when the status cannot be determined at all
	Strict bool
}

// DefaultOCSPConfig returns the default configuration
func DefaultOCSPConfig() *OCSPConfig {
	return &OCSPConfig{
		Timeout:     10 * time.Second,
		CRLFallback: true,
		CacheTTL:    time.Hour,
	}
}

// OCSPRevocationChecker checks revocation over OCSP with an optional CRL
// fallback. Results are cached per serial number; the cache is the only
// shared state and is guarded by a mutex.
type OCSPRevocationChecker struct {
	config *OCSPConfig
	client *http.Client

	mu    sync.Mutex
	cache map[string]revocationEntry
}

type revocationEntry struct {
	err       error
	checkedAt time.Time
}

// NewOCSPRevocationChecker creates a checker. A nil config uses the defaults.
func NewOCSPRevocationChecker(config *OCSPConfig) *OCSPRevocationChecker {
	if config == nil {
		config = DefaultOCSPConfig()
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &OCSPRevocationChecker{
		config: config,
		client: client,
		cache:  make(map[string]revocationEntry),
	}
}

// CheckRevocation implements RevocationChecker
func (c *OCSPRevocationChecker) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error {
	if cert == nil || issuer == nil {
		return fmt.Errorf("%w: certificate and issuer are required", ErrInvalidCertificate)
	}

	key := cert.SerialNumber.String()
	if err, ok := c.cached(key); ok {
		return err
	}

	ocspErr := c.checkOCSP(ctx, cert, issuer)
	if ocspErr == nil || errors.Is(ocspErr, ErrCertificateRevoked) {
		c.store(key, ocspErr)
		return ocspErr
	}

	if c.config.CRLFallback {
		crlErr := c.checkCRL(ctx, cert, issuer)
		if crlErr == nil || errors.Is(crlErr, ErrCertificateRevoked) {
			c.store(key, crlErr)
			return crlErr
		}
		if c.config.Strict {
			return fmt.Errorf("revocation check failed: OCSP: %v, CRL: %v", ocspErr, crlErr)
		}
	}
	if c.config.Strict {
		return fmt.Errorf("revocation check failed: %w", ocspErr)
	}
	return nil
}

func (c *OCSPRevocationChecker) cached(key string) (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Since(entry.checkedAt) > c.config.CacheTTL {
		return nil, false
	}
	return entry.err, true
}

func (c *OCSPRevocationChecker) store(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = revocationEntry{err: err, checkedAt: time.Now()}
}

func (c *OCSPRevocationChecker) checkOCSP(ctx context.Context, cert, issuer *x509.Certificate) error {
	if len(cert.OCSPServer) == 0 {
		return errors.New("no OCSP server in certificate")
	}

	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return fmt.Errorf("failed to create OCSP request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cert.OCSPServer[0], bytes.NewReader(req))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	body, err := c.fetch(httpReq)
	if err != nil {
		return fmt.Errorf("OCSP request failed: %w", err)
	}

	resp, err := ocsp.ParseResponse(body, issuer)
	if err != nil {
		return fmt.Errorf("failed to parse OCSP response: %w", err)
	}
	switch resp.Status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return fmt.Errorf("%w: serial %s at %s", ErrCertificateRevoked, cert.SerialNumber, resp.RevokedAt.Format(time.RFC3339))
	default:
		return fmt.Errorf("OCSP status %d", resp.Status)
	}
}

func (c *OCSPRevocationChecker) checkCRL(ctx context.Context, cert, issuer *x509.Certificate) error {
	if len(cert.CRLDistributionPoints) == 0 {
		return errors.New("no CRL distribution points in certificate")
	}

	var lastErr error
	for _, dp := range cert.CRLDistributionPoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, dp, nil)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := c.fetch(req)
		if err != nil {
			lastErr = err
			continue
		}
		crl, err := x509.ParseRevocationList(body)
		if err != nil {
			lastErr = fmt.Errorf("failed to parse CRL: %w", err)
			continue
		}
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			lastErr = fmt.Errorf("CRL signature: %w", err)
			continue
		}
		for _, revoked := range crl.RevokedCertificateEntries {
			if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return fmt.Errorf("%w: serial %s listed in %s", ErrCertificateRevoked, cert.SerialNumber, dp)
			}
		}
		return nil
	}
	return fmt.Errorf("failed to check CRL: %w", lastErr)
}

func (c *OCSPRevocationChecker) fetch(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RevocationAwareValidator runs a base validator and then checks the
// certificate against its issuer, the first intermediate
type RevocationAwareValidator struct {
	base    CertificateValidator
	checker RevocationChecker
	timeout time.Duration
}

// NewRevocationAwareValidator wraps base with revocation checking
func NewRevocationAwareValidator(base CertificateValidator, checker RevocationChecker) *RevocationAwareValidator {
	return &RevocationAwareValidator{base: base, checker: checker, timeout: 30 * time.Second}
}

// ValidateCertificate implements CertificateValidator
func (v *RevocationAwareValidator) ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, purpose string) error {
	if err := v.base.ValidateCertificate(cert, intermediates, purpose); err != nil {
		return err
	}
	if v.checker == nil || len(intermediates) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	return v.checker.CheckRevocation(ctx, cert, intermediates[0])
}
