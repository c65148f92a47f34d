package security

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirosfoundation/go-trust/pkg/authzen"
	"github.com/sirosfoundation/go-trust/pkg/authzenclient"
)

// DefaultTrustTimeout bounds a single PDP evaluation
const DefaultTrustTimeout = 30 * time.Second

// AuthZENTrustValidator asks an AuthZEN policy decision point whether the
// signing certificate is bound to the taxpayer it names. The PDP fronts
// whatever trust registries the operator runs (national CA lists, ledgers).
type AuthZENTrustValidator struct {
	client        *authzenclient.Client
	defaultAction string
	timeout       time.Duration
}

// NewAuthZENTrustValidator creates a validator for the PDP at pdpEndpoint,
// either the base URL or the full /evaluation URL
func NewAuthZENTrustValidator(pdpEndpoint string, opts ...authzenclient.Option) *AuthZENTrustValidator {
	return NewAuthZENTrustValidatorWithClient(authzenclient.New(pdpEndpoint, opts...))
}

// NewAuthZENTrustValidatorWithClient wraps a pre-configured client
func NewAuthZENTrustValidatorWithClient(client *authzenclient.Client) *AuthZENTrustValidator {
	return &AuthZENTrustValidator{
		client:        client,
		defaultAction: PurposeSigning,
		timeout:       DefaultTrustTimeout,
	}
}

// WithDefaultAction sets the action sent when the caller gives no purpose
func (v *AuthZENTrustValidator) WithDefaultAction(action string) *AuthZENTrustValidator {
	v.defaultAction = action
	return v
}

// WithTimeout sets the evaluation deadline
func (v *AuthZENTrustValidator) WithTimeout(d time.Duration) *AuthZENTrustValidator {
	v.timeout = d
	return v
}

// ValidateCertificate implements CertificateValidator. The certificate and
// chain travel as an x5c array (RFC 7517 section 4.7).
func (v *AuthZENTrustValidator) ValidateCertificate(cert *x509.Certificate, chain []*x509.Certificate, purpose string) error {
	if cert == nil {
		return fmt.Errorf("%w: nil certificate", ErrInvalidCertificate)
	}

	x5c := make([]interface{}, 0, 1+len(chain))
	x5c = append(x5c, base64.StdEncoding.EncodeToString(cert.Raw))
	for _, intermediate := range chain {
		x5c = append(x5c, base64.StdEncoding.EncodeToString(intermediate.Raw))
	}

	name := subjectName(cert)
	if name == "" {
		return fmt.Errorf("%w: certificate has no identifiable subject name", ErrInvalidCertificate)
	}

	action := purpose
	if action == "" {
		action = v.defaultAction
	}

	request := &authzen.EvaluationRequest{
		Subject:  authzen.Subject{Type: "key", ID: name},
		Resource: authzen.Resource{Type: "x5c", ID: name, Key: x5c},
	}
	if action != "" {
		request.Action = &authzen.Action{Name: action}
	}
	if ruc := taxpayerID(cert); ruc != "" {
		request.Context = map[string]interface{}{"ruc": ruc}
	}

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	response, err := v.client.Evaluate(ctx, request)
	if err != nil {
		return fmt.Errorf("%w: trust evaluation failed: %v", ErrInvalidCertificate, err)
	}
	if !response.Decision {
		if response.Context != nil && len(response.Context.Reason) > 0 {
			return fmt.Errorf("%w: %v", ErrCertificateUntrusted, response.Context.Reason)
		}
		return ErrCertificateUntrusted
	}
	return nil
}

// subjectName picks the name the PDP binds the key to: the common name,
// else the subject serial number, else the first email or URI SAN
func subjectName(cert *x509.Certificate) string {
	switch {
	case cert.Subject.CommonName != "":
		return cert.Subject.CommonName
	case cert.Subject.SerialNumber != "":
		return cert.Subject.SerialNumber
	case len(cert.EmailAddresses) > 0:
		return cert.EmailAddresses[0]
	case len(cert.URIs) > 0:
		return cert.URIs[0].String()
	}
	return ""
}

// taxpayerID extracts the RUC SIFEN signing certificates carry in the
// subject serialNumber, e.g. "RUC80089752-8"
func taxpayerID(cert *x509.Certificate) string {
	serial := cert.Subject.SerialNumber
	if !strings.HasPrefix(serial, "RUC") {
		return ""
	}
	return strings.TrimPrefix(serial, "RUC")
}
