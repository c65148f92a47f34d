package security

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-sifen/pkg/document"
)

var (
	// ErrAlreadySigned is returned when the node already carries a Signature.
	// It matches document.ErrAlreadySigned with errors.Is.
	ErrAlreadySigned = document.ErrAlreadySigned
	// ErrSigningCredential is returned for missing, mismatched, expired or
	// otherwise unusable signing credentials
	ErrSigningCredential = errors.New("invalid signing credential")
	// ErrSignatureInvalid is returned by Verify when digest or signature
	// value do not match
	ErrSignatureInvalid = errors.New("signature verification failed")
)

// Credential is the key pair used to sign documents. Key may be backed by an
// HSM or any other crypto.Signer; it must hold an RSA key matching Certificate.
type Credential struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
	// Chain holds the issuing CA certificates, issuer first
	Chain []*x509.Certificate
}

// Signer produces SIFEN enveloped XML signatures (rsa-sha256, exclusive
// c14n). A Signer holds no mutable state and may be shared.
type Signer struct {
	cred      Credential
	validator CertificateValidator
	now       func() time.Time
	logger    *slog.Logger
}

// SignerOption configures a Signer
type SignerOption func(*Signer)

// WithValidator replaces the default expiry-only certificate check
func WithValidator(v CertificateValidator) SignerOption {
	return func(s *Signer) { s.validator = v }
}

// WithClock sets the time source used for credential validity checks
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SignerOption {
	return func(s *Signer) { s.logger = logger }
}

// NewSigner checks the credential and returns a Signer for it
func NewSigner(cred Credential, opts ...SignerOption) (*Signer, error) {
	s := &Signer{cred: cred, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.validator == nil {
		s.validator = &ValidityPeriodValidator{Now: s.now}
	}

	if cred.Key == nil {
		return nil, fmt.Errorf("%w: private key is required", ErrSigningCredential)
	}
	if cred.Certificate == nil {
		return nil, fmt.Errorf("%w: certificate is required", ErrSigningCredential)
	}
	rsaPub, ok := cred.Certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T, RSA required", ErrSigningCredential, cred.Certificate.PublicKey)
	}
	if err := ValidateRSAPublicKey(rsaPub); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningCredential, err)
	}
	pub, ok := cred.Key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cred.Certificate.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match certificate", ErrSigningCredential)
	}
	if err := s.checkCertificate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Certificate returns the signing certificate
func (s *Signer) Certificate() *x509.Certificate {
	return s.cred.Certificate
}

func (s *Signer) checkCertificate() error {
	if err := s.validator.ValidateCertificate(s.cred.Certificate, s.cred.Chain, PurposeSigning); err != nil {
		return fmt.Errorf("%w: %w", ErrSigningCredential, err)
	}
	return nil
}

// Sign adds an enveloped Signature to rDE. The Signature becomes the last
// child of rDE and references the DE element by its Id. A node that already
// holds a Signature is rejected with ErrAlreadySigned and left untouched.
func (s *Signer) Sign(rde *etree.Element) error {
	if rde == nil {
		return fmt.Errorf("%w: nil node", document.ErrInvalidDocumentFields)
	}
	if document.Find(rde, "Signature") != nil {
		return fmt.Errorf("%w: %s", ErrAlreadySigned, rde.Tag)
	}
	if err := s.checkCertificate(); err != nil {
		return err
	}

	de := rde.SelectElement("DE")
	if de == nil {
		return fmt.Errorf("%w: %s has no DE child", document.ErrInvalidDocumentFields, rde.Tag)
	}
	id := de.SelectAttrValue("Id", "")
	if id == "" {
		return fmt.Errorf("%w: DE has no Id", document.ErrInvalidDocumentFields)
	}

	sig, err := s.createSignature(de, id)
	if err != nil {
		return err
	}
	rde.AddChild(sig)

	s.logger.Debug("signed document",
		slog.String("id", id),
		slog.String("subject", s.cred.Certificate.Subject.CommonName))
	return nil
}

// SignDocument builds the document tree, signs it and seals the document.
// The signed rDE is returned and also retained by the document.
func (s *Signer) SignDocument(doc *document.Document) (*etree.Element, error) {
	if doc.State() == document.Signed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySigned, doc.ID())
	}
	rde := doc.Element(s.now())
	if err := s.Sign(rde); err != nil {
		return nil, err
	}
	if err := doc.Seal(rde); err != nil {
		return nil, err
	}
	return rde, nil
}

func (s *Signer) createSignature(de *etree.Element, id string) (*etree.Element, error) {
	digest, err := digestElement(de, document.Namespace)
	if err != nil {
		return nil, err
	}

	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", document.NamespaceDSig)

	signedInfo := sig.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmC14N)
	signedInfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)

	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", "#"+id)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmEnvelopedSignature)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmC14N)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	signedDigest, err := digestElement(signedInfo, document.NamespaceDSig)
	if err != nil {
		return nil, err
	}
	value, err := s.cred.Key.Sign(rand.Reader, signedDigest, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningCredential, err)
	}
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(value))

	x509Data := sig.CreateElement("KeyInfo").CreateElement("X509Data")
	x509Data.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(s.cred.Certificate.Raw))

	return sig, nil
}

// canonicalize renders a detached copy of el with exclusive c14n. The copy
// carries an explicit default namespace so the output does not depend on
// where el sits in its tree.
func canonicalize(el *etree.Element, ns string) (string, error) {
	c := el.Copy()
	if c.SelectAttr("xmlns") == nil {
		c.CreateAttr("xmlns", ns)
	}
	canonicalizer := signedxml.ExclusiveCanonicalization{WithComments: false}
	out, err := canonicalizer.ProcessElement(c, "")
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize %s: %w", el.Tag, err)
	}
	return out, nil
}

func digestElement(el *etree.Element, ns string) ([]byte, error) {
	canonical, err := canonicalize(el, ns)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(canonical))
	return sum[:], nil
}

// Verify checks the enveloped signature of a signed rDE against the
// certificate embedded in its KeyInfo and returns that certificate.
func Verify(rde *etree.Element) (*x509.Certificate, error) {
	sig := rde.SelectElement("Signature")
	if sig == nil {
		return nil, fmt.Errorf("%w: no Signature", ErrSignatureInvalid)
	}
	de := rde.SelectElement("DE")
	if de == nil {
		return nil, fmt.Errorf("%w: no DE", ErrSignatureInvalid)
	}
	signedInfo := sig.SelectElement("SignedInfo")
	if signedInfo == nil {
		return nil, fmt.Errorf("%w: no SignedInfo", ErrSignatureInvalid)
	}
	ref := signedInfo.SelectElement("Reference")
	if ref == nil || ref.SelectAttrValue("URI", "") != "#"+de.SelectAttrValue("Id", "") {
		return nil, fmt.Errorf("%w: reference does not point at DE", ErrSignatureInvalid)
	}

	want, err := base64.StdEncoding.DecodeString(document.Text(ref, "DigestValue"))
	if err != nil {
		return nil, fmt.Errorf("%w: digest value: %v", ErrSignatureInvalid, err)
	}
	got, err := digestElement(de, document.Namespace)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, got) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrSignatureInvalid)
	}

	certDER, err := base64.StdEncoding.DecodeString(document.Text(sig, "X509Certificate"))
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrSignatureInvalid, err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrSignatureInvalid, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T", ErrSignatureInvalid, cert.PublicKey)
	}

	value, err := base64.StdEncoding.DecodeString(document.Text(sig, "SignatureValue"))
	if err != nil {
		return nil, fmt.Errorf("%w: signature value: %v", ErrSignatureInvalid, err)
	}
	signedDigest, err := digestElement(signedInfo, document.NamespaceDSig)
	if err != nil {
		return nil, err
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedDigest, value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return cert, nil
}

// DigestValue returns the raw DigestValue text of a signed rDE, or "" when
// the node carries no signature
func DigestValue(rde *etree.Element) string {
	sig := rde.SelectElement("Signature")
	if sig == nil {
		return ""
	}
	return document.Text(sig, "DigestValue")
}
