// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the enveloped XML signature SIFEN requires on
every electronic document, plus the certificate checks applied to the
signing credential.

# Signing

A Signer wraps an RSA credential. The private key is any crypto.Signer, so
software keys and HSM-backed keys work the same way:

	signer, err := security.NewSigner(security.Credential{
	    Key:         privateKey,
	    Certificate: cert,
	})
	rde, err := signer.SignDocument(doc)

The Signature element is appended to rDE and references the DE element by
its Id (the CDC). Signature features:
  - RSA-SHA256 signature method
  - SHA-256 digest
  - Enveloped signature transform followed by Exclusive XML Canonicalization
  - X509Certificate in KeyInfo

Signing a node that already carries a Signature fails with ErrAlreadySigned
and leaves the node untouched. Missing, mismatched, weak or expired
credentials fail with ErrSigningCredential.

# Certificate Validation

By default only the validity period is checked at construction and again on
every signature. ChainValidator adds chain building against a root pool and
RevocationAwareValidator adds OCSP with CRL fallback:

	validator := security.NewRevocationAwareValidator(
	    security.NewChainValidator(roots),
	    security.NewOCSPRevocationChecker(nil),
	)
	signer, err := security.NewSigner(cred, security.WithValidator(validator))

# References

  - XML Signature: https://www.w3.org/TR/xmldsig-core1/
  - Exclusive XML Canonicalization: https://www.w3.org/TR/xml-exc-c14n/
  - SIFEN Manual Técnico v150, section on digital signature
*/
package security
