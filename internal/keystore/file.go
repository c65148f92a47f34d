package keystore

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// LoadPKCS12 reads a PKCS#12 file protected by password
func LoadPKCS12(path, password string) (*Bundle, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePKCS12(data, password)
}

// ParsePKCS12 decodes PKCS#12 data. All certificates in the container are
// kept; the one matching the key becomes the leaf.
func ParsePKCS12(data []byte, password string) (*Bundle, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding PKCS#12: %v", ErrInvalidCredential, err)
	}

	var key crypto.Signer
	var certs []*x509.Certificate
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY":
			if key != nil {
				return nil, fmt.Errorf("%w: more than one private key", ErrInvalidCredential)
			}
			key, err = parseKeyBlock(block)
			if err != nil {
				return nil, err
			}
		}
	}
	return newBundle(key, certs)
}

// LoadPEM reads a certificate file, which may hold the chain after the
// leaf, and a private key file
func LoadPEM(certPath, keyPath string) (*Bundle, error) {
	certPEM, err := readFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := readFile(keyPath)
	if err != nil {
		return nil, err
	}

	certs, err := parseCertificates(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	return newBundle(key, certs)
}

// LoadRoots reads PEM CA certificates into a pool
func LoadRoots(paths ...string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, path := range paths {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		certs, err := parseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, c := range certs {
			pool.AddCert(c)
		}
	}
	return pool, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidCredential)
	}
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy encrypted PEM is still handed out
		return nil, fmt.Errorf("%w: encrypted PEM keys are not supported", ErrInvalidCredential)
	}
	return parseKeyBlock(block)
}

// parseKeyBlock accepts PKCS#1, SEC 1 and PKCS#8 bytes. PKCS#12 decoding
// labels PKCS#1 and SEC 1 keys as "PRIVATE KEY" too.
func parseKeyBlock(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: key is not a signer", ErrInvalidCredential)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type: %s", ErrInvalidCredential, block.Type)
	}
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificate found", ErrInvalidCredential)
	}
	return certs, nil
}
