package keystore

import (
	"fmt"
	"strings"
)

// Credential formats
const (
	FormatPKCS12 = "pkcs12"
	FormatPEM    = "pem"
	FormatPKCS11 = "pkcs11"
)

// Source describes where a credential is read from
type Source struct {
	// Format is one of "pkcs12", "pem" or "pkcs11"
	Format string

	// Path is the PKCS#12 file or the PEM certificate file
	Path string
	// KeyPath is the PEM private key file
	KeyPath string
	// Password unlocks the PKCS#12 file
	Password string

	PKCS11 PKCS11Config
}

// PKCS11Config holds configuration for token-backed credentials
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabel labels both the key pair and its certificate on the token
	KeyLabel string
}

// Load reads the credential described by src
func Load(src Source) (*Bundle, error) {
	switch strings.ToLower(src.Format) {
	case FormatPKCS12, "p12", "pfx":
		return LoadPKCS12(src.Path, src.Password)
	case FormatPEM:
		return LoadPEM(src.Path, src.KeyPath)
	case FormatPKCS11:
		return LoadPKCS11(src.PKCS11)
	default:
		return nil, fmt.Errorf("%w: unknown credential format %q", ErrInvalidCredential, src.Format)
	}
}
