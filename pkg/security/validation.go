package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPublicKey is returned when a public key is invalid
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrWeakKey is returned when a key is cryptographically weak
	ErrWeakKey = errors.New("weak key detected")
)

// MinRSAKeyBits is the smallest modulus accepted for signing keys
const MinRSAKeyBits = 2048

// ValidateRSAPublicKey rejects keys below MinRSAKeyBits and unusual
// public exponents
func ValidateRSAPublicKey(pub *rsa.PublicKey) error {
	if pub == nil || pub.N == nil {
		return fmt.Errorf("%w: nil RSA key", ErrInvalidPublicKey)
	}
	if bits := pub.N.BitLen(); bits < MinRSAKeyBits {
		return fmt.Errorf("%w: RSA modulus of %d bits, at least %d required", ErrWeakKey, bits, MinRSAKeyBits)
	}
	if pub.E < 3 || pub.E%2 == 0 {
		return fmt.Errorf("%w: RSA public exponent %d", ErrInvalidPublicKey, pub.E)
	}
	return nil
}
