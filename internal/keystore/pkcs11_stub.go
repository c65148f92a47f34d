//go:build !pkcs11

package keystore

// LoadPKCS11 returns ErrPKCS11NotSupported; build with -tags pkcs11 to
// enable token support.
func LoadPKCS11(cfg PKCS11Config) (*Bundle, error) {
	return nil, ErrPKCS11NotSupported
}
