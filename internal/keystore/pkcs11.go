//go:build pkcs11

package keystore

import (
	"crypto/x509"
	"fmt"

	"github.com/ThalesGroup/crypto11"
)

// LoadPKCS11 opens a token session and returns the key pair and certificate
// stored under cfg.KeyLabel. The session stays open until the bundle is
// closed.
func LoadPKCS11(cfg PKCS11Config) (*Bundle, error) {
	if cfg.ModulePath == "" {
		return nil, fmt.Errorf("%w: PKCS#11 module path is required", ErrInvalidCredential)
	}
	if cfg.PIN == "" {
		return nil, ErrPINRequired
	}

	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}
	if cfg.SlotID != nil {
		slot := int(*cfg.SlotID)
		config.SlotNumber = &slot
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	bundle, err := loadTokenBundle(ctx, cfg.KeyLabel)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	bundle.closer = ctx.Close
	return bundle, nil
}

func loadTokenBundle(ctx *crypto11.Context, label string) (*Bundle, error) {
	key, err := ctx.FindKeyPair(nil, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: key pair %q", ErrKeyNotFound, label)
	}

	cert, err := ctx.FindCertificate(nil, []byte(label), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: certificate %q", ErrKeyNotFound, label)
	}

	return newBundle(key, []*x509.Certificate{cert})
}
