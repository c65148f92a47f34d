package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirosfoundation/go-trust/pkg/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-sifen/internal/keystore"
	"github.com/sirosfoundation/go-sifen/pkg/assembler"
	"github.com/sirosfoundation/go-sifen/pkg/security"
	"github.com/sirosfoundation/go-sifen/pkg/sifen"
)

const minimal = `
credential:
  path: /etc/sifen/signer.p12
  password: ${SIFEN_TEST_PASSWORD}
`

func TestParse_Defaults(t *testing.T) {
	t.Setenv("SIFEN_TEST_PASSWORD", "secreto")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, EnvironmentTest, cfg.Environment)
	assert.Equal(t, sifen.BaseURLTest, cfg.BaseURL())
	assert.Equal(t, sifen.DefaultPaths(), cfg.Paths)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 45*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, keystore.FormatPKCS12, cfg.Credential.Format)
	assert.Equal(t, "secreto", cfg.Credential.Password)
	assert.Equal(t, assembler.MaxLotDocuments, cfg.Lot.MaxDocuments)
	assert.Equal(t, assembler.QRBaseURLTest, cfg.QR.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_Full(t *testing.T) {
	data := `
environment: prod
urls:
  prod: https://sifen.set.gov.py/
paths:
  ruc: /custom/consulta-ruc
http:
  connectTimeout: 5s
  readTimeout: 1m
  userAgent: facturador/2.0
credential:
  format: pem
  path: signer.crt
  keyPath: signer.key
tls:
  clientCertificate: true
lot:
  maxDocuments: 10
qr:
  cscId: "0001"
  csc: ABCD0000000000000000000000000000
log:
  level: debug
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "https://sifen.set.gov.py/", cfg.BaseURL())
	assert.Equal(t, "/custom/consulta-ruc", cfg.Paths.RUC)
	assert.Equal(t, sifen.DefaultPaths().Lot, cfg.Paths.Lot)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.HTTP.ReadTimeout)
	assert.Equal(t, assembler.QRBaseURLProduction, cfg.QR.BaseURL)

	cc := cfg.ClientConfig(nil, nil, nil, nil)
	assert.Equal(t, "https://sifen.set.gov.py/", cc.BaseURL)
	assert.Equal(t, "facturador/2.0", cc.Transport.UserAgent)
	assert.Equal(t, 10, cc.MaxLotDocuments)
	require.NotNil(t, cc.QR)
	assert.Equal(t, "0001", cc.QR.CSCID)

	client, err := sifen.NewClient(cc)
	require.NoError(t, err)
	assert.Equal(t, "https://sifen.set.gov.py/custom/consulta-ruc", client.URL(cfg.Paths.RUC))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"environment", "environment: staging\ncredential: {path: a.p12}"},
		{"base url", "urls: {test: 'ftp://example'}\ncredential: {path: a.p12}"},
		{"missing p12 path", "credential: {format: pkcs12}"},
		{"missing pem key", "credential: {format: pem, path: a.crt}"},
		{"missing pkcs11 module", "credential: {format: pkcs11, pkcs11: {keyLabel: firma}}"},
		{"unknown format", "credential: {format: jks, path: a.jks}"},
		{"lot size", "credential: {path: a.p12}\nlot: {maxDocuments: 51}"},
		{"csc without id", "credential: {path: a.p12}\nqr: {csc: secret}"},
		{"log level", "credential: {path: a.p12}\nlog: {level: loud}"},
		{"chain with authzen", "credential: {path: a.p12, validation: {chain: true, authzen: 'https://pdp.example'}}"},
		{"roots without chain", "credential: {path: a.p12, validation: {roots: [ca.crt]}}"},
		{"strict without ocsp", "credential: {path: a.p12, validation: {strict: true}}"},
		{"authzen url", "credential: {path: a.p12, validation: {authzen: 'pdp.example'}}"},
		{"yaml", "credential: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sifen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("credential:\n  path: a.p12\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a.p12", cfg.Source().Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientTLS(t *testing.T) {
	data := `
credential:
  path: ../keystore/testdata/signer.p12
  password: secreto
tls:
  clientCertificate: true
  rootCAs: [../keystore/testdata/ca.crt]
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	bundle, err := keystore.Load(cfg.Source())
	require.NoError(t, err)

	tlsConfig, err := cfg.ClientTLS(bundle)
	require.NoError(t, err)
	assert.Len(t, tlsConfig.Certificates, 1)
	assert.NotNil(t, tlsConfig.RootCAs)

	cfg.TLS.ClientCertificate = false
	cfg.TLS.RootCAs = []string{"missing.crt"}
	_, err = cfg.ClientTLS(bundle)
	assert.Error(t, err)

	cfg.TLS.RootCAs = nil
	tlsConfig, err = cfg.ClientTLS(bundle)
	require.NoError(t, err)
	assert.Empty(t, tlsConfig.Certificates)
	assert.Nil(t, tlsConfig.RootCAs)
}

func TestValidator(t *testing.T) {
	const credential = `
credential:
  path: ../keystore/testdata/signer.p12
  password: secreto
  validation:
%s
`
	accept := testserver.New(testserver.WithAcceptAll())
	defer accept.Close()
	reject := testserver.New(testserver.WithRejectAll())
	defer reject.Close()

	tests := []struct {
		name       string
		validation string
		wantNil    bool
		wantErr    error
	}{
		{name: "none", validation: "    {}", wantNil: true},
		{name: "chain", validation: "    chain: true\n    roots: [../keystore/testdata/ca.crt]"},
		{name: "chain wrong roots", validation: "    chain: true\n    roots: [../../pkg/security/testdata/signer.crt]", wantErr: security.ErrCertificateUntrusted},
		{name: "chain with lenient ocsp", validation: "    chain: true\n    roots: [../keystore/testdata/ca.crt]\n    ocsp: true"},
		{name: "strict ocsp without responder", validation: "    chain: true\n    roots: [../keystore/testdata/ca.crt]\n    ocsp: true\n    strict: true", wantErr: security.ErrSigningCredential},
		{name: "ocsp only", validation: "    ocsp: true"},
		{name: "authzen trusted", validation: "    authzen: " + accept.URL()},
		{name: "authzen untrusted", validation: "    authzen: " + reject.URL(), wantErr: security.ErrCertificateUntrusted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(fmt.Sprintf(credential, tt.validation)))
			require.NoError(t, err)

			validator, err := cfg.Validator()
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, validator)
			} else {
				assert.NotNil(t, validator)
			}

			bundle, err := keystore.Load(cfg.Source())
			require.NoError(t, err)

			_, err = security.NewSigner(bundle.Credential(), security.WithValidator(validator))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, security.ErrSigningCredential)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidator_MissingRoots(t *testing.T) {
	cfg, err := Parse([]byte(`
credential:
  path: a.p12
  validation:
    chain: true
    roots: [missing.crt]
`))
	require.NoError(t, err)

	_, err = cfg.Validator()
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}
