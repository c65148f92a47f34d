// Package config handles configuration loading for SIFEN clients.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows the credential
// password, the HSM PIN and the CSC secret to be injected at runtime.
//
// # Configuration Sections
//
//   - environment: "test" or "prod", selects the base URL
//   - urls: base URL per environment
//   - paths: per-operation path suffixes
//   - http: connect/read timeouts and user agent
//   - credential: PKCS#12, PEM or PKCS#11 signing credential and how its
//     certificate is validated (chain, OCSP, AuthZEN trust)
//   - tls: client certificate usage and extra trust roots
//   - lot: maximum documents per lot
//   - qr: CSC id and secret for the QR field
//   - log, metrics: observability settings
//
// # Example Configuration
//
//	environment: test
//	credential:
//	  format: pkcs12
//	  path: /etc/sifen/80089752.p12
//	  password: ${SIFEN_P12_PASSWORD}
//	  validation:
//	    chain: true
//	    roots: [/etc/sifen/ca-py.pem]
//	    ocsp: true
//	qr:
//	  cscId: "0001"
//	  csc: ${SIFEN_CSC}
//
// See [Load] for loading configuration from a file.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sirosfoundation/go-trust/pkg/authzenclient"
	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-sifen/internal/keystore"
	"github.com/sirosfoundation/go-sifen/pkg/assembler"
	"github.com/sirosfoundation/go-sifen/pkg/security"
	"github.com/sirosfoundation/go-sifen/pkg/sifen"
	"github.com/sirosfoundation/go-sifen/pkg/transport"
)

// Environments
const (
	EnvironmentTest       = "test"
	EnvironmentProduction = "prod"
)

// Config is the root configuration structure
type Config struct {
	Environment string           `yaml:"environment"`
	URLs        URLConfig        `yaml:"urls"`
	Paths       sifen.Paths      `yaml:"paths"`
	HTTP        HTTPConfig       `yaml:"http"`
	Credential  CredentialConfig `yaml:"credential"`
	TLS         TLSConfig        `yaml:"tls"`
	Lot         LotConfig        `yaml:"lot"`
	QR          QRConfig         `yaml:"qr"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

// URLConfig holds the base URL of each environment
type URLConfig struct {
	Test       string `yaml:"test"`
	Production string `yaml:"prod"`
}

// HTTPConfig holds exchange settings
type HTTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	UserAgent      string        `yaml:"userAgent"`
}

// CredentialConfig holds the signing credential settings
type CredentialConfig struct {
	// Format is one of:
	// - "pkcs12": a .p12/.pfx file as issued by the certificate provider
	// - "pem": certificate and key files
	// - "pkcs11": key and certificate on a token (needs -tags pkcs11)
	Format string `yaml:"format"`

	// Path is the PKCS#12 file or the PEM certificate file
	Path string `yaml:"path"`
	// KeyPath is the PEM private key file
	KeyPath string `yaml:"keyPath"`
	// Password for the PKCS#12 file (can be env var reference like ${P12_PASSWORD})
	Password string `yaml:"password"`

	PKCS11 PKCS11Config `yaml:"pkcs11"`

	Validation ValidationConfig `yaml:"validation"`
}

// ValidationConfig selects how the signing certificate is checked before
// use. With nothing set only the validity period is checked.
type ValidationConfig struct {
	// Chain verifies the certificate up to Roots (system pool when empty)
	Chain bool     `yaml:"chain"`
	Roots []string `yaml:"roots"`
	// AuthZEN is the URL of a trust decision point; exclusive with Chain
	AuthZEN string `yaml:"authzen"`
	// OCSP adds a revocation check against the issuer, falling back to CRLs
	OCSP bool `yaml:"ocsp"`
	// Strict fails when the revocation status cannot be determined
	Strict bool `yaml:"strict"`
}

// PKCS11Config holds PKCS#11 HSM settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    *uint  `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN      string `yaml:"pin"`
	KeyLabel string `yaml:"keyLabel"`
}

// TLSConfig holds client TLS settings
type TLSConfig struct {
	// ClientCertificate presents the signing credential during the handshake
	ClientCertificate bool `yaml:"clientCertificate"`
	// RootCAs lists extra PEM files trusted in place of the system pool
	RootCAs []string `yaml:"rootCAs"`
}

// LotConfig holds lot assembly settings
type LotConfig struct {
	MaxDocuments int `yaml:"maxDocuments"`
}

// QRConfig holds the security code used for the QR field. QR generation is
// off when CSC is empty.
type QRConfig struct {
	CSCID   string `yaml:"cscId"`
	CSC     string `yaml:"csc"`
	BaseURL string `yaml:"baseUrl"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration after environment expansion
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvironmentTest
	}
	if c.URLs.Test == "" {
		c.URLs.Test = sifen.BaseURLTest
	}
	if c.URLs.Production == "" {
		c.URLs.Production = sifen.BaseURLProduction
	}
	c.Paths = c.Paths.WithDefaults()

	defaults := transport.DefaultConfig()
	if c.HTTP.ConnectTimeout == 0 {
		c.HTTP.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = defaults.ReadTimeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaults.UserAgent
	}
	if c.Credential.Format == "" {
		c.Credential.Format = keystore.FormatPKCS12
	}
	if c.Lot.MaxDocuments == 0 {
		c.Lot.MaxDocuments = assembler.MaxLotDocuments
	}
	if c.QR.BaseURL == "" {
		if c.Environment == EnvironmentProduction {
			c.QR.BaseURL = assembler.QRBaseURLProduction
		} else {
			c.QR.BaseURL = assembler.QRBaseURLTest
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	switch c.Environment {
	case EnvironmentTest, EnvironmentProduction:
	default:
		return fmt.Errorf("environment must be 'test' or 'prod', got '%s'", c.Environment)
	}

	if _, err := transport.Resolve(c.BaseURL()); err != nil {
		return fmt.Errorf("urls.%s: %w", c.Environment, err)
	}

	if c.HTTP.ConnectTimeout < 0 || c.HTTP.ReadTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}

	switch c.Credential.Format {
	case keystore.FormatPKCS12:
		if c.Credential.Path == "" {
			return fmt.Errorf("credential.path is required when format is 'pkcs12'")
		}
	case keystore.FormatPEM:
		if c.Credential.Path == "" || c.Credential.KeyPath == "" {
			return fmt.Errorf("credential.path and credential.keyPath are required when format is 'pem'")
		}
	case keystore.FormatPKCS11:
		if c.Credential.PKCS11.ModulePath == "" {
			return fmt.Errorf("credential.pkcs11.modulePath is required when format is 'pkcs11'")
		}
		if c.Credential.PKCS11.KeyLabel == "" {
			return fmt.Errorf("credential.pkcs11.keyLabel is required when format is 'pkcs11'")
		}
	default:
		return fmt.Errorf("credential.format must be 'pkcs12', 'pem', or 'pkcs11', got '%s'", c.Credential.Format)
	}

	if err := c.Credential.Validation.validate(); err != nil {
		return fmt.Errorf("credential.validation: %w", err)
	}

	if c.Lot.MaxDocuments < 1 || c.Lot.MaxDocuments > assembler.MaxLotDocuments {
		return fmt.Errorf("lot.maxDocuments must be between 1 and %d", assembler.MaxLotDocuments)
	}
	if c.QR.CSC != "" && c.QR.CSCID == "" {
		return fmt.Errorf("qr.cscId is required when qr.csc is set")
	}
	if _, err := sifen.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func (v ValidationConfig) validate() error {
	if v.Chain && v.AuthZEN != "" {
		return fmt.Errorf("chain and authzen are mutually exclusive")
	}
	if len(v.Roots) > 0 && !v.Chain {
		return fmt.Errorf("roots require chain")
	}
	if v.Strict && !v.OCSP {
		return fmt.Errorf("strict requires ocsp")
	}
	if v.AuthZEN != "" {
		if _, err := authzenclient.ParseBaseURL(v.AuthZEN); err != nil {
			return fmt.Errorf("authzen: %w", err)
		}
	}
	return nil
}

// BaseURL returns the base URL of the configured environment
func (c *Config) BaseURL() string {
	if c.Environment == EnvironmentProduction {
		return c.URLs.Production
	}
	return c.URLs.Test
}

// Source returns the keystore source for the credential section
func (c *Config) Source() keystore.Source {
	p := c.Credential.PKCS11
	return keystore.Source{
		Format:   c.Credential.Format,
		Path:     c.Credential.Path,
		KeyPath:  c.Credential.KeyPath,
		Password: c.Credential.Password,
		PKCS11: keystore.PKCS11Config{
			ModulePath: p.ModulePath,
			SlotID:     p.SlotID,
			SlotLabel:  p.SlotLabel,
			PIN:        p.PIN,
			KeyLabel:   p.KeyLabel,
		},
	}
}

// Validator builds the certificate validator for the signer. It returns nil
// when no validation is configured, leaving the signer's validity check.
func (c *Config) Validator() (security.CertificateValidator, error) {
	v := c.Credential.Validation

	var base security.CertificateValidator
	switch {
	case v.Chain:
		var roots *x509.CertPool
		if len(v.Roots) > 0 {
			var err error
			if roots, err = keystore.LoadRoots(v.Roots...); err != nil {
				return nil, fmt.Errorf("credential.validation.roots: %w", err)
			}
		}
		base = security.NewChainValidator(roots)
	case v.AuthZEN != "":
		base = security.NewAuthZENTrustValidator(v.AuthZEN, authzenclient.WithTimeout(c.HTTP.ReadTimeout))
	}

	if !v.OCSP {
		return base, nil
	}
	if base == nil {
		base = &security.ValidityPeriodValidator{}
	}
	ocspConfig := security.DefaultOCSPConfig()
	ocspConfig.Strict = v.Strict
	return security.NewRevocationAwareValidator(base, security.NewOCSPRevocationChecker(ocspConfig)), nil
}

// ClientTLS builds the client TLS context for a loaded credential
func (c *Config) ClientTLS(bundle *keystore.Bundle) (*tls.Config, error) {
	if !c.TLS.ClientCertificate {
		bundle = nil
	}
	if len(c.TLS.RootCAs) == 0 {
		return keystore.TLSConfig(bundle, nil), nil
	}
	roots, err := keystore.LoadRoots(c.TLS.RootCAs...)
	if err != nil {
		return nil, fmt.Errorf("tls.rootCAs: %w", err)
	}
	return keystore.TLSConfig(bundle, roots), nil
}

// ClientConfig converts the configuration into a sifen.Config. The signer
// may be nil for lookup-only clients.
func (c *Config) ClientConfig(signer *security.Signer, tlsConfig *tls.Config, observer sifen.Observer, logger *slog.Logger) sifen.Config {
	cfg := sifen.Config{
		BaseURL: c.BaseURL(),
		Paths:   c.Paths,
		Transport: &transport.Config{
			TLS:            tlsConfig,
			ConnectTimeout: c.HTTP.ConnectTimeout,
			ReadTimeout:    c.HTTP.ReadTimeout,
			UserAgent:      c.HTTP.UserAgent,
		},
		Signer:          signer,
		MaxLotDocuments: c.Lot.MaxDocuments,
		Observer:        observer,
		Logger:          logger,
	}
	if c.QR.CSC != "" {
		cfg.QR = &assembler.QR{CSCID: c.QR.CSCID, CSC: c.QR.CSC, BaseURL: c.QR.BaseURL}
	}
	return cfg
}
