// Package keys loads and holds the server's long-lived key material: the
// OpenPGP server key configuration and the RSA pair used to sign and
// verify access tokens. Material is loaded once at startup and read-only
// afterwards.
package keys

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyward/keyward-server/internal/model"
)

// Material is the process-wide key material. Safe for concurrent reads.
type Material struct {
	serverKeyFingerprint string
	serverKeyPassphrase  string
	signingKey           *rsa.PrivateKey
	verifyKey            *rsa.PublicKey
}

// Config selects the key files and the server OpenPGP key.
type Config struct {
	ServerKeyFingerprint string
	ServerKeyPassphrase  string
	JWTPrivateKeyFile    string
	JWTPublicKeyFile     string
}

// Load reads the RSA pair from PEM files and captures the server OpenPGP
// key configuration.
func Load(cfg Config) (*Material, error) {
	privPEM, err := os.ReadFile(cfg.JWTPrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key file: %w", err)
	}
	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	pubPEM, err := os.ReadFile(cfg.JWTPublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification key file: %w", err)
	}
	verifyKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse verification key: %w", err)
	}

	return &Material{
		serverKeyFingerprint: cfg.ServerKeyFingerprint,
		serverKeyPassphrase:  cfg.ServerKeyPassphrase,
		signingKey:           signingKey,
		verifyKey:            verifyKey,
	}, nil
}

// ServerKeyFingerprint returns the configured server OpenPGP key
// fingerprint.
func (m *Material) ServerKeyFingerprint() string {
	return m.serverKeyFingerprint
}

// ServerKeyPassphrase returns the configured server OpenPGP key passphrase.
func (m *Material) ServerKeyPassphrase() string {
	return m.serverKeyPassphrase
}

// SigningKey returns the private key for access token signing.
func (m *Material) SigningKey() *rsa.PrivateKey {
	return m.signingKey
}

// VerifyKey returns the public key relying parties verify access tokens
// against.
func (m *Material) VerifyKey() *rsa.PublicKey {
	return m.verifyKey
}

// Ready reports whether the material is complete enough to authenticate:
// a canonical server key fingerprint and an RSA pair that actually match
// each other.
func (m *Material) Ready() error {
	if !model.IsValidFingerprint(m.serverKeyFingerprint) {
		return fmt.Errorf("server key fingerprint is not configured or invalid")
	}
	if m.signingKey == nil || m.verifyKey == nil {
		return fmt.Errorf("access token key pair is not loaded")
	}
	if m.signingKey.PublicKey.N.Cmp(m.verifyKey.N) != 0 || m.signingKey.PublicKey.E != m.verifyKey.E {
		return fmt.Errorf("access token key pair mismatch")
	}
	return nil
}

// JWK is the published form of the verification key.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a key set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWK returns the verification key in key-set form.
func (m *Material) PublicJWK() JWK {
	return JWK{
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(m.verifyKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(m.verifyKey.E)).Bytes()),
	}
}

// PublicJWKS returns the key set containing the verification key.
func (m *Material) PublicJWKS() JWKS {
	return JWKS{Keys: []JWK{m.PublicJWK()}}
}
