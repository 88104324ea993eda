// Package gpg provides the OpenPGP capability consumed by the
// authentication protocol: message syntax validation, signature
// verification, decryption and encrypt-and-sign, over a process-wide
// keyring of imported keys.
package gpg

import "errors"

var (
	ErrKeyNotFound   = errors.New("key not found in keyring")
	ErrNoPrivateKey  = errors.New("key has no private part")
	ErrNoDecryptKey  = errors.New("no decrypt key set")
	ErrNoVerifyKey   = errors.New("no verify key set")
	ErrNoEncryptKey  = errors.New("no encrypt key set")
	ErrNotSigned     = errors.New("message is not signed")
	ErrUnknownSigner = errors.New("message signed by a different key")
)

// Backend is a per-request handle over the OpenPGP engine. A handle holds
// the keys selected for one exchange; selecting keys does not affect other
// handles.
type Backend interface {
	// SetDecryptKey selects and unlocks the private key used for
	// decryption and response signing.
	SetDecryptKey(fingerprint, passphrase string) error

	// SetVerifyKey selects the public key inbound signatures are checked
	// against.
	SetVerifyKey(fingerprint string) error

	// SetEncryptKey selects the public key responses are encrypted to.
	SetEncryptKey(fingerprint string) error

	// ImportKey adds an armored key to the keyring and returns its
	// fingerprint.
	ImportKey(armoredKey string) (string, error)

	// ImportServerKey loads the configured server key file into the
	// keyring.
	ImportServerKey() error

	// IsValidMessage reports whether s is syntactically an armored
	// OpenPGP message. It performs no cryptography.
	IsValidMessage(s string) bool

	// VerifySignature checks that the armored message carries a valid
	// signature from the verify key.
	VerifySignature(armored string) error

	// Decrypt returns the message plaintext decrypted with the decrypt
	// key.
	Decrypt(armored string) (string, error)

	// EncryptSign encrypts cleartext to the encrypt key, signed by the
	// decrypt key, and returns the armored result.
	EncryptSign(cleartext string) (string, error)
}

// BackendFactory returns a fresh Backend handle for one request.
type BackendFactory func() (Backend, error)
