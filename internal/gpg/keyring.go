package gpg

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

const messageType = "PGP MESSAGE"

// Keyring is an in-memory OpenPGP key store shared by all request handles.
// Keys are added via Import and looked up by fingerprint. Safe for
// concurrent use.
type Keyring struct {
	mu            sync.RWMutex
	entities      map[string]*openpgp.Entity
	serverKeyFile string
}

// NewKeyring creates an empty keyring. serverKeyFile is the armored server
// private key loaded by ImportServerKey.
func NewKeyring(serverKeyFile string) *Keyring {
	return &Keyring{
		entities:      make(map[string]*openpgp.Entity),
		serverKeyFile: serverKeyFile,
	}
}

// Factory returns a BackendFactory producing request handles over this
// keyring.
func (k *Keyring) Factory() BackendFactory {
	return func() (Backend, error) {
		return k.Session(), nil
	}
}

// Session returns a fresh request handle with no keys selected.
func (k *Keyring) Session() *Session {
	return &Session{keyring: k}
}

// Import parses an armored key (public or private) and stores its entities
// keyed by fingerprint. It returns the fingerprint of the first entity.
func (k *Keyring) Import(armoredKey string) (string, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return "", fmt.Errorf("failed to read armored key: %w", err)
	}
	if len(entities) == 0 {
		return "", fmt.Errorf("armored key contains no keys")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range entities {
		k.entities[entityFingerprint(e)] = e
	}

	return entityFingerprint(entities[0]), nil
}

// ImportServerKey reads the configured server key file and imports it.
func (k *Keyring) ImportServerKey() error {
	raw, err := os.ReadFile(k.serverKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read server key file: %w", err)
	}
	if _, err := k.Import(string(raw)); err != nil {
		return fmt.Errorf("failed to import server key: %w", err)
	}
	return nil
}

func (k *Keyring) lookup(fingerprint string) (*openpgp.Entity, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entities[NormalizeFingerprint(fingerprint)]
	return e, ok
}

// unlock decrypts the private key material of the entity in place. Entities
// are shared between handles, so this runs under the keyring write lock.
func (k *Keyring) unlock(e *openpgp.Entity, passphrase []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if e.PrivateKey == nil {
		return ErrNoPrivateKey
	}
	if e.PrivateKey.Encrypted {
		if err := e.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("failed to unlock private key: %w", err)
		}
	}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("failed to unlock subkey: %w", err)
			}
		}
	}
	return nil
}

// NormalizeFingerprint upper-cases a fingerprint and strips an optional 0x
// prefix.
func NormalizeFingerprint(fingerprint string) string {
	return strings.ToUpper(strings.TrimPrefix(fingerprint, "0x"))
}

func entityFingerprint(e *openpgp.Entity) string {
	return fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
}

// Session implements Backend over a shared Keyring. A session holds the
// keys selected for one request and is not safe for concurrent use.
type Session struct {
	keyring *Keyring
	decrypt *openpgp.Entity
	verify  *openpgp.Entity
	encrypt *openpgp.Entity
}

var _ Backend = (*Session)(nil)

func (s *Session) SetDecryptKey(fingerprint, passphrase string) error {
	e, ok := s.keyring.lookup(fingerprint)
	if !ok {
		return ErrKeyNotFound
	}
	if err := s.keyring.unlock(e, []byte(passphrase)); err != nil {
		return err
	}
	s.decrypt = e
	return nil
}

func (s *Session) SetVerifyKey(fingerprint string) error {
	e, ok := s.keyring.lookup(fingerprint)
	if !ok {
		return ErrKeyNotFound
	}
	s.verify = e
	return nil
}

func (s *Session) SetEncryptKey(fingerprint string) error {
	e, ok := s.keyring.lookup(fingerprint)
	if !ok {
		return ErrKeyNotFound
	}
	s.encrypt = e
	return nil
}

func (s *Session) ImportKey(armoredKey string) (string, error) {
	return s.keyring.Import(armoredKey)
}

func (s *Session) ImportServerKey() error {
	return s.keyring.ImportServerKey()
}

func (s *Session) IsValidMessage(msg string) bool {
	block, err := armor.Decode(strings.NewReader(msg))
	if err != nil {
		return false
	}
	return block.Type == messageType
}

func (s *Session) VerifySignature(armored string) error {
	if s.decrypt == nil {
		return ErrNoDecryptKey
	}
	if s.verify == nil {
		return ErrNoVerifyKey
	}

	md, _, err := s.readMessage(armored)
	if err != nil {
		return err
	}
	if !md.IsSigned {
		return ErrNotSigned
	}
	if !entityHasKeyID(s.verify, md.SignedByKeyId) {
		return ErrUnknownSigner
	}
	if md.SignatureError != nil {
		return fmt.Errorf("signature verification failed: %w", md.SignatureError)
	}
	return nil
}

func (s *Session) Decrypt(armored string) (string, error) {
	if s.decrypt == nil {
		return "", ErrNoDecryptKey
	}

	_, body, err := s.readMessage(armored)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *Session) EncryptSign(cleartext string) (string, error) {
	if s.encrypt == nil {
		return "", ErrNoEncryptKey
	}
	if s.decrypt == nil {
		return "", ErrNoDecryptKey
	}

	var buf bytes.Buffer
	armorer, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create armorer: %w", err)
	}

	plaintext, err := openpgp.Encrypt(armorer, []*openpgp.Entity{s.encrypt}, s.decrypt, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	if _, err := io.WriteString(plaintext, cleartext); err != nil {
		return "", fmt.Errorf("failed to write plaintext: %w", err)
	}
	if err := plaintext.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize message: %w", err)
	}
	if err := armorer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize armor: %w", err)
	}

	return buf.String(), nil
}

// readMessage opens the armored message with the session keys and drains
// the body. Signature state on the returned details is only final after
// the body has been read.
func (s *Session) readMessage(armored string) (*openpgp.MessageDetails, []byte, error) {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode armor: %w", err)
	}
	if block.Type != messageType {
		return nil, nil, fmt.Errorf("unexpected armor type %q", block.Type)
	}

	ring := openpgp.EntityList{s.decrypt}
	if s.verify != nil {
		ring = append(ring, s.verify)
	}

	md, err := openpgp.ReadMessage(block.Body, ring, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message: %w", err)
	}
	body, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message body: %w", err)
	}
	return md, body, nil
}

func entityHasKeyID(e *openpgp.Entity, id uint64) bool {
	if e.PrimaryKey != nil && e.PrimaryKey.KeyId == id {
		return true
	}
	for _, sub := range e.Subkeys {
		if sub.PublicKey != nil && sub.PublicKey.KeyId == id {
			return true
		}
	}
	return false
}
