package mocks

import (
	"github.com/stretchr/testify/mock"
)

// GPGBackend is a mock implementation of gpg.Backend.
type GPGBackend struct {
	mock.Mock
}

func NewGPGBackend() *GPGBackend {
	return &GPGBackend{}
}

func (m *GPGBackend) SetDecryptKey(fingerprint, passphrase string) error {
	args := m.Called(fingerprint, passphrase)
	return args.Error(0)
}

func (m *GPGBackend) SetVerifyKey(fingerprint string) error {
	args := m.Called(fingerprint)
	return args.Error(0)
}

func (m *GPGBackend) SetEncryptKey(fingerprint string) error {
	args := m.Called(fingerprint)
	return args.Error(0)
}

func (m *GPGBackend) ImportKey(armoredKey string) (string, error) {
	args := m.Called(armoredKey)
	return args.String(0), args.Error(1)
}

func (m *GPGBackend) ImportServerKey() error {
	args := m.Called()
	return args.Error(0)
}

func (m *GPGBackend) IsValidMessage(s string) bool {
	args := m.Called(s)
	return args.Bool(0)
}

func (m *GPGBackend) VerifySignature(armored string) error {
	args := m.Called(armored)
	return args.Error(0)
}

func (m *GPGBackend) Decrypt(armored string) (string, error) {
	args := m.Called(armored)
	return args.String(0), args.Error(1)
}

func (m *GPGBackend) EncryptSign(cleartext string) (string, error) {
	args := m.Called(cleartext)
	return args.String(0), args.Error(1)
}
