package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"
)

// TestKeyPair is a freshly generated OpenPGP key for tests.
type TestKeyPair struct {
	Fingerprint    string
	ArmoredPrivate string
	ArmoredPublic  string
}

// GenerateKeyPair creates a fresh OpenPGP key pair with an unprotected
// private key.
func GenerateKeyPair(t *testing.T, name, email string) TestKeyPair {
	t.Helper()

	entity, err := openpgp.NewEntity(name, "", email, nil)
	require.NoError(t, err)

	var priv bytes.Buffer
	w, err := armor.Encode(&priv, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	var pub bytes.Buffer
	w, err = armor.Encode(&pub, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	return TestKeyPair{
		Fingerprint:    fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
		ArmoredPrivate: priv.String(),
		ArmoredPublic:  pub.String(),
	}
}
