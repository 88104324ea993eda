package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/gpg"
	"github.com/keyward/keyward-server/internal/mocks"
	"github.com/keyward/keyward-server/internal/model"
	"github.com/keyward/keyward-server/internal/testutil"
)

const testBaseURL = "https://keyward.test"

// protocolFixture wires a protocol over a real keyring with a generated
// server key and one generated user.
type protocolFixture struct {
	protocol *ChallengeProtocol
	keyring  *gpg.Keyring
	server   testutil.TestKeyPair
	client   testutil.TestKeyPair
	user     model.User
	users    *mocks.UserStore
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	t.Helper()

	server := testutil.GenerateKeyPair(t, "Keyward Server", "server@keyward.test")
	client := testutil.GenerateKeyPair(t, "Ada Lovelace", "ada@keyward.test")

	serverKeyFile := filepath.Join(t.TempDir(), "serverkey_private.asc")
	require.NoError(t, os.WriteFile(serverKeyFile, []byte(server.ArmoredPrivate), 0o600))

	keyring := gpg.NewKeyring(serverKeyFile)
	require.NoError(t, keyring.ImportServerKey())
	_, err := keyring.Import(client.ArmoredPrivate)
	require.NoError(t, err)

	user := model.User{
		ID:       uuid.New(),
		Username: "ada@keyward.test",
		Role:     model.RoleUser,
		Active:   true,
		Key: model.OpenPGPKey{
			Fingerprint: client.Fingerprint,
			ArmoredKey:  client.ArmoredPublic,
		},
	}

	users := mocks.NewUserStore()

	protocol := NewChallengeProtocol(ChallengeConfig{
		ServerFingerprint: server.Fingerprint,
		ServerPassphrase:  "",
		BaseURL:           testBaseURL,
	}, keyring.Factory(), users, testutil.MakeNoopLogger())

	return &protocolFixture{
		protocol: protocol,
		keyring:  keyring,
		server:   server,
		client:   client,
		user:     user,
		users:    users,
	}
}

// encryptChallenge produces what a client would send: payload signed with
// the client key and encrypted to the server key.
func (f *protocolFixture) encryptChallenge(t *testing.T, payload string) string {
	t.Helper()

	session := f.keyring.Session()
	require.NoError(t, session.SetDecryptKey(f.client.Fingerprint, ""))
	require.NoError(t, session.SetEncryptKey(f.server.Fingerprint))

	armored, err := session.EncryptSign(payload)
	require.NoError(t, err)
	return armored
}

func (f *protocolFixture) validPayload() string {
	return fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":%q,"verify_token_expiry":%d}`,
		ProtocolVersion, testBaseURL, validVerifyToken(), time.Now().Add(time.Minute).Unix())
}

func validVerifyToken() string {
	return strings.Repeat("a", 64)
}

func TestChallengeProtocol_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("valid challenge", func(t *testing.T) {
		f := newProtocolFixture(t)
		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		armored := f.encryptChallenge(t, f.validPayload())

		vc, err := f.protocol.Verify(ctx, f.user.ID.String(), armored)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, vc.User.ID)
		assert.Equal(t, validVerifyToken(), vc.VerifyToken)
		require.NotNil(t, vc.Session)

		// The session must already be keyed for answering the user.
		encrypted, err := vc.Session.EncryptSign("pong")
		require.NoError(t, err)
		assert.NotEmpty(t, encrypted)
	})

	t.Run("trailing slash domain", func(t *testing.T) {
		f := newProtocolFixture(t)
		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		payload := fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":%q,"verify_token_expiry":%d}`,
			ProtocolVersion, testBaseURL+"/", validVerifyToken(), time.Now().Add(time.Minute).Unix())
		armored := f.encryptChallenge(t, payload)

		_, err := f.protocol.Verify(ctx, f.user.ID.String(), armored)
		assert.NoError(t, err)
	})

	t.Run("invalid user id", func(t *testing.T) {
		f := newProtocolFixture(t)

		_, err := f.protocol.Verify(ctx, "not-a-uuid", "irrelevant")
		require.Error(t, err)
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
		assert.EqualError(t, err, "The user id is missing or invalid.")
	})

	t.Run("user not found", func(t *testing.T) {
		f := newProtocolFixture(t)
		unknown := uuid.New()
		f.users.On("FindAuthenticatable", ctx, unknown).Return(model.User{}, model.ErrNotFound)

		_, err := f.protocol.Verify(ctx, unknown.String(), "irrelevant")
		require.Error(t, err)
		assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
	})

	t.Run("user without usable key", func(t *testing.T) {
		f := newProtocolFixture(t)
		keyless := f.user
		keyless.Key = model.OpenPGPKey{}
		f.users.On("FindAuthenticatable", ctx, keyless.ID).Return(keyless, nil)

		_, err := f.protocol.Verify(ctx, keyless.ID.String(), "irrelevant")
		require.Error(t, err)
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
		assert.EqualError(t, err, "The user OpenPGP key is missing or invalid.")
	})

	t.Run("empty challenge", func(t *testing.T) {
		f := newProtocolFixture(t)
		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		_, err := f.protocol.Verify(ctx, f.user.ID.String(), "")
		require.Error(t, err)
		assert.Equal(t, auth.KindInvalidArgument, auth.KindOf(err))
		assert.EqualError(t, err, "The user challenge is missing or invalid.")
	})

	t.Run("not an armored message", func(t *testing.T) {
		f := newProtocolFixture(t)
		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		_, err := f.protocol.Verify(ctx, f.user.ID.String(), "hello world")
		require.Error(t, err)
		assert.Equal(t, auth.KindInvalidArgument, auth.KindOf(err))
	})

	t.Run("signed by a different key", func(t *testing.T) {
		f := newProtocolFixture(t)
		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		stranger := testutil.GenerateKeyPair(t, "Mallory", "mallory@keyward.test")
		_, err := f.keyring.Import(stranger.ArmoredPrivate)
		require.NoError(t, err)

		session := f.keyring.Session()
		require.NoError(t, session.SetDecryptKey(stranger.Fingerprint, ""))
		require.NoError(t, session.SetEncryptKey(f.server.Fingerprint))
		armored, err := session.EncryptSign(f.validPayload())
		require.NoError(t, err)

		_, err = f.protocol.Verify(ctx, f.user.ID.String(), armored)
		require.Error(t, err)
		assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
		assert.EqualError(t, err, "The user signature is invalid.")
	})

	t.Run("structurally invalid challenges", func(t *testing.T) {
		future := time.Now().Add(time.Minute).Unix()
		past := time.Now().Add(-time.Minute).Unix()

		tests := []struct {
			name    string
			payload string
		}{
			{
				name: "unsupported version",
				payload: fmt.Sprintf(`{"version":"9.9.9","domain":%q,"verify_token":%q,"verify_token_expiry":%d}`,
					testBaseURL, validVerifyToken(), future),
			},
			{
				name: "wrong domain",
				payload: fmt.Sprintf(`{"version":%q,"domain":"https://evil.test","verify_token":%q,"verify_token_expiry":%d}`,
					ProtocolVersion, validVerifyToken(), future),
			},
			{
				name: "expired",
				payload: fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":%q,"verify_token_expiry":%d}`,
					ProtocolVersion, testBaseURL, validVerifyToken(), past),
			},
			{
				name: "verify token too short",
				payload: fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":"nope","verify_token_expiry":%d}`,
					ProtocolVersion, testBaseURL, future),
			},
			{
				name: "verify token uppercase",
				payload: fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":%q,"verify_token_expiry":%d}`,
					ProtocolVersion, testBaseURL, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", future),
			},
			{
				name: "verify token missing",
				payload: fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token_expiry":%d}`,
					ProtocolVersion, testBaseURL, future),
			},
			{
				name:    "not json",
				payload: "definitely not json",
			},
			{
				name: "unknown field",
				payload: fmt.Sprintf(`{"version":%q,"domain":%q,"verify_token":%q,"verify_token_expiry":%d,"extra":1}`,
					ProtocolVersion, testBaseURL, validVerifyToken(), future),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newProtocolFixture(t)
				f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

				armored := f.encryptChallenge(t, tt.payload)

				_, err := f.protocol.Verify(ctx, f.user.ID.String(), armored)
				require.Error(t, err)
				assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
				assert.EqualError(t, err, "The challenge is invalid.")
			})
		}
	})

	t.Run("invalid server fingerprint config", func(t *testing.T) {
		f := newProtocolFixture(t)

		broken := NewChallengeProtocol(ChallengeConfig{
			ServerFingerprint: "nope",
			BaseURL:           testBaseURL,
		}, f.keyring.Factory(), f.users, testutil.MakeNoopLogger())

		_, err := broken.Verify(ctx, f.user.ID.String(), "irrelevant")
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})

	t.Run("server key imported on first use", func(t *testing.T) {
		// A fresh keyring only knows the server key file; selection must
		// recover by importing it.
		f := newProtocolFixture(t)

		serverKeyFile := filepath.Join(t.TempDir(), "serverkey_private.asc")
		require.NoError(t, os.WriteFile(serverKeyFile, []byte(f.server.ArmoredPrivate), 0o600))

		fresh := gpg.NewKeyring(serverKeyFile)
		protocol := NewChallengeProtocol(ChallengeConfig{
			ServerFingerprint: f.server.Fingerprint,
			BaseURL:           testBaseURL,
		}, fresh.Factory(), f.users, testutil.MakeNoopLogger())

		f.users.On("FindAuthenticatable", ctx, f.user.ID).Return(f.user, nil)

		armored := f.encryptChallenge(t, f.validPayload())

		vc, err := protocol.Verify(ctx, f.user.ID.String(), armored)
		require.NoError(t, err)
		assert.Equal(t, validVerifyToken(), vc.VerifyToken)
	})
}

func TestChallengeResponse_JSON(t *testing.T) {
	response := ChallengeResponse{
		Version:      ProtocolVersion,
		Domain:       testBaseURL,
		VerifyToken:  validVerifyToken(),
		AccessToken:  "signed",
		RefreshToken: "opaque",
	}

	raw, err := json.Marshal(response)
	require.NoError(t, err)

	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"access_token", "domain", "refresh_token", "verify_token", "version"}, sortedKeys(decoded))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
