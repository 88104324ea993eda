package service

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/gpg"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
)

// ProtocolVersion is the challenge protocol semantic version. A challenge
// carrying any other version is rejected.
const ProtocolVersion = "1.0.0"

// verifyTokenRe matches the client-chosen verify token: exactly 64
// lowercase hex characters.
var verifyTokenRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Challenge is the decrypted client payload. It exists only within one
// request and is never persisted.
type Challenge struct {
	Version           string `json:"version"`
	Domain            string `json:"domain"`
	VerifyToken       string `json:"verify_token"`
	VerifyTokenExpiry int64  `json:"verify_token_expiry"`
}

// ChallengeResponse echoes the challenge back with freshly minted tokens.
// It is serialized, then encrypted and signed for the requesting user.
type ChallengeResponse struct {
	Version      string `json:"version"`
	Domain       string `json:"domain"`
	VerifyToken  string `json:"verify_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// VerifiedChallenge is the outcome of a successful verification: the
// resolved user, the client's verify token to echo back, and the OpenPGP
// session already keyed for encrypting the response to that user.
type VerifiedChallenge struct {
	User        model.User
	VerifyToken string
	Session     gpg.Backend
}

// ChallengeConfig carries the protocol's configuration, injected at
// construction.
type ChallengeConfig struct {
	ServerFingerprint string
	ServerPassphrase  string
	BaseURL           string
}

// ChallengeProtocol verifies signed-and-encrypted client challenges.
type ChallengeProtocol struct {
	cfg        ChallengeConfig
	newBackend gpg.BackendFactory
	users      model.UserStore
	logger     *logger.Logger
}

// NewChallengeProtocol creates the protocol service.
func NewChallengeProtocol(cfg ChallengeConfig, newBackend gpg.BackendFactory, users model.UserStore, l *logger.Logger) *ChallengeProtocol {
	return &ChallengeProtocol{
		cfg:        cfg,
		newBackend: newBackend,
		users:      users,
		logger:     l,
	}
}

// challengeContext is the per-request state threaded through the
// verification steps.
type challengeContext struct {
	gpg  gpg.Backend
	user model.User
}

// Verify runs the full verification sequence for one request: select and
// unlock the server key, resolve the user and import their key, then check
// signature, decrypt, and validate the challenge structure. Every failure
// is returned as a kinded error carrying a generic user message.
func (p *ChallengeProtocol) Verify(ctx context.Context, userID string, armoredChallenge string) (*VerifiedChallenge, error) {
	c := &challengeContext{}

	if err := p.setBackend(c); err != nil {
		return nil, err
	}
	if err := p.setServerKey(c); err != nil {
		return nil, err
	}
	if err := p.resolveUser(ctx, c, userID); err != nil {
		return nil, err
	}
	if err := p.setUserKey(c); err != nil {
		return nil, err
	}

	challenge, err := p.verifyChallenge(c, armoredChallenge)
	if err != nil {
		return nil, err
	}

	return &VerifiedChallenge{
		User:        c.user,
		VerifyToken: challenge.VerifyToken,
		Session:     c.gpg,
	}, nil
}

func (p *ChallengeProtocol) setBackend(c *challengeContext) error {
	backend, err := p.newBackend()
	if err != nil {
		return auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}
	c.gpg = backend
	return nil
}

// setServerKey selects the configured server key for decryption. If the
// key is not present in the keyring yet, it is imported from the key file
// and selection is retried once.
func (p *ChallengeProtocol) setServerKey(c *challengeContext) error {
	if !model.IsValidFingerprint(p.cfg.ServerFingerprint) {
		return auth.NewError(auth.KindInternal,
			"The OpenPGP server key fingerprint defined in the config is not a valid fingerprint.", nil)
	}

	err := retryOnce(
		func() error {
			return c.gpg.SetDecryptKey(p.cfg.ServerFingerprint, p.cfg.ServerPassphrase)
		},
		func() error {
			return c.gpg.ImportServerKey()
		},
	)
	if err != nil {
		return auth.NewError(auth.KindInternal,
			"The OpenPGP server key defined in the config cannot be used to decrypt.", err)
	}
	return nil
}

func (p *ChallengeProtocol) resolveUser(ctx context.Context, c *challengeContext, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil || id == uuid.Nil {
		return auth.NewError(auth.KindBadRequest, "The user id is missing or invalid.", err)
	}

	user, err := p.users.FindAuthenticatable(ctx, id)
	if err != nil {
		if err == model.ErrNotFound {
			return auth.NewError(auth.KindNotFound,
				"The user does not exist or is not active or has been deleted.", err)
		}
		return auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	if !user.HasUsableKey() {
		return auth.NewError(auth.KindBadRequest,
			"The user OpenPGP key is missing or invalid.", nil)
	}

	c.user = user
	return nil
}

// setUserKey selects the user's key for signature verification and
// response encryption, importing the stored armored key on a first miss.
func (p *ChallengeProtocol) setUserKey(c *challengeContext) error {
	fingerprint := c.user.Key.Fingerprint

	err := retryOnce(
		func() error {
			if err := c.gpg.SetVerifyKey(fingerprint); err != nil {
				return err
			}
			return c.gpg.SetEncryptKey(fingerprint)
		},
		func() error {
			_, err := c.gpg.ImportKey(c.user.Key.ArmoredKey)
			return err
		},
	)
	if err != nil {
		return auth.NewError(auth.KindInternal, "Could not import the user OpenPGP key.", err)
	}
	return nil
}

func (p *ChallengeProtocol) verifyChallenge(c *challengeContext, armored string) (*Challenge, error) {
	if armored == "" || !c.gpg.IsValidMessage(armored) {
		return nil, auth.NewError(auth.KindInvalidArgument, "The user challenge is missing or invalid.", nil)
	}

	if err := c.gpg.VerifySignature(armored); err != nil {
		return nil, auth.NewError(auth.KindBadRequest, "The user signature is invalid.", err)
	}

	cleartext, err := c.gpg.Decrypt(armored)
	if err != nil {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge cannot be decrypted.", err)
	}

	challenge, err := p.parseChallenge(cleartext)
	if err != nil {
		p.logger.Info("ChallengeProtocol: challenge rejected", "cause", err)
		return nil, auth.NewError(auth.KindBadRequest, "The challenge is invalid.", err)
	}

	return challenge, nil
}

// parseChallenge decodes and structurally validates the decrypted payload.
// Checks run in a fixed order and the first failure wins; callers collapse
// every failure to the same generic message.
func (p *ChallengeProtocol) parseChallenge(cleartext string) (*Challenge, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(cleartext)))
	dec.DisallowUnknownFields()

	challenge := &Challenge{}
	if err := dec.Decode(challenge); err != nil {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge is not valid JSON.", err)
	}

	if challenge.Version != ProtocolVersion {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge version is not supported.", nil)
	}
	if !domainsMatch(challenge.Domain, p.cfg.BaseURL) {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge domain does not match the server domain.", nil)
	}
	if challenge.VerifyTokenExpiry <= time.Now().Unix() {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge is expired.", nil)
	}
	if !verifyTokenRe.MatchString(challenge.VerifyToken) {
		return nil, auth.NewError(auth.KindBadRequest, "The challenge verify token format is invalid.", nil)
	}

	return challenge, nil
}

// domainsMatch compares two base URLs, ignoring a trailing slash.
func domainsMatch(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// retryOnce runs attempt, and on failure runs recover and retries attempt
// one more time. The recovery error wins when recovery itself fails.
func retryOnce(attempt func() error, recover func() error) error {
	if err := attempt(); err == nil {
		return nil
	}
	if err := recover(); err != nil {
		return err
	}
	return attempt()
}
