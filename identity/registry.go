package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/oasislabs/ready-layer-two/token"
)

// ErrEmptyName is returned when registering an account without a name.
var ErrEmptyName = errors.New("account name must not be empty")

// Account is a registered user. The credential is stored as supplied.
type Account struct {
	Name       string `json:"name"`
	Credential string `json:"credential"`
}

// Registry authenticates users and issues tokens for them.
type Registry struct {
	accounts storage.Map[Account]
	codec    *token.Codec
	log      *slog.Logger
}

// NewRegistry creates a registry over accounts with a freshly generated signing secret.
func NewRegistry(accounts storage.Map[Account], log *slog.Logger) (*Registry, error) {
	secret, err := token.NewSecret()
	if err != nil {
		return nil, err
	}
	return NewRegistryWithSecret(accounts, secret, log)
}

// NewRegistryWithSecret creates a registry that signs with secret.
// Tokens issued by a previous instance stay valid across restarts when the secret is reused.
func NewRegistryWithSecret(accounts storage.Map[Account], secret []byte, log *slog.Logger) (*Registry, error) {
	codec, err := token.NewCodec(secret)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		accounts: accounts,
		codec:    codec,
		log:      log.With("component", "identity"),
	}, nil
}

// Register creates an account. Names are matched exactly.
func (r *Registry) Register(ctx context.Context, name, credential string) error {
	if name == "" {
		return ErrEmptyName
	}

	err := r.accounts.InsertNew(ctx, name, Account{Name: name, Credential: credential})
	if errors.Is(err, storage.ErrKeyExists) {
		return protocol.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("could not store account: %w", err)
	}

	r.log.Info("registered account", "name", name)
	return nil
}

// SignIn checks the credential of name and issues a token for audience.
// The audience is taken as declared by the caller.
func (r *Registry) SignIn(ctx context.Context, name, credential, audience string) (string, error) {
	account, found, err := r.accounts.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("could not load account: %w", err)
	}
	if !found || subtle.ConstantTimeCompare([]byte(account.Credential), []byte(credential)) != 1 {
		r.log.Debug("sign-in rejected", "name", name)
		return "", protocol.ErrPermissionDenied
	}

	issued, err := r.codec.Issue(name, audience)
	if err != nil {
		return "", fmt.Errorf("could not issue token: %w", err)
	}
	return issued, nil
}

// VerifyToken checks that tokenText was issued by this registry for the caller of rc.
func (r *Registry) VerifyToken(_ context.Context, rc protocol.RequestContext, tokenText string) (protocol.UserInfo, error) {
	parsed, err := token.Parse(tokenText)
	if err != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrInvalidToken, err)
	}

	if parsed.Audience != rc.Caller {
		return protocol.UserInfo{}, fmt.Errorf("%w: token is not addressed to caller", protocol.ErrPermissionDenied)
	}

	if err := r.codec.Verify(tokenText); err != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrPermissionDenied, err)
	}

	return protocol.UserInfo{Name: parsed.Subject}, nil
}
