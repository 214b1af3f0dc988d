package oauth2

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credpool/core"

	glog "github.com/goliatone/go-logger/glog"
	xoauth2 "golang.org/x/oauth2"
)

// Config carries the provider-level OAuth2 settings shared by every
// account refreshed through this authenticator. Per-account client
// credentials, when present, take precedence over these defaults.
type Config struct {
	Endpoint     xoauth2.Endpoint
	Scopes       []string
	ClientID     string
	ClientSecret string
	// SecretRef resolves the client secret through a SecretProvider when
	// no literal secret is configured.
	SecretRef string
	Timeout   time.Duration
}

// TokenSourceFactory builds the token source used for a refresh. Tests
// swap this out to avoid network calls.
type TokenSourceFactory func(ctx context.Context, cfg *xoauth2.Config, token *xoauth2.Token) xoauth2.TokenSource

// Authenticator refreshes account credentials against an OAuth2 token
// endpoint using the refresh_token grant.
type Authenticator struct {
	cfg         Config
	secrets     core.SecretProvider
	logger      glog.Logger
	now         func() time.Time
	tokenSource TokenSourceFactory
}

type Option func(*Authenticator)

func WithSecretProvider(provider core.SecretProvider) Option {
	return func(a *Authenticator) {
		a.secrets = provider
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithTokenSourceFactory(factory TokenSourceFactory) Option {
	return func(a *Authenticator) {
		if factory != nil {
			a.tokenSource = factory
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Authenticator {
	auth := &Authenticator{
		cfg:    cfg,
		logger: glog.Nop(),
		now:    time.Now,
		tokenSource: func(ctx context.Context, config *xoauth2.Config, token *xoauth2.Token) xoauth2.TokenSource {
			return config.TokenSource(ctx, token)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(auth)
		}
	}
	return auth
}

// Refresh exchanges the account's refresh token for a fresh credential.
// Errors bubble raw so the pool's central classifier decides the failure
// category.
func (a *Authenticator) Refresh(ctx context.Context, account *core.Account) (core.RefreshResult, error) {
	if account == nil {
		return core.RefreshResult{}, fmt.Errorf("oauth2: account is required")
	}
	if strings.TrimSpace(account.RefreshToken) == "" {
		return core.RefreshResult{}, fmt.Errorf("oauth2: account %s has no refresh token", account.ID)
	}

	clientID, clientSecret, err := a.resolveClientCredentials(ctx, account)
	if err != nil {
		return core.RefreshResult{}, err
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	config := &xoauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     a.cfg.Endpoint,
		Scopes:       a.cfg.Scopes,
	}
	source := a.tokenSource(ctx, config, &xoauth2.Token{RefreshToken: account.RefreshToken})

	token, err := source.Token()
	if err != nil {
		return core.RefreshResult{}, fmt.Errorf("oauth2: refresh for account %s: %w", account.ID, err)
	}

	result := core.RefreshResult{
		AccessToken:  token.AccessToken,
		RefreshToken: account.RefreshToken,
		ExpiresIn:    a.expiresIn(token),
	}
	// Persist rotated refresh tokens when the endpoint issues one.
	if rotated := strings.TrimSpace(token.RefreshToken); rotated != "" && rotated != account.RefreshToken {
		a.logger.Debug("rotating refresh token", "account_id", account.ID)
		result.RefreshToken = rotated
	}
	return result, nil
}

func (a *Authenticator) resolveClientCredentials(ctx context.Context, account *core.Account) (string, string, error) {
	clientID := strings.TrimSpace(account.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(a.cfg.ClientID)
	}
	if clientID == "" {
		return "", "", fmt.Errorf("oauth2: no client id for account %s", account.ID)
	}

	clientSecret := strings.TrimSpace(account.ClientSecret)
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(a.cfg.ClientSecret)
	}
	if clientSecret == "" && a.cfg.SecretRef != "" {
		if a.secrets == nil {
			return "", "", fmt.Errorf("oauth2: secret ref %q requires a secret provider", a.cfg.SecretRef)
		}
		resolved, err := a.secrets.Resolve(ctx, a.cfg.SecretRef)
		if err != nil {
			return "", "", fmt.Errorf("oauth2: resolve secret ref %q: %w", a.cfg.SecretRef, err)
		}
		clientSecret = strings.TrimSpace(resolved)
	}
	return clientID, clientSecret, nil
}

func (a *Authenticator) expiresIn(token *xoauth2.Token) int64 {
	if token == nil || token.Expiry.IsZero() {
		return 0
	}
	return int64(token.Expiry.Sub(a.now()) / time.Second)
}

// Register wires the authenticator into a pool registry under the given
// provider key.
func Register(registry *core.ProviderRegistry, provider string, auth *Authenticator) error {
	if registry == nil {
		return fmt.Errorf("oauth2: registry is required")
	}
	if auth == nil {
		return fmt.Errorf("oauth2: authenticator is required")
	}
	return registry.Register(provider, auth)
}

var _ core.Authenticator = (*Authenticator)(nil)
