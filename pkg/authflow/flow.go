package authflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/approvers/members-db/pkg/config"
	"github.com/approvers/members-db/pkg/discord"
	"github.com/approvers/members-db/pkg/observability"
	"github.com/approvers/members-db/pkg/repository"
)

// Scopes requested from Discord for every authorization.
var scopes = []string{"identify", "guilds", "guilds.members.read", "connections"}

// IdentityClient resolves the stable identity behind an access token.
type IdentityClient interface {
	// CurrentUser fetches the profile of the user the token belongs to.
	CurrentUser(ctx context.Context, accessToken string) (*discord.User, error)
}

// Flow manages the OAuth2 authorization-code-with-PKCE flow against Discord.
type Flow struct {
	log      logrus.FieldLogger
	oauth    *oauth2.Config
	store    repository.Store
	identity IdentityClient
}

// NewFlow creates a new OAuth2 flow manager.
func NewFlow(
	log logrus.FieldLogger,
	cfg config.DiscordConfig,
	store repository.Store,
	identity IdentityClient,
) *Flow {
	return &Flow{
		log: log.WithField("component", "oauth2_flow"),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   discord.AuthorizeURL,
				TokenURL:  discord.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:    store,
		identity: identity,
	}
}

// Authenticate starts a new authorization flow. It generates a fresh CSRF
// state token and PKCE verifier, persists them, and returns the provider
// authorization URL. The pending state is recorded before the URL is handed
// out; if persistence fails no URL is returned, since the callback could
// never validate.
func (f *Flow) Authenticate(ctx context.Context) (string, error) {
	stateToken, err := GenerateStateToken()
	if err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}

	verifier := oauth2.GenerateVerifier()

	if err := f.store.PutPendingAuth(ctx, stateToken, verifier); err != nil {
		return "", fmt.Errorf("saving pending auth state: %w", err)
	}

	f.log.Debug("Started authorization flow")

	return f.oauth.AuthCodeURL(stateToken, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete finishes an authorization flow. The pending state is taken
// atomically, so a replayed callback with the same state token fails with
// ErrInvalidState. The exchanged tokens are persisted under the caller's
// stable Discord user ID.
func (f *Flow) Complete(ctx context.Context, stateToken, code string) error {
	pending, err := f.store.TakePendingAuth(ctx, stateToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}

		return fmt.Errorf("taking pending auth state: %w", err)
	}

	token, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(pending.PKCEVerifier))
	if err != nil {
		f.log.WithError(err).Warn("Authorization code exchange rejected")

		return fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	if token.RefreshToken == "" {
		return ErrMissingRefreshToken
	}

	user, err := f.identity.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("%w: fetching current user: %v", ErrTokenNotPersisted, err)
	}

	if err := f.store.UpsertMemberCredential(ctx, user.ID, token.AccessToken, token.RefreshToken); err != nil {
		return fmt.Errorf("%w: member %s: %v", ErrTokenNotPersisted, user.ID, err)
	}

	f.log.WithField("member_id", user.ID).Info("Linked member credentials")

	return nil
}

// Refresh exchanges the member's stored refresh token for a new token pair,
// persists both tokens, and returns the new access token. The stored
// credential is left untouched when the provider rejects the refresh token;
// re-authorization requires user interaction and is never attempted here.
func (f *Flow) Refresh(ctx context.Context, memberID string) (string, error) {
	credential, err := f.store.GetMemberCredential(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}

		return "", fmt.Errorf("getting member credential: %w", err)
	}

	source := f.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: credential.RefreshToken})

	token, err := source.Token()
	if err != nil {
		f.log.WithFields(logrus.Fields{
			"member_id": memberID,
		}).WithError(err).Warn("Refresh token rejected")

		observability.TokenRefreshesTotal.WithLabelValues("error").Inc()

		return "", fmt.Errorf("%w: member %s: %v", ErrRefreshFailed, memberID, err)
	}

	observability.TokenRefreshesTotal.WithLabelValues("success").Inc()

	// TokenSource carries the previous refresh token forward when the
	// provider does not rotate it, so both fields are always current.
	if err := f.store.UpsertMemberCredential(ctx, memberID, token.AccessToken, token.RefreshToken); err != nil {
		return "", fmt.Errorf("%w: member %s: %v", ErrTokenNotPersisted, memberID, err)
	}

	return token.AccessToken, nil
}
