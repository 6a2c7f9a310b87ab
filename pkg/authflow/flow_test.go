package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/approvers/members-db/pkg/config"
	"github.com/approvers/members-db/pkg/discord"
	"github.com/approvers/members-db/pkg/repository"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// fakeIdentity is a canned IdentityClient.
type fakeIdentity struct {
	user *discord.User
	err  error

	gotAccessToken string
}

func (f *fakeIdentity) CurrentUser(_ context.Context, accessToken string) (*discord.User, error) {
	f.gotAccessToken = accessToken

	if f.err != nil {
		return nil, f.err
	}

	return f.user, nil
}

// tokenEndpoint is a fake provider token endpoint. It records the last form
// it received and serves the configured response.
type tokenEndpoint struct {
	status   int
	response map[string]interface{}

	lastForm url.Values
}

func (te *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		te.lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(te.status)
		_ = json.NewEncoder(w).Encode(te.response)
	}
}

func newTestFlow(t *testing.T, store repository.Store, identity IdentityClient, endpoint *tokenEndpoint) *Flow {
	t.Helper()

	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	flow := NewFlow(newTestLogger(), config.DiscordConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/discord/callback",
	}, store, identity)

	flow.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	return flow
}

func grantResponse(accessToken, refreshToken string) map[string]interface{} {
	resp := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   604800,
	}

	if refreshToken != "" {
		resp["refresh_token"] = refreshToken
	}

	return resp
}

func stateAndChallengeFromURL(t *testing.T, authURL string) (string, string) {
	t.Helper()

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	query := parsed.Query()
	require.Equal(t, "S256", query.Get("code_challenge_method"))

	return query.Get("state"), query.Get("code_challenge")
}

func TestAuthenticateBuildsAuthorizationURL(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	flow := newTestFlow(t, store, &fakeIdentity{}, &tokenEndpoint{status: http.StatusOK})

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "identify guilds guilds.members.read connections", query.Get("scope"))
	assert.NotEmpty(t, query.Get("state"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
}

func TestAuthenticateStateTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	flow := newTestFlow(t, store, &fakeIdentity{}, &tokenEndpoint{status: http.StatusOK})

	seen := make(map[string]bool, 100)

	for i := 0; i < 100; i++ {
		authURL, err := flow.Authenticate(ctx)
		require.NoError(t, err)

		state, _ := stateAndChallengeFromURL(t, authURL)
		assert.False(t, seen[state], "state token %q issued twice", state)
		seen[state] = true
	}
}

func TestCompleteExchangesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	identity := &fakeIdentity{user: &discord.User{ID: "123456", Username: "sana"}}
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-1", "refresh-1")}
	flow := newTestFlow(t, store, identity, endpoint)

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	state, challenge := stateAndChallengeFromURL(t, authURL)

	require.NoError(t, flow.Complete(ctx, state, "auth-code"))

	// The exchange must carry the verifier matching the challenge we sent.
	verifier := endpoint.lastForm.Get("code_verifier")
	require.NotEmpty(t, verifier)

	hash := sha256.Sum256([]byte(verifier))
	assert.Equal(t, challenge, base64.RawURLEncoding.EncodeToString(hash[:]))
	assert.Equal(t, "auth-code", endpoint.lastForm.Get("code"))

	// Identity was resolved with the fresh access token.
	assert.Equal(t, "access-1", identity.gotAccessToken)

	// The credential was persisted under the stable user ID.
	credential, err := store.GetMemberCredential(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "access-1", credential.AccessToken)
	assert.Equal(t, "refresh-1", credential.RefreshToken)
	assert.Nil(t, credential.DisplayName)
}

func TestCompleteReplayFails(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	identity := &fakeIdentity{user: &discord.User{ID: "123456"}}
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-1", "refresh-1")}
	flow := newTestFlow(t, store, identity, endpoint)

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	state, _ := stateAndChallengeFromURL(t, authURL)

	require.NoError(t, flow.Complete(ctx, state, "auth-code"))

	err = flow.Complete(ctx, state, "auth-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteUnknownState(t *testing.T) {
	store := repository.NewMemoryStore(newTestLogger())
	flow := newTestFlow(t, store, &fakeIdentity{}, &tokenEndpoint{status: http.StatusOK})

	err := flow.Complete(context.Background(), "never-issued", "auth-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteRejectedCode(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusBadRequest, response: map[string]interface{}{"error": "invalid_grant"}}
	flow := newTestFlow(t, store, &fakeIdentity{}, endpoint)

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	state, _ := stateAndChallengeFromURL(t, authURL)

	err = flow.Complete(ctx, state, "bad-code")
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestCompleteMissingRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-1", "")}
	flow := newTestFlow(t, store, &fakeIdentity{user: &discord.User{ID: "123456"}}, endpoint)

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	state, _ := stateAndChallengeFromURL(t, authURL)

	err = flow.Complete(ctx, state, "auth-code")
	assert.ErrorIs(t, err, ErrMissingRefreshToken)

	// Nothing was persisted for the would-be member.
	_, err = store.GetMemberCredential(ctx, "123456")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCompleteIdentityFailureSurfacesTokenLoss(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-1", "refresh-1")}
	flow := newTestFlow(t, store, &fakeIdentity{err: errors.New("upstream down")}, endpoint)

	authURL, err := flow.Authenticate(ctx)
	require.NoError(t, err)

	state, _ := stateAndChallengeFromURL(t, authURL)

	err = flow.Complete(ctx, state, "auth-code")
	assert.ErrorIs(t, err, ErrTokenNotPersisted)
}

func TestRefreshRotatesStoredTokens(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-2", "refresh-2")}
	flow := newTestFlow(t, store, &fakeIdentity{}, endpoint)

	require.NoError(t, store.UpsertMemberCredential(ctx, "123456", "access-1", "refresh-1"))

	accessToken, err := flow.Refresh(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "access-2", accessToken)

	// The stored refresh token was the one sent to the provider.
	assert.Equal(t, "refresh_token", endpoint.lastForm.Get("grant_type"))
	assert.Equal(t, "refresh-1", endpoint.lastForm.Get("refresh_token"))

	credential, err := store.GetMemberCredential(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "access-2", credential.AccessToken)
	assert.Equal(t, "refresh-2", credential.RefreshToken)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusOK, response: grantResponse("access-2", "")}
	flow := newTestFlow(t, store, &fakeIdentity{}, endpoint)

	require.NoError(t, store.UpsertMemberCredential(ctx, "123456", "access-1", "refresh-1"))

	_, err := flow.Refresh(ctx, "123456")
	require.NoError(t, err)

	credential, err := store.GetMemberCredential(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", credential.RefreshToken)
}

func TestRefreshRejectedLeavesCredentialUntouched(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(newTestLogger())
	endpoint := &tokenEndpoint{status: http.StatusBadRequest, response: map[string]interface{}{"error": "invalid_grant"}}
	flow := newTestFlow(t, store, &fakeIdentity{}, endpoint)

	require.NoError(t, store.UpsertMemberCredential(ctx, "123456", "access-1", "refresh-1"))

	_, err := flow.Refresh(ctx, "123456")
	assert.ErrorIs(t, err, ErrRefreshFailed)

	credential, err := store.GetMemberCredential(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "access-1", credential.AccessToken)
	assert.Equal(t, "refresh-1", credential.RefreshToken)
}

func TestRefreshUnknownMember(t *testing.T) {
	store := repository.NewMemoryStore(newTestLogger())
	flow := newTestFlow(t, store, &fakeIdentity{}, &tokenEndpoint{status: http.StatusOK})

	_, err := flow.Refresh(context.Background(), "999")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
