// Package authflow implements the Discord OAuth2 authorization-code flow
// with PKCE: authorization URL construction, CSRF state correlation, code
// exchange, and token refresh.
package authflow

import "errors"

// Error sentinels for OAuth2 flow operations.
var (
	// ErrInvalidState indicates the CSRF state token was never issued,
	// already consumed, or expired.
	ErrInvalidState = errors.New("invalid or expired state token")

	// ErrTokenExchange indicates the provider rejected the authorization code.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrMissingRefreshToken indicates the provider granted an access token
	// without a refresh token. Ongoing directory aggregation depends on
	// refresh, so this is a hard error.
	ErrMissingRefreshToken = errors.New("provider response omitted a refresh token")

	// ErrMemberNotFound indicates no credential is stored for the member.
	ErrMemberNotFound = errors.New("member not found")

	// ErrRefreshFailed indicates the provider rejected the stored refresh
	// token. The caller must re-run the full authorization flow.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrTokenNotPersisted indicates tokens were issued by the provider but
	// could not be saved. The issued grant is lost and the member must
	// re-authorize.
	ErrTokenNotPersisted = errors.New("exchanged token was not persisted")
)
