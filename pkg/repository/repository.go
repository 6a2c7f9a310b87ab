// Package repository provides persistence for member credentials and
// in-flight OAuth2 authorization state.
package repository

import (
	"context"
	"errors"
	"time"
)

// PendingAuthTTL is how long an unconsumed authorization flow stays valid.
const PendingAuthTTL = 24 * time.Hour

// Error sentinels for repository operations.
var (
	// ErrNotFound indicates no row exists for the given key.
	ErrNotFound = errors.New("row not found")

	// ErrTransaction indicates a backend transaction could not be completed.
	ErrTransaction = errors.New("transaction error")

	// ErrInternal indicates an unexpected backend failure.
	ErrInternal = errors.New("internal repository error")
)

// PendingAuth is the state persisted between starting an OAuth2 flow and
// receiving its callback. It is keyed by the CSRF state token and consumed
// exactly once.
type PendingAuth struct {
	// PKCEVerifier is the code verifier matching the challenge sent to the
	// provider.
	PKCEVerifier string `firestore:"pkce_verifier" json:"pkce_verifier"`

	// ExpiresAt is when the flow becomes invalid even if never consumed.
	ExpiresAt time.Time `firestore:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the pending flow has passed its deadline.
func (p *PendingAuth) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// MemberCredential is a linked member's stored OAuth2 credential.
type MemberCredential struct {
	// MemberID is the member's stable Discord user ID.
	MemberID string `firestore:"member_id" json:"member_id"`

	// DisplayName is an optional override set through the admin path.
	// Nil means the member has no override.
	DisplayName *string `firestore:"display_name" json:"display_name,omitempty"`

	// AccessToken is the most recently issued access token.
	AccessToken string `firestore:"access_token" json:"access_token"`

	// RefreshToken is the most recently issued refresh token. Providers may
	// rotate refresh tokens, so this must always track the latest grant.
	RefreshToken string `firestore:"refresh_token" json:"refresh_token"`
}

// Store defines the credential repository consumed by the OAuth2 flow and
// the member directory.
type Store interface {
	// PutPendingAuth records the state of a newly started OAuth2 flow,
	// keyed by its CSRF state token.
	PutPendingAuth(ctx context.Context, stateToken, pkceVerifier string) error

	// TakePendingAuth atomically looks up and deletes the pending flow for
	// the given state token. Returns ErrNotFound if the token was never
	// issued, already consumed, or expired. Concurrent takes of the same
	// token must have exactly one winner.
	TakePendingAuth(ctx context.Context, stateToken string) (*PendingAuth, error)

	// UpsertMemberCredential creates or overwrites a member's tokens.
	// An existing display name is preserved.
	UpsertMemberCredential(ctx context.Context, memberID, accessToken, refreshToken string) error

	// SaveDisplayName sets or clears (nil) a member's display name.
	// Returns ErrNotFound if the member has never linked an account.
	SaveDisplayName(ctx context.Context, memberID string, displayName *string) error

	// GetMemberCredential retrieves a member's credential.
	GetMemberCredential(ctx context.Context, memberID string) (*MemberCredential, error)

	// ListMemberCredentials retrieves all linked members.
	ListMemberCredentials(ctx context.Context) ([]*MemberCredential, error)
}
