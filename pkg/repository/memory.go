package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory storage. It is used for tests
// and local runs.
type MemoryStore struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*PendingAuth      // state token -> PendingAuth
	members map[string]*MemberCredential // member ID -> MemberCredential
	order   []string                     // member IDs in insertion order

	// Cleanup goroutine control.
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(log logrus.FieldLogger) *MemoryStore {
	return &MemoryStore{
		log:         log.WithField("component", "memory_store"),
		pending:     make(map[string]*PendingAuth, 100),
		members:     make(map[string]*MemberCredential, 100),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Start begins the cleanup goroutine.
func (m *MemoryStore) Start(ctx context.Context) error {
	go m.cleanupLoop(ctx)

	m.log.Info("Memory store started")

	return nil
}

// Stop stops the cleanup goroutine.
func (m *MemoryStore) Stop() error {
	close(m.stopCleanup)
	<-m.cleanupDone

	m.log.Info("Memory store stopped")

	return nil
}

// cleanupLoop runs periodic cleanup of expired pending flows. Abandoned
// flows would otherwise accumulate for their full TTL window.
func (m *MemoryStore) cleanupLoop(ctx context.Context) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired pending flows.
func (m *MemoryStore) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := make([]string, 0, 10)

	for token, pending := range m.pending {
		if pending.IsExpired() {
			expired = append(expired, token)
		}
	}

	for _, token := range expired {
		delete(m.pending, token)
	}

	if len(expired) > 0 {
		m.log.WithField("expired_pending", len(expired)).Debug("Cleaned up expired pending flows")
	}
}

// PutPendingAuth records the state of a newly started OAuth2 flow.
func (m *MemoryStore) PutPendingAuth(_ context.Context, stateToken, pkceVerifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[stateToken] = &PendingAuth{
		PKCEVerifier: pkceVerifier,
		ExpiresAt:    time.Now().Add(PendingAuthTTL),
	}

	return nil
}

// TakePendingAuth atomically looks up and deletes the pending flow for the
// given state token. The store mutex makes concurrent takes single-winner.
func (m *MemoryStore) TakePendingAuth(_ context.Context, stateToken string) (*PendingAuth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.pending[stateToken]
	if !ok {
		return nil, ErrNotFound
	}

	delete(m.pending, stateToken)

	if pending.IsExpired() {
		return nil, ErrNotFound
	}

	return pending, nil
}

// UpsertMemberCredential creates or overwrites a member's tokens, preserving
// any existing display name.
func (m *MemoryStore) UpsertMemberCredential(_ context.Context, memberID, accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.members[memberID]; ok {
		existing.AccessToken = accessToken
		existing.RefreshToken = refreshToken

		return nil
	}

	m.members[memberID] = &MemberCredential{
		MemberID:     memberID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	m.order = append(m.order, memberID)

	return nil
}

// SaveDisplayName sets or clears a member's display name.
func (m *MemoryStore) SaveDisplayName(_ context.Context, memberID string, displayName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[memberID]
	if !ok {
		return ErrNotFound
	}

	member.DisplayName = displayName

	return nil
}

// GetMemberCredential retrieves a member's credential.
func (m *MemoryStore) GetMemberCredential(_ context.Context, memberID string) (*MemberCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[memberID]
	if !ok {
		return nil, ErrNotFound
	}

	cloned := *member

	return &cloned, nil
}

// ListMemberCredentials retrieves all linked members in insertion order.
func (m *MemoryStore) ListMemberCredentials(_ context.Context) ([]*MemberCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]*MemberCredential, 0, len(m.order))

	for _, memberID := range m.order {
		cloned := *m.members[memberID]
		members = append(members, &cloned)
	}

	return members, nil
}
