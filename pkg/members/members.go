// Package members provides administrative operations on stored member data.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/approvers/members-db/pkg/repository"
)

// ErrMemberNotFound indicates the member has never linked an account.
var ErrMemberNotFound = errors.New("member not found")

// Service manages member display names.
type Service struct {
	log   logrus.FieldLogger
	store repository.Store
}

// NewService creates a new members service.
func NewService(log logrus.FieldLogger, store repository.Store) *Service {
	return &Service{
		log:   log.WithField("component", "members"),
		store: store,
	}
}

// SetDisplayName sets a member's display name override.
func (s *Service) SetDisplayName(ctx context.Context, memberID, displayName string) error {
	if err := s.store.SaveDisplayName(ctx, memberID, &displayName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}

		return fmt.Errorf("saving display name: %w", err)
	}

	s.log.WithField("member_id", memberID).Info("Updated member display name")

	return nil
}

// ClearDisplayName removes a member's display name override.
func (s *Service) ClearDisplayName(ctx context.Context, memberID string) error {
	if err := s.store.SaveDisplayName(ctx, memberID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}

		return fmt.Errorf("clearing display name: %w", err)
	}

	s.log.WithField("member_id", memberID).Info("Reset member display name to default")

	return nil
}
